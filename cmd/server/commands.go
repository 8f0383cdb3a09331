package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"obconsent/internal/platform/config"
	"obconsent/internal/platform/logger"
	"obconsent/internal/platform/postgres"
	"obconsent/pkg/platform/secrets"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the consent API, confirm endpoint and OAuth2 hooks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)
			return runServe(cmd.Context(), cfg, log)
		},
	}
}

func newStepsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Print the authorize pipeline a steps file resolves to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.NewWithWriter(cmd.ErrOrStderr(), "development", "warn")
			return printSteps(cmd.OutOrStdout(), file, log)
		},
	}
	cmd.Flags().StringVar(&file, "file", os.Getenv("AUTHORIZE_STEPS_FILE"), "authorize steps YAML file, empty for built-in defaults")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the consent and audit outbox schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

// newHashPasswordCmd reads a password from stdin and prints the value for
// CONSENT_API_PASSWORD_HASH.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a consent API password read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}
			hash, err := secrets.Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
