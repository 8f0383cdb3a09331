package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"obconsent/internal/authorize/steps"
	consentservice "obconsent/internal/consent/service"
	consentstore "obconsent/internal/consent/store"
	"obconsent/internal/platform/config"
	"obconsent/internal/platform/httpserver"
	"obconsent/pkg/platform/audit/publishers/kafka"
	"obconsent/pkg/platform/audit/worker"
)

const (
	shutdownTimeout    = 10 * time.Second
	outboxRelayEvery   = 2 * time.Second
	outboxRelayBatch   = 100
	auditTopicReplicas = 1
)

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, newInstruments())
	if err != nil {
		return err
	}
	defer a.close()

	router, err := a.router()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	api := httpserver.New(cfg.Server.Addr, router,
		httpserver.WithWriteTimeout(cfg.Server.WriteTimeout),
		httpserver.WithLogger(logger),
	)
	g.Go(func() error {
		logger.InfoContext(gctx, "starting obconsent", "addr", cfg.Server.Addr, "environment", cfg.Server.Environment)
		return listen(api)
	})

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	metricsSrv := httpserver.New(cfg.Server.MetricsAddr, metricsRouter, httpserver.WithLogger(logger))
	g.Go(func() error {
		return listen(metricsSrv)
	})

	if a.outbox != nil && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.WithLogger(logger))
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, 1, auditTopicReplicas); err != nil {
			logger.WarnContext(ctx, "could not ensure audit topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		relay := worker.NewWorker(a.outbox, producer, outboxRelayEvery, outboxRelayBatch, logger)
		g.Go(func() error {
			return ignoreCanceled(relay.Run(gctx))
		})
	}

	g.Go(func() error {
		reloadOnHangup(gctx, a.builder, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return errors.Join(api.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// reloadOnHangup rebuilds the authorize pipeline from its source on SIGHUP.
func reloadOnHangup(ctx context.Context, builder *steps.Builder, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			p := builder.Reload()
			logger.InfoContext(ctx, "authorize pipeline reloaded",
				"retrieve", p.RetrievalSteps(),
				"persist", p.PersistSteps(),
			)
		}
	}
}

// printSteps resolves a steps file against the built-in registry. Steps are
// built against an empty in-memory consent store, so only configuration
// errors show up.
func printSteps(w io.Writer, path string, logger *slog.Logger) error {
	doc, source, err := loadSteps(path)
	if err != nil {
		return err
	}
	registry := steps.DefaultRegistry()
	builder := steps.NewBuilder(registry, source, steps.Deps{
		Consents: consentservice.New(consentstore.NewInMemory(), consentservice.WithLogger(logger)),
		Accounts: steps.StaticAccounts(doc.Accounts),
		Logger:   logger,
	})
	p := builder.Build()

	retrieval, persist := registry.Names()
	fmt.Fprintf(w, "registered retrieval steps: %v\n", retrieval)
	fmt.Fprintf(w, "registered persist steps:   %v\n", persist)
	fmt.Fprintf(w, "retrieve: %v\n", p.RetrievalSteps())
	fmt.Fprintf(w, "persist:  %v\n", p.PersistSteps())
	if p.RetrievalSteps() == nil && p.PersistSteps() == nil {
		return fmt.Errorf("authorize pipeline has no steps")
	}
	return nil
}
