package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"obconsent/internal/consent/models"
	"obconsent/pkg/platform/sentinel"
	txcontext "obconsent/pkg/platform/tx"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore persists consents, authorizations, and account mappings.
// Pure I/O: status rules live in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Q(ctx, s.db)
}

// RunInTx runs fn in a transaction carried on the context. Store calls made
// with that context join the transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, "consent", fn)
}

func (s *PostgresStore) Create(ctx context.Context, consent *models.Consent) error {
	if consent == nil {
		return fmt.Errorf("consent is required")
	}
	return s.RunInTx(ctx, func(ctx context.Context) error {
		receipt := consent.Receipt
		if receipt == "" {
			receipt = "{}"
		}
		_, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO consents (id, client_id, consent_type, receipt, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		`, consent.ID, consent.ClientID, consent.Type, receipt, consent.Status, consent.CreatedAt, consent.UpdatedAt)
		if err != nil {
			return translateWriteErr("insert consent", err)
		}
		for _, a := range consent.Authorizations {
			_, err := s.q(ctx).ExecContext(ctx, `
				INSERT INTO consent_authorizations (id, consent_id, auth_type, user_id, status, updated_at)
				VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
			`, a.ID, consent.ID, a.Type, a.UserID, a.Status, a.UpdatedAt)
			if err != nil {
				return translateWriteErr("insert authorization", err)
			}
			if len(a.Accounts) > 0 {
				if err := s.insertMappings(ctx, a.ID, a.Accounts); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Consent, error) {
	var c models.Consent
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, client_id, consent_type, receipt::text, status, created_at, updated_at
		FROM consents
		WHERE id = $1
	`, id).Scan(&c.ID, &c.ClientID, &c.Type, &c.Receipt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}

	auths, err := s.authorizations(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Authorizations = auths
	return &c, nil
}

func (s *PostgresStore) authorizations(ctx context.Context, consentID string) ([]models.Authorization, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, consent_id, auth_type, COALESCE(user_id, ''), status, updated_at
		FROM consent_authorizations
		WHERE consent_id = $1
		ORDER BY id
	`, consentID)
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	defer rows.Close()

	var auths []models.Authorization
	for rows.Next() {
		var a models.Authorization
		if err := rows.Scan(&a.ID, &a.ConsentID, &a.Type, &a.UserID, &a.Status, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		auths = append(auths, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authorizations: %w", err)
	}

	for i := range auths {
		mappings, err := s.mappings(ctx, auths[i].ID)
		if err != nil {
			return nil, err
		}
		auths[i].Accounts = mappings
	}
	return auths, nil
}

func (s *PostgresStore) mappings(ctx context.Context, authID string) ([]models.AccountMapping, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, authorization_id, account_id, permissions, status
		FROM consent_account_mappings
		WHERE authorization_id = $1
		ORDER BY account_id
	`, authID)
	if err != nil {
		return nil, fmt.Errorf("list account mappings: %w", err)
	}
	defer rows.Close()

	var out []models.AccountMapping
	for rows.Next() {
		var m models.AccountMapping
		if err := rows.Scan(&m.ID, &m.AuthorizationID, &m.AccountID, pq.Array(&m.Permissions), &m.Status); err != nil {
			return nil, fmt.Errorf("scan account mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account mappings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.ConsentStatus, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE consents SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, at,
	)
	if err != nil {
		return fmt.Errorf("update consent status: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) UpdateAuthorization(ctx context.Context, authID, userID string, status models.AuthorizationStatus, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE consent_authorizations SET user_id = $2, status = $3, updated_at = $4 WHERE id = $1`,
		authID, userID, status, at,
	)
	if err != nil {
		return fmt.Errorf("update authorization: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) AddAccountMappings(ctx context.Context, authID string, mappings []models.AccountMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	return s.insertMappings(ctx, authID, mappings)
}

// insertMappings batch-inserts with unnest. Permissions are stored as a
// comma-joined text per row and split back into an array server-side.
func (s *PostgresStore) insertMappings(ctx context.Context, authID string, mappings []models.AccountMapping) error {
	ids := make([]string, len(mappings))
	accounts := make([]string, len(mappings))
	perms := make([]string, len(mappings))
	statuses := make([]string, len(mappings))
	for i, m := range mappings {
		ids[i] = m.ID
		accounts[i] = m.AccountID
		perms[i] = strings.Join(m.Permissions, ",")
		statuses[i] = m.Status
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO consent_account_mappings (id, authorization_id, account_id, permissions, status)
		SELECT m.id::uuid, $1, m.account_id, string_to_array(m.perms, ','), m.status
		FROM unnest($2::text[], $3::text[], $4::text[], $5::text[]) AS m(id, account_id, perms, status)
	`, authID, pq.Array(ids), pq.Array(accounts), pq.Array(perms), pq.Array(statuses))
	if err != nil {
		return translateWriteErr("insert account mappings", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func translateWriteErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return sentinel.ErrConflict
		case pqForeignKeyViolation:
			return sentinel.ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
