package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"obconsent/internal/consent/models"
	dErrors "obconsent/pkg/domain-errors"
	audit "obconsent/pkg/platform/audit"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/requestcontext"
)

// Store is the persistence port for consents.
type Store interface {
	FindByID(ctx context.Context, id string) (*models.Consent, error)
	UpdateStatus(ctx context.Context, id string, status models.ConsentStatus, at time.Time) error
	UpdateAuthorization(ctx context.Context, authID, userID string, status models.AuthorizationStatus, at time.Time) error
	AddAccountMappings(ctx context.Context, authID string, mappings []models.AccountMapping) error
}

// ComplianceAuditor records consent decisions with fail-closed semantics.
type ComplianceAuditor interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

const defaultCacheTTL = time.Minute

// Service loads consents and commits user decisions against them.
type Service struct {
	store    Store
	tx       TxRunner
	cache    *gocache.Cache
	auditor  ComplianceAuditor
	logger   *slog.Logger
	cacheTTL time.Duration
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTx sets the transactional boundary. Defaults to the store itself when it
// runs transactions, otherwise to an in-process sharded lock.
func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithCacheTTL sets how long non-fresh reads may be served from cache. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheTTL = ttl
	}
}

// WithAuditor sets the compliance auditor notified on every binding.
func WithAuditor(a ComplianceAuditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		if runner, ok := store.(TxRunner); ok {
			s.tx = runner
		} else {
			s.tx = newShardedConsentTx()
		}
	}
	if s.cacheTTL > 0 {
		s.cache = gocache.New(s.cacheTTL, 2*s.cacheTTL)
	}
	return s
}

func (s *Service) evict(id string) {
	if s.cache != nil {
		s.cache.Delete(id)
	}
}

// GetConsent loads a consent. forceFresh bypasses the read cache.
func (s *Service) GetConsent(ctx context.Context, id string, forceFresh bool) (*models.Consent, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent id is required")
	}
	if !forceFresh && s.cache != nil {
		if cached, ok := s.cache.Get(id); ok {
			return cached.(*models.Consent).Clone(), nil
		}
	}

	consent, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}
	if s.cache != nil {
		s.cache.Set(id, consent.Clone(), gocache.DefaultExpiration)
	}
	return consent, nil
}

// BindUserAccountsToConsent commits the user's decision: the authorization
// moves to AuthStatus with the selected accounts mapped to it, and the consent
// moves to ConsentStatus. All writes and the compliance event commit together.
func (s *Service) BindUserAccountsToConsent(ctx context.Context, b models.Binding) error {
	if b.Consent == nil {
		return dErrors.New(dErrors.CodeBadRequest, "consent is required")
	}
	if b.AuthorizationID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "authorization id is required")
	}
	if _, ok := b.Consent.Authorization(b.AuthorizationID); !ok {
		return dErrors.New(dErrors.CodeNotFound, "authorization not found on consent")
	}

	now := requestcontext.Now(ctx)
	mappings := make([]models.AccountMapping, 0, len(b.Accounts))
	for _, accountID := range b.Accounts.AccountIDs() {
		mappings = append(mappings, models.AccountMapping{
			ID:              uuid.NewString(),
			AuthorizationID: b.AuthorizationID,
			AccountID:       accountID,
			Permissions:     b.Accounts[accountID],
			Status:          models.MappingStatusActive,
		})
	}

	consentID := b.Consent.ID
	err := s.tx.RunInTx(withTxConsent(ctx, consentID), func(ctx context.Context) error {
		if err := s.store.UpdateAuthorization(ctx, b.AuthorizationID, b.UserID, b.AuthStatus, now); err != nil {
			return err
		}
		if err := s.store.AddAccountMappings(ctx, b.AuthorizationID, mappings); err != nil {
			return err
		}
		if err := s.store.UpdateStatus(ctx, consentID, b.ConsentStatus, now); err != nil {
			return err
		}
		return s.emitDecision(ctx, b, now)
	})
	s.evict(consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "consent or authorization not found")
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "account already bound to authorization")
		}
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "consent binding aborted")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind accounts to consent")
	}

	s.logger.InfoContext(ctx, "consent decision bound",
		"consent_id", consentID,
		"authorization_id", b.AuthorizationID,
		"consent_status", b.ConsentStatus,
		"accounts", len(mappings),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) emitDecision(ctx context.Context, b models.Binding, now time.Time) error {
	if s.auditor == nil {
		return nil
	}
	action := audit.EventConsentRejected
	if b.ConsentStatus == models.ConsentStatusAuthorized {
		action = audit.EventConsentAuthorized
	}
	return s.auditor.Emit(ctx, audit.ComplianceEvent{
		Timestamp: now,
		UserID:    b.UserID,
		ConsentID: b.Consent.ID,
		ClientID:  b.Consent.ClientID,
		Subject:   b.AuthorizationID,
		Action:    action,
		Decision:  string(b.ConsentStatus),
		RequestID: requestcontext.RequestID(ctx),
	})
}
