// Package oauth2ext holds the hooks the identity server calls while issuing
// authorization codes and tokens for consent-bound requests.
package oauth2ext

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"obconsent/internal/authorize/metrics"
	"obconsent/internal/session"
	audit "obconsent/pkg/platform/audit"
	"obconsent/pkg/requestcontext"
)

// APIStoreScope marks API-store tokens, which are never consent bound.
const APIStoreScope = "api_store"

// ClaimsLookup returns the claims requested for a session data key.
type ClaimsLookup interface {
	RequestedClaims(ctx context.Context, key string, refresh bool) ([]session.RequestedClaim, error)
}

// AuthorizeRequest is the identity server's view of an authorize request at
// the point approved scopes are computed.
type AuthorizeRequest struct {
	SessionDataKey       string        `json:"sessionDataKey"`
	ClientID             string        `json:"clientId"`
	ApprovedScopes       []string      `json:"approvedScopes"`
	RefreshTokenValidity time.Duration `json:"refreshTokenValidity"`
}

// ScopeInjector appends the consent scope, <prefix><consent id>, to approved scopes.
type ScopeInjector struct {
	claims    ClaimsLookup
	regulated RegulatedClients
	prefix    string
	auditLog  audit.Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a ScopeInjector.
type Option func(*ScopeInjector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ScopeInjector) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ScopeInjector) {
		s.metrics = m
	}
}

// WithRegulatedClients sets the clients that receive the consent scope.
// Without it no client does.
func WithRegulatedClients(ids ...string) Option {
	return func(s *ScopeInjector) {
		s.regulated = NewRegulatedClients(ids...)
	}
}

// WithAuditLog records each injected scope. Writes are best effort.
func WithAuditLog(store audit.Store) Option {
	return func(s *ScopeInjector) {
		s.auditLog = store
	}
}

// NewScopeInjector creates the hook. An empty prefix disables injection.
func NewScopeInjector(claims ClaimsLookup, prefix string, opts ...Option) *ScopeInjector {
	s := &ScopeInjector{claims: claims, prefix: prefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateApprovedScopes returns the approved scopes with the consent scope
// appended once for a regulated client. It never fails: for other clients,
// or when the consent id cannot be resolved, the scopes are returned unchanged.
func (s *ScopeInjector) UpdateApprovedScopes(ctx context.Context, req *AuthorizeRequest) []string {
	if req == nil {
		return []string{}
	}
	scopes := req.ApprovedScopes
	if scopes == nil || !s.regulated.Contains(req.ClientID) || slices.Contains(scopes, APIStoreScope) {
		return scopes
	}

	consentID := s.consentID(ctx, req.SessionDataKey)
	if consentID == "" {
		s.logger.WarnContext(ctx, "consent id not found in requested claims",
			"client_id", req.ClientID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return scopes
	}
	if s.prefix == "" {
		s.logger.WarnContext(ctx, "consent id claim prefix not configured")
		return scopes
	}

	consentScope := s.prefix + consentID
	if slices.Contains(scopes, consentScope) {
		return scopes
	}
	updated := append(slices.Clone(scopes), consentScope)
	s.metrics.IncScopeInjection()
	s.record(ctx, req, consentID)
	s.logger.DebugContext(ctx, "consent scope appended",
		"scopes", strings.Join(updated, " "),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated
}

// UpdateRefreshTokenValidity keeps the validity the identity server computed.
func (s *ScopeInjector) UpdateRefreshTokenValidity(_ context.Context, req *AuthorizeRequest) time.Duration {
	if req == nil {
		return 0
	}
	return req.RefreshTokenValidity
}

// consentID reads the intent-id claim from the primary claim set, then from
// the refresh set. Lookup failures are logged and read as "no consent".
func (s *ScopeInjector) consentID(ctx context.Context, key string) string {
	if key == "" || s.claims == nil {
		return ""
	}
	for _, refresh := range []bool{false, true} {
		claims, err := s.claims.RequestedClaims(ctx, key, refresh)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to read requested claims",
				"refresh", refresh,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			return ""
		}
		if id := session.IntentID(claims); id != "" {
			return id
		}
	}
	return ""
}

func (s *ScopeInjector) record(ctx context.Context, req *AuthorizeRequest, consentID string) {
	if s.auditLog == nil {
		return
	}
	err := s.auditLog.Append(ctx, audit.Event{
		Category:  audit.EventConsentScopeInjected.Category(),
		Timestamp: requestcontext.Now(ctx),
		ConsentID: consentID,
		ClientID:  req.ClientID,
		Subject:   req.SessionDataKey,
		Action:    string(audit.EventConsentScopeInjected),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record audit event", "error", err)
	}
}
