// Package compliance records consent decisions with fail-closed semantics:
// the write is synchronous and its error fails the calling operation.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "obconsent/pkg/platform/audit"
	"obconsent/pkg/requestcontext"
)

// Publisher writes compliance events straight to an audit store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// New builds a publisher. Backed by the outbox store, the event commits in
// the same transaction as the consent binding that produced it.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and persists one event. Missing timestamp and request ID
// are taken from the request context.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	start := time.Now()
	err := p.store.Append(ctx, event.ToEvent())
	p.metrics.observe(time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "compliance audit write failed",
			"action", event.Action,
			"consent_id", event.ConsentID,
			"client_id", event.ClientID,
			"error", err,
		)
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}
	return nil
}
