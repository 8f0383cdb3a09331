package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"obconsent/pkg/platform/audit/publishers/kafka"
	"obconsent/pkg/platform/audit/store/postgres"
)

// Outbox is the pending-entry side of the audit outbox.
type Outbox interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Sink receives relayed audit records.
type Sink interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

// Worker relays committed outbox entries to the sink. Entries are marked
// published in the same transaction that locked them, so a failed publish
// leaves them pending for the next tick.
type Worker struct {
	outbox   Outbox
	sink     Sink
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewWorker(outbox Outbox, sink Sink, interval time.Duration, batch int, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Worker{outbox: outbox, sink: sink, interval: interval, batch: batch, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RelayOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were relayed.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	relayed := 0
	err := w.outbox.RunInTx(ctx, func(ctx context.Context) error {
		entries, err := w.outbox.FetchUnpublished(ctx, w.batch)
		if err != nil || len(entries) == 0 {
			return err
		}
		msgs := make([]kafka.Message, len(entries))
		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			msgs[i] = kafka.Message{Key: e.AggregateID, Value: e.Payload}
			ids[i] = e.ID
		}
		if err := w.sink.Publish(ctx, msgs); err != nil {
			return err
		}
		relayed = len(entries)
		return w.outbox.MarkPublished(ctx, ids, time.Now())
	})
	if err != nil {
		return 0, err
	}
	return relayed, nil
}
