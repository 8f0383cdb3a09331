package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obconsent/pkg/platform/audit/publishers/kafka"
	"obconsent/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	entries   []postgres.Entry
	published []uuid.UUID
}

func (f *fakeOutbox) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]postgres.Entry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	f.published = append(f.published, ids...)
	return nil
}

type fakeSink struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeSink) Publish(_ context.Context, msgs []kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestRelayOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e1 := postgres.Entry{ID: uuid.New(), AggregateID: "c-1", Payload: []byte(`{"action":"consent_authorized"}`)}
	e2 := postgres.Entry{ID: uuid.New(), AggregateID: "c-2", Payload: []byte(`{"action":"consent_rejected"}`)}

	t.Run("publishes and marks batch", func(t *testing.T) {
		outbox := &fakeOutbox{entries: []postgres.Entry{e1, e2}}
		sink := &fakeSink{}
		w := NewWorker(outbox, sink, time.Second, 10, logger)

		n, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []uuid.UUID{e1.ID, e2.ID}, outbox.published)
		require.Len(t, sink.msgs, 2)
		assert.Equal(t, "c-1", sink.msgs[0].Key)
	})

	t.Run("leaves entries pending when publish fails", func(t *testing.T) {
		outbox := &fakeOutbox{entries: []postgres.Entry{e1}}
		sink := &fakeSink{err: errors.New("broker down")}
		w := NewWorker(outbox, sink, time.Second, 10, logger)

		n, err := w.RelayOnce(context.Background())
		require.Error(t, err)
		assert.Zero(t, n)
		assert.Empty(t, outbox.published)
	})

	t.Run("empty outbox is a no-op", func(t *testing.T) {
		w := NewWorker(&fakeOutbox{}, &fakeSink{}, 0, 0, logger)
		n, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
