package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("nil tx leaves context untouched", func(t *testing.T) {
		got := WithTx(ctx, nil)
		assert.Equal(t, ctx, got)
		_, ok := From(got)
		assert.False(t, ok)
	})

	t.Run("round trips a transaction", func(t *testing.T) {
		tx := &sql.Tx{}
		got, ok := From(WithTx(ctx, tx))
		require.True(t, ok)
		assert.Same(t, tx, got)
	})
}

func TestQ(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, Q(context.Background(), db))

	tx := &sql.Tx{}
	assert.Same(t, tx, Q(WithTx(context.Background(), tx), db))
}

func TestRunJoinsExistingTransaction(t *testing.T) {
	outer := &sql.Tx{}
	ctx := WithTx(context.Background(), outer)

	var seen *sql.Tx
	err := Run(ctx, nil, "consent", func(ctx context.Context) error {
		seen, _ = From(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, outer, seen)
}
