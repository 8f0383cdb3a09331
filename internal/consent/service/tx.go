package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "obconsent/pkg/domain-errors"
)

// TxRunner provides the transactional boundary for a consent binding.
// The Postgres store opens a database transaction and the in-memory store
// rolls back from a journal. The sharded lock only serialises bindings for
// stores that cannot do either.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const numConsentShards = 64

// defaultConsentTxTimeout is the maximum duration for a consent transaction.
const defaultConsentTxTimeout = 5 * time.Second

type shardedConsentTx struct {
	shards  [numConsentShards]sync.Mutex
	timeout time.Duration
}

func newShardedConsentTx() *shardedConsentTx {
	return &shardedConsentTx{timeout: defaultConsentTxTimeout}
}

func (t *shardedConsentTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// selectShard picks a shard from the consent id on the context, or shard 0.
func (t *shardedConsentTx) selectShard(ctx context.Context) int {
	if consentID, ok := ctx.Value(txConsentKeyCtx).(string); ok && consentID != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(consentID))
		return int(h.Sum32() % numConsentShards)
	}
	return 0
}

type txConsentKey struct{}

var txConsentKeyCtx = txConsentKey{}

func withTxConsent(ctx context.Context, consentID string) context.Context {
	return context.WithValue(ctx, txConsentKeyCtx, consentID)
}
