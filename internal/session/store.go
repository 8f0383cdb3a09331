package session

import "context"

// Store is implemented by InMemory and RedisStore.
type Store interface {
	Register(ctx context.Context, d *Data, primary, refresh []RequestedClaim) error
	Save(ctx context.Context, d *Data) error
	Get(ctx context.Context, key string) (*Data, error)
	Delete(ctx context.Context, key string) error
	SaveClaims(ctx context.Context, key string, refresh bool, claims []RequestedClaim) error
	RequestedClaims(ctx context.Context, key string, refresh bool) ([]RequestedClaim, error)
}

var (
	_ Store = (*InMemory)(nil)
	_ Store = (*RedisStore)(nil)
)
