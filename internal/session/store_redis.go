package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"obconsent/pkg/platform/sentinel"
)

const keyPrefix = "obconsent:"

func sessionKey(key string) string {
	return keyPrefix + "session:" + key
}

func claimsKey(key string, refresh bool) string {
	if refresh {
		return keyPrefix + "claims:refresh:" + key
	}
	return keyPrefix + "claims:primary:" + key
}

// RedisStore shares session data between instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedis constructs a Redis-backed store. The client lifecycle is managed by the caller.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Save(ctx context.Context, d *Data) error {
	if d == nil || d.SessionDataKey == "" {
		return errEmptyKey
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, sessionKey(d.SessionDataKey), raw, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Data, error) {
	raw, err := s.client.Get(ctx, sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &d, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, sessionKey(key)).Err()
}

func (s *RedisStore) SaveClaims(ctx context.Context, key string, refresh bool, claims []RequestedClaim) error {
	if key == "" {
		return errEmptyKey
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}
	return s.client.Set(ctx, claimsKey(key, refresh), raw, s.ttl).Err()
}

func (s *RedisStore) RequestedClaims(ctx context.Context, key string, refresh bool) ([]RequestedClaim, error) {
	raw, err := s.client.Get(ctx, claimsKey(key, refresh)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get claims: %w", err)
	}
	var claims []RequestedClaim
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	return claims, nil
}

// Register stores the session and both claim sets in one round trip.
func (s *RedisStore) Register(ctx context.Context, d *Data, primary, refresh []RequestedClaim) error {
	if d == nil || d.SessionDataKey == "" {
		return errEmptyKey
	}
	sess, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	p, err := json.Marshal(primary)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}
	r, err := json.Marshal(refresh)
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(d.SessionDataKey), sess, s.ttl)
	pipe.Set(ctx, claimsKey(d.SessionDataKey, false), p, s.ttl)
	pipe.Set(ctx, claimsKey(d.SessionDataKey, true), r, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}
