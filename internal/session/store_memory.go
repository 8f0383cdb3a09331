package session

import (
	"context"
	"errors"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"obconsent/pkg/platform/sentinel"
)

// DefaultTTL bounds how long an authorize session stays resumable.
const DefaultTTL = 15 * time.Minute

var errEmptyKey = errors.New("session data key is required")

// InMemory keeps sessions in a process-local expiring cache.
type InMemory struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewInMemory creates an in-memory store. A non-positive ttl selects DefaultTTL.
func NewInMemory(ttl time.Duration) *InMemory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemory{cache: gocache.New(ttl, 2*ttl), ttl: ttl}
}

func (s *InMemory) Save(_ context.Context, d *Data) error {
	if d == nil || d.SessionDataKey == "" {
		return errEmptyKey
	}
	cp := *d
	cp.Scopes = slices.Clone(d.Scopes)
	s.cache.Set(sessionKey(d.SessionDataKey), &cp, gocache.DefaultExpiration)
	return nil
}

func (s *InMemory) Get(_ context.Context, key string) (*Data, error) {
	v, ok := s.cache.Get(sessionKey(key))
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *v.(*Data)
	cp.Scopes = slices.Clone(cp.Scopes)
	return &cp, nil
}

func (s *InMemory) Delete(_ context.Context, key string) error {
	s.cache.Delete(sessionKey(key))
	return nil
}

func (s *InMemory) SaveClaims(_ context.Context, key string, refresh bool, claims []RequestedClaim) error {
	if key == "" {
		return errEmptyKey
	}
	s.cache.Set(claimsKey(key, refresh), slices.Clone(claims), gocache.DefaultExpiration)
	return nil
}

// RequestedClaims returns the claims stored for key, nil when none were registered.
func (s *InMemory) RequestedClaims(_ context.Context, key string, refresh bool) ([]RequestedClaim, error) {
	v, ok := s.cache.Get(claimsKey(key, refresh))
	if !ok {
		return nil, nil
	}
	return slices.Clone(v.([]RequestedClaim)), nil
}

// Register stores the session and both claim sets.
func (s *InMemory) Register(ctx context.Context, d *Data, primary, refresh []RequestedClaim) error {
	if err := s.Save(ctx, d); err != nil {
		return err
	}
	if err := s.SaveClaims(ctx, d.SessionDataKey, false, primary); err != nil {
		return err
	}
	return s.SaveClaims(ctx, d.SessionDataKey, true, refresh)
}
