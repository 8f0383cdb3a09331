package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"obconsent/internal/consent/models"
	"obconsent/pkg/platform/sentinel"
)

// InMemory is the consent store used when no database is configured.
// Every read returns a deep copy.
type InMemory struct {
	txMu     sync.Mutex
	mu       sync.RWMutex
	consents map[string]*models.Consent
	authIdx  map[string]string // authorization id -> consent id
}

type journalKey struct{}

// journal holds the pre-transaction copy of every consent a transaction touched.
type journal struct {
	before map[string]*models.Consent
}

// RunInTx serialises transactions and, when fn fails, restores every consent
// fn modified, so a binding either fully applies or leaves no trace.
// Nested calls join the outer transaction.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &journal{before: make(map[string]*models.Consent)}
	err := fn(context.WithValue(ctx, journalKey{}, j))
	if err != nil {
		s.mu.Lock()
		for id, c := range j.before {
			s.consents[id] = c
		}
		s.mu.Unlock()
	}
	return err
}

// recordLocked snapshots consent id once per transaction. Caller holds s.mu.
func (s *InMemory) recordLocked(ctx context.Context, id string) {
	j, ok := ctx.Value(journalKey{}).(*journal)
	if !ok {
		return
	}
	if _, seen := j.before[id]; seen {
		return
	}
	if c, exists := s.consents[id]; exists {
		j.before[id] = c.Clone()
	}
}

func NewInMemory() *InMemory {
	return &InMemory{
		consents: make(map[string]*models.Consent),
		authIdx:  make(map[string]string),
	}
}

func (s *InMemory) Create(_ context.Context, consent *models.Consent) error {
	if consent == nil {
		return fmt.Errorf("consent is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.consents[consent.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, a := range consent.Authorizations {
		if _, exists := s.authIdx[a.ID]; exists {
			return sentinel.ErrConflict
		}
	}
	c := consent.Clone()
	s.consents[c.ID] = c
	for _, a := range c.Authorizations {
		s.authIdx[a.ID] = c.ID
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemory) UpdateStatus(ctx context.Context, id string, status models.ConsentStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consents[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.recordLocked(ctx, id)
	c.Status = status
	c.UpdatedAt = at
	return nil
}

func (s *InMemory) UpdateAuthorization(ctx context.Context, authID, userID string, status models.AuthorizationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	auth, err := s.authorizationLocked(authID)
	if err != nil {
		return err
	}
	s.recordLocked(ctx, s.authIdx[authID])
	auth.UserID = userID
	auth.Status = status
	auth.UpdatedAt = at
	return nil
}

func (s *InMemory) AddAccountMappings(ctx context.Context, authID string, mappings []models.AccountMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	auth, err := s.authorizationLocked(authID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		for _, existing := range auth.Accounts {
			if existing.AccountID == m.AccountID {
				return sentinel.ErrConflict
			}
		}
	}
	s.recordLocked(ctx, s.authIdx[authID])
	for _, m := range mappings {
		m.AuthorizationID = authID
		auth.Accounts = append(auth.Accounts, m)
	}
	return nil
}

func (s *InMemory) authorizationLocked(authID string) (*models.Authorization, error) {
	consentID, ok := s.authIdx[authID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	auth, ok := s.consents[consentID].Authorization(authID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return auth, nil
}
