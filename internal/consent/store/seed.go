package store

import (
	"context"
	"errors"
	"time"

	"obconsent/internal/consent/models"
	"obconsent/internal/platform/config"
	"obconsent/pkg/platform/sentinel"
)

// Creator is the write side used by seeding.
type Creator interface {
	Create(ctx context.Context, consent *models.Consent) error
}

// SeedConsents loads fixture consents awaiting authorization. Fixtures that
// already exist are skipped so seeding is repeatable.
func SeedConsents(ctx context.Context, store Creator, fixtures []config.ConsentFixture, now time.Time) (int, error) {
	created := 0
	for _, f := range fixtures {
		c := &models.Consent{
			ID:        f.ID,
			ClientID:  f.ClientID,
			Type:      f.Type,
			Receipt:   f.Receipt,
			Status:    models.ConsentStatusAwaitingAuthorisation,
			CreatedAt: now,
			UpdatedAt: now,
			Authorizations: []models.Authorization{{
				ID:        f.AuthorizationID,
				ConsentID: f.ID,
				Type:      models.AuthorizationTypeDefault,
				UserID:    f.UserID,
				Status:    models.AuthorizationStatusCreated,
				UpdatedAt: now,
			}},
		}
		if err := store.Create(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
