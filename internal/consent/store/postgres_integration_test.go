//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"obconsent/internal/consent/models"
	"obconsent/internal/consent/store"
	"obconsent/internal/platform/postgres"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "consent_account_mappings", "consent_authorizations", "consents", "outbox")
	s.Require().NoError(err)
}

func newConsent(now time.Time) *models.Consent {
	id := uuid.NewString()
	return &models.Consent{
		ID:        id,
		ClientID:  "tpp-1",
		Type:      "accounts",
		Receipt:   `{"Data":{"Permissions":["ReadAccountsBasic"]}}`,
		Status:    models.ConsentStatusAwaitingAuthorisation,
		CreatedAt: now,
		UpdatedAt: now,
		Authorizations: []models.Authorization{{
			ID:        uuid.NewString(),
			ConsentID: id,
			Type:      models.AuthorizationTypeDefault,
			Status:    models.AuthorizationStatusCreated,
			UpdatedAt: now,
		}},
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := newConsent(now)
	s.Require().NoError(s.store.Create(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.ClientID, found.ClientID)
	s.Equal(models.ConsentStatusAwaitingAuthorisation, found.Status)
	s.JSONEq(c.Receipt, found.Receipt)
	s.Require().Len(found.Authorizations, 1)
	s.Empty(found.Authorizations[0].UserID)

	s.ErrorIs(s.store.Create(ctx, c), sentinel.ErrConflict)

	_, err = s.store.FindByID(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestBindingInTransaction() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := newConsent(now)
	s.Require().NoError(s.store.Create(ctx, c))
	authID := c.Authorizations[0].ID

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, c.ID, models.ConsentStatusAuthorized, now); err != nil {
			return err
		}
		if err := s.store.UpdateAuthorization(ctx, authID, "alice", models.AuthorizationStatusAuthorized, now); err != nil {
			return err
		}
		return s.store.AddAccountMappings(ctx, authID, []models.AccountMapping{
			{ID: uuid.NewString(), AccountID: "acc-2", Permissions: []string{models.PermissionPrimary}, Status: models.MappingStatusActive},
			{ID: uuid.NewString(), AccountID: "acc-1", Permissions: []string{models.PermissionPrimary}, Status: models.MappingStatusActive},
		})
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.ConsentStatusAuthorized, found.Status)
	auth := found.Authorizations[0]
	s.Equal("alice", auth.UserID)
	s.Require().Len(auth.Accounts, 2)
	s.Equal("acc-1", auth.Accounts[0].AccountID)
	s.Equal([]string{models.PermissionPrimary}, auth.Accounts[0].Permissions)
}

func (s *PostgresStoreSuite) TestRollbackOnError() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := newConsent(now)
	s.Require().NoError(s.store.Create(ctx, c))

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateStatus(ctx, c.ID, models.ConsentStatusRejected, now); err != nil {
			return err
		}
		return s.store.UpdateAuthorization(ctx, "missing-auth", "alice", models.AuthorizationStatusRejected, now)
	})
	s.ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.ConsentStatusAwaitingAuthorisation, found.Status)
}
