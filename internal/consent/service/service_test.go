package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"obconsent/internal/consent/models"
	"obconsent/internal/consent/service/mocks"
	"obconsent/internal/consent/store"
	"obconsent/internal/platform/config"
	dErrors "obconsent/pkg/domain-errors"
	audit "obconsent/pkg/platform/audit"
	"obconsent/pkg/platform/audit/publishers/compliance"
	auditmemory "obconsent/pkg/platform/audit/store/memory"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	store     *store.InMemory
	auditLog  *auditmemory.InMemoryStore
	service   *Service
	discarder *slog.Logger
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithRequestID(s.ctx, "req-1")
	s.discarder = slog.New(slog.NewTextHandler(io.Discard, nil))

	s.store = store.NewInMemory()
	_, err := store.SeedConsents(context.Background(), s.store, []config.ConsentFixture{
		{ID: "c-1", ClientID: "tpp-1", Type: "accounts", AuthorizationID: "auth-1"},
	}, s.now.Add(-time.Hour))
	s.Require().NoError(err)

	s.auditLog = auditmemory.NewInMemoryStore()
	s.service = New(s.store,
		WithLogger(s.discarder),
		WithAuditor(compliance.New(s.auditLog)),
	)
}

func (s *ServiceSuite) TestGetConsent() {
	s.Run("loads existing consent", func() {
		c, err := s.service.GetConsent(s.ctx, "c-1", true)
		s.Require().NoError(err)
		s.Equal("tpp-1", c.ClientID)
	})

	s.Run("missing consent is not found", func() {
		_, err := s.service.GetConsent(s.ctx, "missing", true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty id is a bad request", func() {
		_, err := s.service.GetConsent(s.ctx, "", false)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestGetConsentForceFreshBypassesCache() {
	ctrl := gomock.NewController(s.T())
	mockStore := mocks.NewMockStore(ctrl)
	svc := New(mockStore, WithLogger(s.discarder))

	consent := &models.Consent{ID: "c-9", Status: models.ConsentStatusAwaitingAuthorisation}
	mockStore.EXPECT().FindByID(gomock.Any(), "c-9").Return(consent, nil).Times(2)

	_, err := svc.GetConsent(s.ctx, "c-9", false)
	s.Require().NoError(err)
	// cached
	_, err = svc.GetConsent(s.ctx, "c-9", false)
	s.Require().NoError(err)
	// fresh read goes to the store again
	_, err = svc.GetConsent(s.ctx, "c-9", true)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestGetConsentStoreFailureIsInternal() {
	ctrl := gomock.NewController(s.T())
	mockStore := mocks.NewMockStore(ctrl)
	svc := New(mockStore, WithLogger(s.discarder), WithCacheTTL(0))

	mockStore.EXPECT().FindByID(gomock.Any(), "c-1").Return(nil, errors.New("connection reset"))

	_, err := svc.GetConsent(s.ctx, "c-1", false)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestBindApproved() {
	consent, err := s.service.GetConsent(s.ctx, "c-1", true)
	s.Require().NoError(err)

	err = s.service.BindUserAccountsToConsent(s.ctx, models.Binding{
		Consent:         consent,
		UserID:          "alice",
		AuthorizationID: "auth-1",
		Accounts: models.AccountBindings{
			"acc-2": {models.PermissionPrimary},
			"acc-1": {models.PermissionPrimary},
		},
		AuthStatus:    models.AuthorizationStatusAuthorized,
		ConsentStatus: models.ConsentStatusAuthorized,
	})
	s.Require().NoError(err)

	updated, err := s.service.GetConsent(s.ctx, "c-1", false)
	s.Require().NoError(err)
	s.Equal(models.ConsentStatusAuthorized, updated.Status)
	s.Equal(s.now, updated.UpdatedAt)
	auth, ok := updated.Authorization("auth-1")
	s.Require().True(ok)
	s.Equal("alice", auth.UserID)
	s.Equal(models.AuthorizationStatusAuthorized, auth.Status)
	s.Require().Len(auth.Accounts, 2)
	s.Equal("acc-1", auth.Accounts[0].AccountID)
	s.Equal("acc-2", auth.Accounts[1].AccountID)

	events, err := s.auditLog.ListByConsent(s.ctx, "c-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventConsentAuthorized), events[0].Action)
	s.Equal("auth-1", events[0].Subject)
	s.Equal("req-1", events[0].RequestID)
}

func (s *ServiceSuite) TestBindRejectedEmitsRejection() {
	consent, err := s.service.GetConsent(s.ctx, "c-1", true)
	s.Require().NoError(err)

	err = s.service.BindUserAccountsToConsent(s.ctx, models.Binding{
		Consent:         consent,
		UserID:          "alice",
		AuthorizationID: "auth-1",
		Accounts:        models.AccountBindings{"n/a": {models.PermissionPrimary}},
		AuthStatus:      models.AuthorizationStatusRejected,
		ConsentStatus:   models.ConsentStatusRejected,
	})
	s.Require().NoError(err)

	events, err := s.auditLog.ListByConsent(s.ctx, "c-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventConsentRejected), events[0].Action)
}

func (s *ServiceSuite) TestBindValidation() {
	consent, err := s.service.GetConsent(s.ctx, "c-1", true)
	s.Require().NoError(err)

	s.Run("nil consent", func() {
		err := s.service.BindUserAccountsToConsent(s.ctx, models.Binding{AuthorizationID: "auth-1"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
	s.Run("unknown authorization", func() {
		err := s.service.BindUserAccountsToConsent(s.ctx, models.Binding{Consent: consent, AuthorizationID: "auth-x"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestBindFailsClosedOnAuditFailure() {
	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockComplianceAuditor(ctrl)
	svc := New(s.store, WithLogger(s.discarder), WithAuditor(auditor))

	consent, err := svc.GetConsent(s.ctx, "c-1", true)
	s.Require().NoError(err)

	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox unavailable"))

	err = svc.BindUserAccountsToConsent(s.ctx, models.Binding{
		Consent:         consent,
		UserID:          "alice",
		AuthorizationID: "auth-1",
		Accounts:        models.AccountBindings{"acc-1": {models.PermissionPrimary}},
		AuthStatus:      models.AuthorizationStatusAuthorized,
		ConsentStatus:   models.ConsentStatusAuthorized,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestBindStoreErrorsTranslate() {
	ctrl := gomock.NewController(s.T())
	mockStore := mocks.NewMockStore(ctrl)
	svc := New(mockStore, WithLogger(s.discarder))
	consent := &models.Consent{ID: "c-1", Authorizations: []models.Authorization{{ID: "auth-1"}}}
	binding := models.Binding{
		Consent:         consent,
		UserID:          "alice",
		AuthorizationID: "auth-1",
		Accounts:        models.AccountBindings{"acc-1": {models.PermissionPrimary}},
		AuthStatus:      models.AuthorizationStatusAuthorized,
		ConsentStatus:   models.ConsentStatusAuthorized,
	}

	s.Run("not found", func() {
		mockStore.EXPECT().UpdateAuthorization(gomock.Any(), "auth-1", "alice", models.AuthorizationStatusAuthorized, s.now).
			Return(sentinel.ErrNotFound)
		err := svc.BindUserAccountsToConsent(s.ctx, binding)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("conflict", func() {
		mockStore.EXPECT().UpdateAuthorization(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		mockStore.EXPECT().AddAccountMappings(gomock.Any(), "auth-1", gomock.Len(1)).Return(sentinel.ErrConflict)
		err := svc.BindUserAccountsToConsent(s.ctx, binding)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("cancelled context", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		err := svc.BindUserAccountsToConsent(ctx, binding)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *ServiceSuite) TestFailedBindLeavesStoredStateUnchanged() {
	approve := func(consent *models.Consent) models.Binding {
		return models.Binding{
			Consent:         consent,
			UserID:          "alice",
			AuthorizationID: "auth-1",
			Accounts:        models.AccountBindings{"acc-1": {models.PermissionPrimary}},
			AuthStatus:      models.AuthorizationStatusAuthorized,
			ConsentStatus:   models.ConsentStatusAuthorized,
		}
	}

	cases := []struct {
		name    string
		prepare func(svc *Service, consent *models.Consent)
		auditor func(ctrl *gomock.Controller) ComplianceAuditor
		binding func(consent *models.Consent) models.Binding
		code    dErrors.Code
	}{
		{
			name: "deny after approve on the same account",
			prepare: func(svc *Service, consent *models.Consent) {
				s.Require().NoError(svc.BindUserAccountsToConsent(s.ctx, approve(consent)))
			},
			binding: func(consent *models.Consent) models.Binding {
				b := approve(consent)
				b.AuthStatus = models.AuthorizationStatusRejected
				b.ConsentStatus = models.ConsentStatusRejected
				return b
			},
			code: dErrors.CodeConflict,
		},
		{
			name: "compliance write fails",
			auditor: func(ctrl *gomock.Controller) ComplianceAuditor {
				a := mocks.NewMockComplianceAuditor(ctrl)
				a.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox unavailable"))
				return a
			},
			binding: approve,
			code:    dErrors.CodeInternal,
		},
		{
			name: "authorization missing from the store",
			binding: func(consent *models.Consent) models.Binding {
				b := approve(consent)
				b.Consent = &models.Consent{ID: "c-1", Authorizations: []models.Authorization{{ID: "auth-9"}}}
				b.AuthorizationID = "auth-9"
				return b
			},
			code: dErrors.CodeNotFound,
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			st := store.NewInMemory()
			_, err := store.SeedConsents(context.Background(), st, []config.ConsentFixture{
				{ID: "c-1", ClientID: "tpp-1", Type: "accounts", AuthorizationID: "auth-1"},
			}, s.now.Add(-time.Hour))
			s.Require().NoError(err)

			var auditor ComplianceAuditor = compliance.New(auditmemory.NewInMemoryStore())
			if tc.auditor != nil {
				auditor = tc.auditor(gomock.NewController(s.T()))
			}
			svc := New(st, WithLogger(s.discarder), WithAuditor(auditor), WithCacheTTL(0))

			consent, err := svc.GetConsent(s.ctx, "c-1", true)
			s.Require().NoError(err)
			if tc.prepare != nil {
				tc.prepare(svc, consent)
			}
			before, err := st.FindByID(s.ctx, "c-1")
			s.Require().NoError(err)

			err = svc.BindUserAccountsToConsent(s.ctx, tc.binding(consent))
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)

			after, err := st.FindByID(s.ctx, "c-1")
			s.Require().NoError(err)
			s.Equal(before.Status, after.Status)
			auth, ok := after.Authorization("auth-1")
			s.Require().True(ok)
			prev, _ := before.Authorization("auth-1")
			s.Equal(prev.Status, auth.Status)
			s.Equal(before, after)
		})
	}
}
