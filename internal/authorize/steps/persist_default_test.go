package steps_test

//go:generate mockgen -source=steps.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"obconsent/internal/authorize/consenterr"
	"obconsent/internal/authorize/models"
	"obconsent/internal/authorize/payload"
	"obconsent/internal/authorize/steps"
	"obconsent/internal/authorize/steps/mocks"
	consentmodels "obconsent/internal/consent/models"
	dErrors "obconsent/pkg/domain-errors"
)

type PersistStepSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	consents *mocks.MockConsentService
	step     steps.PersistStep
	consent  *consentmodels.Consent
	redirect *url.URL
}

func TestPersistStepSuite(t *testing.T) {
	suite.Run(t, new(PersistStepSuite))
}

func (s *PersistStepSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.consents = mocks.NewMockConsentService(s.ctrl)

	step, err := steps.NewDefaultPersistStep(steps.Deps{
		Consents: s.consents,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.Require().NoError(err)
	s.step = step

	s.consent = &consentmodels.Consent{
		ID:     "c-1",
		Status: consentmodels.ConsentStatusAwaitingAuthorisation,
		Authorizations: []consentmodels.Authorization{
			{ID: "auth-1", ConsentID: "c-1", Status: consentmodels.AuthorizationStatusCreated},
		},
	}
	s.redirect, err = url.Parse("https://tpp.example.com/cb")
	s.Require().NoError(err)
}

func (s *PersistStepSuite) persistData(approved bool, body string) *models.ConsentPersistData {
	return &models.ConsentPersistData{
		ConsentData: &models.ConsentData{
			SessionDataKey: "sdk-1",
			ConsentID:      "c-1",
			Consent:        s.consent,
			AuthResource:   &s.consent.Authorizations[0],
			UserID:         "user-1",
			RedirectURI:    s.redirect,
			State:          "xyz",
		},
		Approved: approved,
		Payload:  []byte(body),
	}
}

func (s *PersistStepSuite) requireConsentErr(err error) *consenterr.Error {
	s.Require().Error(err)
	ce, ok := consenterr.As(err)
	s.Require().True(ok, "expected consent error, got %v", err)
	return ce
}

func (s *PersistStepSuite) TestFactoryRequiresConsentService() {
	_, err := steps.NewDefaultPersistStep(steps.Deps{})
	s.Error(err)
}

func (s *PersistStepSuite) TestMissingConsentFailsBeforeStorage() {
	s.Run("redirect error when redirect uri is known", func() {
		data := s.persistData(true, `{"accountIds":["acc-1"]}`)
		data.ConsentID = ""
		data.Consent = nil

		ce := s.requireConsentErr(s.step.Execute(s.ctx, data))
		s.Equal(consenterr.KindRedirect, ce.Kind)
		s.Equal(http.StatusFound, ce.Status)
		s.Equal(string(consenterr.CodeServerError), ce.Payload.Error)
		s.Equal("Consent ID not available in consent data", ce.Payload.ErrorDescription)
		s.Equal("xyz", ce.Payload.State)
		s.Equal("https://tpp.example.com/cb", ce.Payload.RedirectURI)
	})

	s.Run("server error without redirect uri", func() {
		data := s.persistData(true, `{"accountIds":["acc-1"]}`)
		data.ConsentID = ""
		data.Consent = nil
		data.RedirectURI = nil

		ce := s.requireConsentErr(s.step.Execute(s.ctx, data))
		s.Equal(consenterr.KindServer, ce.Kind)
		s.Equal(http.StatusInternalServerError, ce.Status)
		s.Empty(ce.Payload.RedirectURI)
	})
}

func (s *PersistStepSuite) TestLoadsConsentWithFreshRead() {
	data := s.persistData(true, `{"accountIds":["acc-1"]}`)
	data.Consent = nil

	gomock.InOrder(
		s.consents.EXPECT().GetConsent(gomock.Any(), "c-1", true).Return(s.consent, nil),
		s.consents.EXPECT().BindUserAccountsToConsent(gomock.Any(), gomock.Any()).Return(nil),
	)

	s.Require().NoError(s.step.Execute(s.ctx, data))
	s.Same(s.consent, data.Consent)
}

func (s *PersistStepSuite) TestConsentLoadFailureIsInternal() {
	data := s.persistData(true, `{"accountIds":["acc-1"]}`)
	data.Consent = nil
	s.consents.EXPECT().GetConsent(gomock.Any(), "c-1", true).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "consent not found"))

	ce := s.requireConsentErr(s.step.Execute(s.ctx, data))
	s.Equal(http.StatusInternalServerError, ce.Status)
	s.Equal("Exception occurred while persisting consent", ce.Payload.ErrorDescription)
}

func (s *PersistStepSuite) TestMissingAuthResource() {
	data := s.persistData(true, `{"accountIds":["acc-1"]}`)
	data.AuthResource = nil

	ce := s.requireConsentErr(s.step.Execute(s.ctx, data))
	s.Equal(string(consenterr.CodeServerError), ce.Payload.Error)
	s.Equal("Auth resource not available in consent data", ce.Payload.ErrorDescription)
}

func (s *PersistStepSuite) TestApprovedAccountList() {
	data := s.persistData(true, `{"accountIds":["acc-1","acc-2"]}`)
	s.consents.EXPECT().BindUserAccountsToConsent(gomock.Any(), consentmodels.Binding{
		Consent:         s.consent,
		UserID:          "user-1",
		AuthorizationID: "auth-1",
		Accounts: consentmodels.AccountBindings{
			"acc-1": {consentmodels.PermissionPrimary},
			"acc-2": {consentmodels.PermissionPrimary},
		},
		AuthStatus:    consentmodels.AuthorizationStatusAuthorized,
		ConsentStatus: consentmodels.ConsentStatusAuthorized,
	}).Return(nil)

	s.NoError(s.step.Execute(s.ctx, data))
}

func (s *PersistStepSuite) TestRejectedWithBlankAccount() {
	data := s.persistData(false, `{"accountIds":["acc-1",""]}`)
	s.consents.EXPECT().BindUserAccountsToConsent(gomock.Any(), consentmodels.Binding{
		Consent:         s.consent,
		UserID:          "user-1",
		AuthorizationID: "auth-1",
		Accounts: consentmodels.AccountBindings{
			"acc-1": {consentmodels.PermissionPrimary},
			"n/a":   {consentmodels.PermissionPrimary},
		},
		AuthStatus:    consentmodels.AuthorizationStatusRejected,
		ConsentStatus: consentmodels.ConsentStatusRejected,
	}).Return(nil)

	s.NoError(s.step.Execute(s.ctx, data))
}

func (s *PersistStepSuite) TestApprovedBlankAccountIsRejectedWithoutStorage() {
	data := s.persistData(true, `{"accountIds":[""]}`)

	ce := s.requireConsentErr(s.step.Execute(s.ctx, data))
	s.Equal(consenterr.KindValidation, ce.Kind)
	s.Equal(http.StatusBadRequest, ce.Status)
	s.Equal(payload.ErrAccountIDNotFound, ce.Payload.ErrorDescription)
}

func (s *PersistStepSuite) TestPaymentAccountWins() {
	data := s.persistData(true, `{"paymentAccount":"pay-9","accountIds":["acc-1"]}`)
	s.consents.EXPECT().BindUserAccountsToConsent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, b consentmodels.Binding) error {
			s.Equal(consentmodels.AccountBindings{"pay-9": {consentmodels.PermissionPrimary}}, b.Accounts)
			return nil
		})

	s.NoError(s.step.Execute(s.ctx, data))
}

func (s *PersistStepSuite) TestFormatErrorWithoutStorage() {
	data := s.persistData(true, `{"accountIds":["acc-1",3]}`)

	ce := s.requireConsentErr(s.step.Execute(s.ctx, data))
	s.Equal(payload.ErrAccountIDFormat, ce.Payload.ErrorDescription)
}

func (s *PersistStepSuite) TestBindFailureHidesCause() {
	data := s.persistData(true, `{"accountIds":["acc-1"]}`)
	cause := errors.New("pq: connection refused")
	s.consents.EXPECT().BindUserAccountsToConsent(gomock.Any(), gomock.Any()).Return(cause)

	ce := s.requireConsentErr(s.step.Execute(s.ctx, data))
	s.Equal(consenterr.KindServer, ce.Kind)
	s.Equal(http.StatusInternalServerError, ce.Status)
	s.Equal("Exception occurred while persisting consent", ce.Payload.ErrorDescription)
	s.NotContains(ce.Payload.ErrorDescription, "connection refused")
	s.ErrorIs(ce, cause)
}
