package steps

import (
	"context"
	"errors"
	"log/slog"

	"obconsent/internal/authorize/consenterr"
	"obconsent/internal/authorize/models"
	"obconsent/internal/authorize/payload"
	consentmodels "obconsent/internal/consent/models"
	"obconsent/pkg/requestcontext"
)

// Built-in step names.
const (
	StepDefaultPersist = "default-persist"
	StepConsentDetails = "consent-details"
	StepAccountList    = "account-list"
)

const (
	msgConsentIDMissing    = "Consent ID not available in consent data"
	msgAuthResourceMissing = "Auth resource not available in consent data"
)

// DefaultPersistStep binds the user's selected accounts to the consent and
// moves the consent and its authorization to the decided status.
type DefaultPersistStep struct {
	consents ConsentService
	logger   *slog.Logger
}

// NewDefaultPersistStep is the registry factory for StepDefaultPersist.
func NewDefaultPersistStep(deps Deps) (PersistStep, error) {
	if deps.Consents == nil {
		return nil, errors.New("consent service is required")
	}
	return &DefaultPersistStep{consents: deps.Consents, logger: deps.logger()}, nil
}

func (s *DefaultPersistStep) Execute(ctx context.Context, data *models.ConsentPersistData) error {
	cd := data.ConsentData
	if cd == nil || (cd.ConsentID == "" && cd.Consent == nil) {
		return missingResource(cd, msgConsentIDMissing)
	}

	consent := cd.Consent
	if consent == nil {
		loaded, err := s.consents.GetConsent(ctx, cd.ConsentID, true)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to load consent for persist",
				"consent_id", cd.ConsentID,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			return consenterr.Internal(msgPersistFailed, err)
		}
		consent = loaded
		cd.Consent = loaded
	}

	if cd.AuthResource == nil {
		return missingResource(cd, msgAuthResourceMissing)
	}

	accounts, verr := payload.ConsentedAccounts(payload.ParseSelection(data.Payload), data.Approved)
	if verr != nil {
		return verr
	}

	consentStatus, authStatus := consentmodels.DecisionStatuses(data.Approved)
	err := s.consents.BindUserAccountsToConsent(ctx, consentmodels.Binding{
		Consent:         consent,
		UserID:          cd.UserID,
		AuthorizationID: cd.AuthResource.ID,
		Accounts:        accounts,
		AuthStatus:      authStatus,
		ConsentStatus:   consentStatus,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to bind accounts to consent",
			"consent_id", consent.ID,
			"authorization_id", cd.AuthResource.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return consenterr.Internal(msgPersistFailed, err)
	}
	return nil
}

func missingResource(cd *models.ConsentData, description string) *consenterr.Error {
	if cd == nil {
		return consenterr.NewRedirect(nil, consenterr.CodeServerError, description, "")
	}
	return consenterr.NewRedirect(cd.RedirectURI, consenterr.CodeServerError, description, cd.State)
}
