package steps

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"obconsent/internal/authorize/consenterr"
	"obconsent/internal/authorize/models"
	consentmodels "obconsent/internal/consent/models"
	dErrors "obconsent/pkg/domain-errors"
	"obconsent/pkg/requestcontext"
)

// ConsentDetailsStep loads the consent, refuses consents that can no longer
// be authorized, selects the authorization awaiting this user's decision and
// renders the consent for display.
type ConsentDetailsStep struct {
	consents ConsentService
	logger   *slog.Logger
}

// NewConsentDetailsStep is the registry factory for StepConsentDetails.
func NewConsentDetailsStep(deps Deps) (RetrievalStep, error) {
	if deps.Consents == nil {
		return nil, errors.New("consent service is required")
	}
	return &ConsentDetailsStep{consents: deps.Consents, logger: deps.logger()}, nil
}

func (s *ConsentDetailsStep) Execute(ctx context.Context, data *models.ConsentRetrieveData) error {
	cd := data.ConsentData
	consentID := cd.ResolveConsentID()
	if consentID == "" {
		return missingResource(cd, msgConsentIDMissing)
	}

	consent, err := s.consents.GetConsent(ctx, consentID, false)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return consenterr.NewRedirect(cd.RedirectURI, consenterr.CodeInvalidRequest, "Consent not found", cd.State)
		}
		s.logger.ErrorContext(ctx, "failed to load consent for retrieval",
			"consent_id", consentID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return consenterr.Internal(msgRetrieveFailed, err)
	}
	if !consent.IsAwaitingAuthorisation() {
		return consenterr.NewRedirect(cd.RedirectURI, consenterr.CodeInvalidRequest,
			"Consent is not in a state that can be authorized", cd.State)
	}

	auth := pendingAuthorization(consent, cd.UserID)
	if auth == nil {
		return missingResource(cd, msgAuthResourceMissing)
	}

	cd.ConsentID = consent.ID
	cd.Consent = consent
	cd.AuthResource = auth
	cd.Type = consent.Type

	data.Response["consentId"] = consent.ID
	data.Response["authorisationId"] = auth.ID
	data.Response["type"] = consent.Type
	data.Response["status"] = string(consent.Status)
	data.Response["clientId"] = consent.ClientID
	data.Response["receipt"] = receiptValue(consent.Receipt)
	return nil
}

// pendingAuthorization picks the first authorization still awaiting a
// decision that is unassigned or assigned to userID.
func pendingAuthorization(c *consentmodels.Consent, userID string) *consentmodels.Authorization {
	for i := range c.Authorizations {
		a := &c.Authorizations[i]
		if a.Status != consentmodels.AuthorizationStatusCreated {
			continue
		}
		if a.UserID == "" || a.UserID == userID {
			return a
		}
	}
	return nil
}

func receiptValue(receipt string) any {
	if strings.TrimSpace(receipt) != "" && gjson.Valid(receipt) {
		return json.RawMessage(receipt)
	}
	return receipt
}

// AccountListStep renders the accounts the user may select.
type AccountListStep struct {
	accounts AccountProvider
	logger   *slog.Logger
}

// NewAccountListStep is the registry factory for StepAccountList.
func NewAccountListStep(deps Deps) (RetrievalStep, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account provider is required")
	}
	return &AccountListStep{accounts: deps.Accounts, logger: deps.logger()}, nil
}

func (s *AccountListStep) Execute(ctx context.Context, data *models.ConsentRetrieveData) error {
	if data.UserID == "" {
		return consenterr.BadRequest("User ID not available in consent data")
	}
	accounts, err := s.accounts.AccountsForUser(ctx, data.UserID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list accounts",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return consenterr.Internal(msgRetrieveFailed, err)
	}
	if accounts == nil {
		accounts = []Account{}
	}
	data.Response["accounts"] = accounts
	return nil
}

// StaticAccounts serves a fixed user to account-ids mapping.
type StaticAccounts map[string][]string

// AccountsForUser returns the user's accounts sorted by id.
func (s StaticAccounts) AccountsForUser(_ context.Context, userID string) ([]Account, error) {
	ids := slices.Clone(s[userID])
	slices.Sort(ids)
	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, Account{AccountID: id, DisplayName: id})
	}
	return out, nil
}
