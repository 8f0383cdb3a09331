// Package steps holds the authorize step pipeline: the step contracts, the
// registry of named step factories, the builder that assembles a Pipeline
// from configuration, and the default steps.
package steps

import (
	"context"
	"log/slog"

	"obconsent/internal/authorize/metrics"
	"obconsent/internal/authorize/models"
	consentmodels "obconsent/internal/consent/models"
)

// RetrievalStep contributes data rendered to the user before the decision.
type RetrievalStep interface {
	Execute(ctx context.Context, data *models.ConsentRetrieveData) error
}

// PersistStep validates and commits the user's decision.
type PersistStep interface {
	Execute(ctx context.Context, data *models.ConsentPersistData) error
}

// ConsentService is the consent store as seen by the steps.
type ConsentService interface {
	GetConsent(ctx context.Context, id string, forceFresh bool) (*consentmodels.Consent, error)
	BindUserAccountsToConsent(ctx context.Context, b consentmodels.Binding) error
}

// Account is one account offered to the user for selection.
type Account struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// AccountProvider lists the accounts a user may bind to a consent.
type AccountProvider interface {
	AccountsForUser(ctx context.Context, userID string) ([]Account, error)
}

// Deps is what step factories may draw on.
type Deps struct {
	Consents ConsentService
	Accounts AccountProvider
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
