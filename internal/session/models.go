// Package session keeps the authorize-flow session data registered for a
// session data key, and the claims requested in its request object.
package session

import (
	"net/url"
	"time"

	authmodels "obconsent/internal/authorize/models"
	consentmodels "obconsent/internal/consent/models"
)

// IntentIDClaim is the requested claim carrying the consent id.
const IntentIDClaim = "openbanking_intent_id"

// Data is what the identity server registers for one authorize request.
type Data struct {
	SessionDataKey  string    `json:"sessionDataKey"`
	ConsentID       string    `json:"consentId"`
	AuthorizationID string    `json:"authorizationId,omitempty"`
	ClientID        string    `json:"clientId"`
	UserID          string    `json:"userId"`
	RedirectURI     string    `json:"redirectUri"`
	State           string    `json:"state,omitempty"`
	ResponseType    string    `json:"responseType,omitempty"`
	Scopes          []string  `json:"scopes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RequestedClaim is one claim requested in the authorize request object.
type RequestedClaim struct {
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
	Essential bool   `json:"essential,omitempty"`
}

// ConsentData builds the step context for this session. An unparsable
// redirect URI is dropped so failures degrade to non-redirect errors.
func (d *Data) ConsentData() *authmodels.ConsentData {
	cd := &authmodels.ConsentData{
		SessionDataKey: d.SessionDataKey,
		ConsentID:      d.ConsentID,
		UserID:         d.UserID,
		ClientID:       d.ClientID,
		State:          d.State,
		ResponseType:   d.ResponseType,
		Scopes:         d.Scopes,
	}
	if u, err := url.Parse(d.RedirectURI); err == nil && u.IsAbs() {
		cd.RedirectURI = u
	}
	if d.AuthorizationID != "" {
		cd.AuthResource = &consentmodels.Authorization{
			ID:        d.AuthorizationID,
			ConsentID: d.ConsentID,
			UserID:    d.UserID,
		}
	}
	return cd
}

// IntentID returns the value of the intent-id claim, or "".
func IntentID(claims []RequestedClaim) string {
	for _, c := range claims {
		if c.Name == IntentIDClaim {
			return c.Value
		}
	}
	return ""
}
