package handler

import (
	"net/url"
	"strings"
	"time"

	"obconsent/internal/authorize/consenterr"
	"obconsent/internal/session"
	pkgstrings "obconsent/pkg/platform/strings"
)

// RegisterSessionRequest is sent by the identity server when an authorize
// request reaches the consent step.
type RegisterSessionRequest struct {
	SessionDataKey string   `json:"sessionDataKey"`
	ConsentID      string   `json:"consentId"`
	ClientID       string   `json:"clientId"`
	UserID         string   `json:"userId"`
	RedirectURI    string   `json:"redirectUri"`
	State          string   `json:"state"`
	ResponseType   string   `json:"responseType"`
	Scopes         []string `json:"scopes"`
	// RequestObject is the signed request object of the authorize request.
	RequestObject string `json:"request"`
}

// normalize trims the identifiers the identity server sends. Scopes are
// trimmed and deduplicated later by toSession.
func (r *RegisterSessionRequest) normalize() {
	for _, f := range []*string{
		&r.SessionDataKey, &r.ConsentID, &r.ClientID, &r.UserID,
		&r.RedirectURI, &r.State, &r.ResponseType, &r.RequestObject,
	} {
		*f = strings.TrimSpace(*f)
	}
}

// Validate checks the fields every session needs.
func (r *RegisterSessionRequest) Validate() error {
	if r.SessionDataKey == "" {
		return consenterr.BadRequest("sessionDataKey is required")
	}
	if r.ClientID == "" {
		return consenterr.BadRequest("clientId is required")
	}
	u, err := url.Parse(r.RedirectURI)
	if r.RedirectURI == "" || err != nil || !u.IsAbs() {
		return consenterr.BadRequest("redirectUri must be an absolute URI")
	}
	if strings.Contains(r.RedirectURI, "#") {
		return consenterr.BadRequest("redirectUri must not contain a fragment")
	}
	return nil
}

func (r *RegisterSessionRequest) toSession(now time.Time) *session.Data {
	return &session.Data{
		SessionDataKey: r.SessionDataKey,
		ConsentID:      r.ConsentID,
		ClientID:       r.ClientID,
		UserID:         r.UserID,
		RedirectURI:    r.RedirectURI,
		State:          r.State,
		ResponseType:   r.ResponseType,
		Scopes:         pkgstrings.DedupeAndTrim(r.Scopes),
		CreatedAt:      now,
	}
}

// RegisterSessionResponse acknowledges a registered session.
type RegisterSessionResponse struct {
	SessionDataKey string `json:"sessionDataKey"`
	ConsentID      string `json:"consentId"`
}
