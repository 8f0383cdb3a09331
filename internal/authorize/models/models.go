package models

import (
	"net/url"
	"strings"

	consentmodels "obconsent/internal/consent/models"
)

// Response types that deliver OAuth2 parameters in the URI fragment.
var fragmentResponseTypes = map[string]struct{}{
	"token":               {},
	"id_token":            {},
	"code id_token":       {},
	"code token":          {},
	"id_token token":      {},
	"code id_token token": {},
}

// ConsentData is the request-scoped context threaded through every authorize step.
// Either ConsentID or Consent must be set before a persist step runs; AuthResource
// must be set before a decision is committed.
type ConsentData struct {
	SessionDataKey string
	ConsentID      string
	Consent        *consentmodels.Consent
	AuthResource   *consentmodels.Authorization
	UserID         string
	ClientID       string
	Type           string
	RedirectURI    *url.URL
	State          string
	ResponseType   string
	Scopes         []string
	Metadata       map[string]any
}

// FragmentResponse reports whether OAuth2 parameters for this flow travel in
// the fragment rather than the query string.
func (d *ConsentData) FragmentResponse() bool {
	_, ok := fragmentResponseTypes[strings.TrimSpace(d.ResponseType)]
	return ok
}

// ResolveConsentID returns the explicit consent id, falling back to the loaded resource.
func (d *ConsentData) ResolveConsentID() string {
	if d.ConsentID != "" {
		return d.ConsentID
	}
	if d.Consent != nil {
		return d.Consent.ID
	}
	return ""
}

// SetMetadata records a value contributed by a step.
func (d *ConsentData) SetMetadata(key string, value any) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[key] = value
}

// ConsentPersistData is ConsentData plus the user's submitted decision.
type ConsentPersistData struct {
	*ConsentData
	Approved bool
	// Payload is the raw JSON submitted by the confirm flow.
	Payload  []byte
	Cookies  map[string]string
	Metadata map[string]string
}

// ConsentRetrieveData is ConsentData plus the JSON object retrieval steps fill.
type ConsentRetrieveData struct {
	*ConsentData
	Response map[string]any
}

// NewRetrieveData wraps data with an empty response object.
func NewRetrieveData(data *ConsentData) *ConsentRetrieveData {
	return &ConsentRetrieveData{ConsentData: data, Response: make(map[string]any)}
}
