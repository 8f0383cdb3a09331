package oauth2ext

import (
	"context"
	"slices"
	"strings"
)

// TokenRequest is the token request being served with the authorization_code grant.
type TokenRequest struct {
	ClientID string   `json:"clientId"`
	Scopes   []string `json:"scopes"`
}

// TokenResponse is the issued token as reported back to the client.
type TokenResponse struct {
	AccessToken  string   `json:"accessToken,omitempty"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	ExpiresIn    int64    `json:"expiresIn,omitempty"`
	Scopes       []string `json:"scopes"`
}

// TokenIssuer issues tokens for a code grant.
type TokenIssuer interface {
	Issue(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
}

// InitialStep runs after issuance for regulated clients, while internal
// scopes are still present on the request.
type InitialStep func(ctx context.Context, resp *TokenResponse, req *TokenRequest) error

// CodeGrantHandler wraps an issuer so tokens for regulated clients never
// expose internal scopes.
type CodeGrantHandler struct {
	issuer      TokenIssuer
	regulated   RegulatedClients
	prefix      string
	initialStep InitialStep
}

// NewCodeGrantHandler creates the handler. A nil step does nothing.
func NewCodeGrantHandler(issuer TokenIssuer, regulatedClientIDs []string, consentScopePrefix string, step InitialStep) *CodeGrantHandler {
	return &CodeGrantHandler{
		issuer:      issuer,
		regulated:   NewRegulatedClients(regulatedClientIDs...),
		prefix:      consentScopePrefix,
		initialStep: step,
	}
}

// IsRegulated reports whether clientID is a regulated client.
func (h *CodeGrantHandler) IsRegulated(clientID string) bool {
	return h.regulated.Contains(clientID)
}

// Issue issues through the wrapped issuer. For regulated clients it then runs
// the initial step and strips internal scopes from request and response.
func (h *CodeGrantHandler) Issue(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	resp, err := h.issuer.Issue(ctx, req)
	if err != nil || !h.IsRegulated(req.ClientID) {
		return resp, err
	}
	if h.initialStep != nil {
		if err := h.initialStep(ctx, resp, req); err != nil {
			return nil, err
		}
	}
	req.Scopes = RemoveInternalScopes(req.Scopes, h.prefix)
	resp.Scopes = RemoveInternalScopes(resp.Scopes, h.prefix)
	return resp, nil
}

// RemoveInternalScopes drops consent scopes and the API-store scope.
func RemoveInternalScopes(scopes []string, consentScopePrefix string) []string {
	if scopes == nil {
		return nil
	}
	return slices.DeleteFunc(slices.Clone(scopes), func(s string) bool {
		return s == APIStoreScope || (consentScopePrefix != "" && strings.HasPrefix(s, consentScopePrefix))
	})
}
