package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"obconsent/internal/platform/config"
)

const stepsYAML = `
steps:
  Retrieve:
    1: consent-details
    2: account-list
  Persist:
    1: default-persist
accounts:
  user-1: [acc-1, acc-2]
consents:
  - id: c-1
    client_id: tpp-1
    type: accounts
    receipt: '{"Data":{"Permissions":["ReadAccountsBasic"]}}'
    authorization_id: auth-1
`

type AppSuite struct {
	suite.Suite
	ctx     context.Context
	app     *app
	server  *httptest.Server
	handler http.Handler
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	s.ctx = context.Background()
	path := filepath.Join(s.T().TempDir(), "steps.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(stepsYAML), 0o600))

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler.ServeHTTP(w, r)
	}))
	s.T().Cleanup(s.server.Close)

	cfg := &config.Config{
		StepsFile: path,
		Persistence: config.Persistence{
			BaseURL:           s.server.URL + "/api/consent/authorize/persist",
			Username:          "admin",
			Password:          "secret",
			ClientTimeout:     5 * time.Second,
			AuthorizeEndpoint: "https://is.example.com/oauth2/authorize",
			RetryPath:         "/authenticationendpoint/retry.do",
		},
		OAuth2: config.OAuth2{
			ConsentIDClaimPrefix: "OB_CONSENT_ID_",
			RegulatedClientIDs:   []string{"tpp-1"},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(s.ctx, cfg, logger, instruments{})
	s.Require().NoError(err)
	s.app = a
	s.handler, err = a.router()
	s.Require().NoError(err)
}

func (s *AppSuite) do(method, path string, body []byte, authed bool) *http.Response {
	req, err := http.NewRequestWithContext(s.ctx, method, s.server.URL+path, bytes.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.SetBasicAuth("admin", "secret")
	}
	resp, err := s.noRedirectClient().Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *AppSuite) noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func (s *AppSuite) requestObject() string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"client_id": "tpp-1",
		"claims": map[string]any{
			"id_token": map[string]any{
				"openbanking_intent_id": map[string]any{"value": "c-1", "essential": true},
			},
		},
	})
	signed, err := token.SignedString([]byte("request-object-key"))
	s.Require().NoError(err)
	return signed
}

func (s *AppSuite) TestHealth() {
	resp := s.do(http.MethodGet, "/health", nil, false)
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *AppSuite) TestConsentAPIRequiresCredentials() {
	resp := s.do(http.MethodGet, "/api/consent/authorize/retrieve/sdk-1", nil, false)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodPost, "/oauth2/ext/approved-scopes", []byte(`{}`), false)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *AppSuite) TestAuthorizeFlow() {
	register, err := json.Marshal(map[string]any{
		"sessionDataKey": "sdk-1",
		"clientId":       "tpp-1",
		"userId":         "user-1",
		"redirectUri":    "https://tpp.example.com/cb",
		"state":          "st-1",
		"scopes":         []string{"openid", "accounts"},
		"request":        s.requestObject(),
	})
	s.Require().NoError(err)
	resp := s.do(http.MethodPost, "/api/consent/authorize/sessions", register, true)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/consent/authorize/retrieve/sdk-1", nil, true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var retrieved map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&retrieved))
	s.Equal("c-1", retrieved["consentId"])
	s.Equal("auth-1", retrieved["authorisationId"])

	form := url.Values{}
	form.Set("sessionDataKeyConsent", "sdk-1")
	form.Set("consent", "true")
	form.Set("type", "accounts")
	form.Add("accounts[]", "acc-1:acc-2")
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.server.URL+"/authenticationendpoint/oauth2_consent.do", strings.NewReader(form.Encode()))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = s.noRedirectClient().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusFound, resp.StatusCode)
	s.Equal("https://is.example.com/oauth2/authorize?consent=approve&sessionDataKeyConsent=sdk-1", resp.Header.Get("Location"))

	resp = s.do(http.MethodPost, "/oauth2/ext/approved-scopes",
		[]byte(`{"sessionDataKey":"sdk-1","clientId":"tpp-1","approvedScopes":["openid","accounts"]}`), true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var scopes struct {
		ApprovedScopes []string `json:"approvedScopes"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&scopes))
	s.Equal([]string{"openid", "accounts", "OB_CONSENT_ID_c-1"}, scopes.ApprovedScopes)

	resp = s.do(http.MethodPost, "/oauth2/ext/code-grant/issued",
		[]byte(`{"request":{"clientId":"tpp-1","scopes":["openid","OB_CONSENT_ID_c-1"]},"response":{"accessToken":"at","scopes":["openid","OB_CONSENT_ID_c-1"]}}`), true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.NotContains(string(body), "OB_CONSENT_ID_")
}

func (s *AppSuite) TestConfirmFailureGoesToRetry() {
	form := url.Values{}
	form.Set("sessionDataKeyConsent", "unknown")
	form.Set("consent", "true")
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.server.URL+"/authenticationendpoint/oauth2_consent.do", strings.NewReader(form.Encode()))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.noRedirectClient().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusFound, resp.StatusCode)
	s.True(strings.HasPrefix(resp.Header.Get("Location"), "/authenticationendpoint/retry.do?status=Error"))
}

func TestPrintSteps(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var out bytes.Buffer
	if err := printSteps(&out, "", logger); err != nil {
		t.Fatalf("default steps: %v", err)
	}
	if !strings.Contains(out.String(), "retrieve: [consent-details account-list]") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	path := filepath.Join(t.TempDir(), "steps.yaml")
	if err := os.WriteFile(path, []byte("steps:\n  Persist:\n    1: no-such-step\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := printSteps(&out, path, logger); err == nil {
		t.Fatalf("expected error for unknown step, output:\n%s", out.String())
	}
}
