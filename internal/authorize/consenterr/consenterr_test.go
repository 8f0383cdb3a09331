package consenterr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestAPIErrors(t *testing.T) {
	t.Run("status string is the error code", func(t *testing.T) {
		err := BadRequest("account id not found")
		assert.Equal(t, KindValidation, err.Kind)
		assert.Equal(t, http.StatusBadRequest, err.Status)
		assert.Equal(t, Payload{Error: "400", ErrorDescription: "account id not found"}, err.Payload)
		assert.False(t, err.IsRedirect())
	})

	t.Run("internal keeps cause out of payload", func(t *testing.T) {
		cause := errors.New("deadlock detected")
		err := Internal("Exception occurred while persisting consent", cause)
		assert.Equal(t, KindServer, err.Kind)
		assert.Equal(t, "500", err.Payload.Error)
		assert.ErrorIs(t, err, cause)

		body, jerr := json.Marshal(err.Payload)
		require.NoError(t, jerr)
		assert.NotContains(t, string(body), "deadlock")
		assert.NotContains(t, string(body), "redirect_uri")
		assert.NotContains(t, string(body), "state")
	})

	t.Run("explicit code", func(t *testing.T) {
		err := New(http.StatusUnauthorized, "unauthorized", "bad credentials")
		assert.Equal(t, KindValidation, err.Kind)
		assert.Equal(t, "unauthorized", err.Payload.Error)
	})
}

func TestNewRedirect(t *testing.T) {
	base := mustURL(t, "https://tpp.example/cb")

	t.Run("forces found status", func(t *testing.T) {
		err := NewRedirect(base, CodeServerError, "Consent ID not available in consent data", "xyz")
		assert.Equal(t, KindRedirect, err.Kind)
		assert.Equal(t, http.StatusFound, err.Status)
		assert.True(t, err.IsRedirect())
		assert.Equal(t, Payload{
			Error:            "server_error",
			ErrorDescription: "Consent ID not available in consent data",
			State:            "xyz",
			RedirectURI:      "https://tpp.example/cb",
		}, err.Payload)
	})

	t.Run("omits empty state", func(t *testing.T) {
		err := NewRedirect(base, CodeAccessDenied, "denied", "")
		body, jerr := json.Marshal(err.Payload)
		require.NoError(t, jerr)
		assert.NotContains(t, string(body), "state")
	})

	t.Run("missing base degrades to server error", func(t *testing.T) {
		err := NewRedirect(nil, CodeServerError, "Auth resource not available in consent data", "xyz")
		assert.Equal(t, KindServer, err.Kind)
		assert.Equal(t, http.StatusInternalServerError, err.Status)
		assert.False(t, err.IsRedirect())
		assert.Equal(t, "server_error", err.Payload.Error)
		assert.Equal(t, "xyz", err.Payload.State)
		assert.Empty(t, err.Payload.RedirectURI)
	})

	t.Run("missing code degrades to server error", func(t *testing.T) {
		err := NewRedirect(base, "", "desc", "")
		assert.Equal(t, KindServer, err.Kind)
		assert.Empty(t, err.Payload.RedirectURI)
	})
}

func TestRedirectRoundTrip(t *testing.T) {
	err := NewRedirect(mustURL(t, "https://tpp.example/cb"), CodeAccessDenied, "user rejected & left", "xyz")

	raw, ok := RedirectURL(err.Payload, false)
	require.True(t, ok)
	assert.Equal(t, "https://tpp.example/cb?error=access_denied&error_description=user+rejected+%26+left&state=xyz", raw)

	parsed, perr := ParseRedirect(raw)
	require.NoError(t, perr)
	assert.Equal(t, err.Payload, parsed)
	assert.Equal(t, "xyz", parsed.State)
}

func TestRedirectURLVariants(t *testing.T) {
	t.Run("existing query appends with ampersand", func(t *testing.T) {
		raw, ok := RedirectURL(Payload{Error: "server_error", RedirectURI: "https://tpp.example/cb?x=1"}, false)
		require.True(t, ok)
		assert.Equal(t, "https://tpp.example/cb?x=1&error=server_error", raw)
	})

	t.Run("fragment response", func(t *testing.T) {
		raw, ok := RedirectURL(Payload{Error: "access_denied", State: "s1", RedirectURI: "https://tpp.example/cb"}, true)
		require.True(t, ok)
		assert.Equal(t, "https://tpp.example/cb#error=access_denied&state=s1", raw)

		parsed, err := ParseRedirect(raw)
		require.NoError(t, err)
		assert.Equal(t, "s1", parsed.State)
	})

	t.Run("query response drops a fragment on the redirect uri", func(t *testing.T) {
		raw, ok := RedirectURL(Payload{Error: "server_error", State: "s2", RedirectURI: "https://tpp.example/cb?x=1#frag"}, false)
		require.True(t, ok)
		assert.Equal(t, "https://tpp.example/cb?x=1&error=server_error&state=s2", raw)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Empty(t, u.Fragment)
		assert.Equal(t, "server_error", u.Query().Get("error"))
	})

	t.Run("no redirect uri", func(t *testing.T) {
		_, ok := RedirectURL(Payload{Error: "server_error"}, false)
		assert.False(t, ok)
	})
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("step 1: %w", BadRequest("account id format error"))
	ce, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "account id format error", ce.Payload.ErrorDescription)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestAuthErrorCodeValid(t *testing.T) {
	assert.True(t, CodeConsentRequired.Valid())
	assert.False(t, AuthErrorCode("made_up").Valid())
}
