// Package consenterr is the failure type shared by authorize steps and the
// flows that run them. An Error is either answered directly as JSON (API
// errors) or appended to the client's redirect URI (OAuth2 redirect errors).
package consenterr

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Kind classifies how a failure must be surfaced.
type Kind int

const (
	// KindValidation is a malformed or incomplete submission (4xx).
	KindValidation Kind = iota + 1
	// KindServer is a missing resource or internal failure (5xx).
	KindServer
	// KindRedirect carries an OAuth2 error destined for the client's redirect URI.
	KindRedirect
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// AuthErrorCode is an OAuth2 or OIDC authorization error code.
type AuthErrorCode string

const (
	CodeInvalidRequest           AuthErrorCode = "invalid_request"
	CodeUnauthorizedClient       AuthErrorCode = "unauthorized_client"
	CodeAccessDenied             AuthErrorCode = "access_denied"
	CodeUnsupportedResponseType  AuthErrorCode = "unsupported_response_type"
	CodeInvalidScope             AuthErrorCode = "invalid_scope"
	CodeServerError              AuthErrorCode = "server_error"
	CodeTemporarilyUnavailable   AuthErrorCode = "temporarily_unavailable"
	CodeInteractionRequired      AuthErrorCode = "interaction_required"
	CodeLoginRequired            AuthErrorCode = "login_required"
	CodeAccountSelectionRequired AuthErrorCode = "account_selection_required"
	CodeConsentRequired          AuthErrorCode = "consent_required"
	CodeInvalidRequestURI        AuthErrorCode = "invalid_request_uri"
	CodeInvalidRequestObject     AuthErrorCode = "invalid_request_object"
	CodeRequestNotSupported      AuthErrorCode = "request_not_supported"
	CodeRequestURINotSupported   AuthErrorCode = "request_uri_not_supported"
	CodeRegistrationNotSupported AuthErrorCode = "registration_not_supported"
)

var knownAuthErrorCodes = map[AuthErrorCode]struct{}{
	CodeInvalidRequest: {}, CodeUnauthorizedClient: {}, CodeAccessDenied: {},
	CodeUnsupportedResponseType: {}, CodeInvalidScope: {}, CodeServerError: {},
	CodeTemporarilyUnavailable: {}, CodeInteractionRequired: {}, CodeLoginRequired: {},
	CodeAccountSelectionRequired: {}, CodeConsentRequired: {}, CodeInvalidRequestURI: {},
	CodeInvalidRequestObject: {}, CodeRequestNotSupported: {}, CodeRequestURINotSupported: {},
	CodeRegistrationNotSupported: {},
}

// Valid reports whether c is a registered OAuth2/OIDC error code.
func (c AuthErrorCode) Valid() bool {
	_, ok := knownAuthErrorCodes[c]
	return ok
}

// Payload is the canonical error body.
type Payload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	State            string `json:"state,omitempty"`
	RedirectURI      string `json:"redirect_uri,omitempty"`
}

// Error is a consent flow failure.
type Error struct {
	Kind    Kind
	Status  int
	Payload Payload
	cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("consent %s error (%d): %s: %s", e.Kind, e.Status, e.Payload.Error, e.Payload.ErrorDescription)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsRedirect reports whether the error must be delivered through the client's redirect URI.
func (e *Error) IsRedirect() bool {
	return e.Kind == KindRedirect && e.Payload.RedirectURI != ""
}

// New builds an API error with an explicit error code.
func New(status int, code, description string) *Error {
	return &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Payload: Payload{Error: code, ErrorDescription: description},
	}
}

// NewStatus builds an API error whose code is the numeric status itself.
func NewStatus(status int, description string) *Error {
	return New(status, strconv.Itoa(status), description)
}

// BadRequest is a 400 validation error.
func BadRequest(description string) *Error {
	return NewStatus(http.StatusBadRequest, description)
}

// Internal is a 500 server error. The cause is kept for logging and never
// rendered.
func Internal(description string, cause error) *Error {
	e := NewStatus(http.StatusInternalServerError, description)
	e.cause = cause
	return e
}

// NewRedirect builds an OAuth2 redirect error with status 302. When either
// the base URI or the code is missing the error cannot be redirected and
// degrades to a 500 server_error that keeps the description and state.
func NewRedirect(base *url.URL, code AuthErrorCode, description, state string) *Error {
	if base == nil || base.String() == "" || code == "" {
		return &Error{
			Kind:   KindServer,
			Status: http.StatusInternalServerError,
			Payload: Payload{
				Error:            string(CodeServerError),
				ErrorDescription: description,
				State:            state,
			},
		}
	}
	return &Error{
		Kind:   KindRedirect,
		Status: http.StatusFound,
		Payload: Payload{
			Error:            string(code),
			ErrorDescription: description,
			State:            state,
			RedirectURI:      base.String(),
		},
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func kindForStatus(status int) Kind {
	if status >= 400 && status < 500 {
		return KindValidation
	}
	return KindServer
}

// ErrorQuery renders the OAuth2 error parameters of p, without the redirect
// URI, prefixed for appending to base: "?" when base has no query, "&"
// otherwise. A fragment response uses "#" instead.
func ErrorQuery(base string, p Payload, fragment bool) string {
	values := url.Values{}
	values.Set("error", p.Error)
	if p.ErrorDescription != "" {
		values.Set("error_description", p.ErrorDescription)
	}
	if p.State != "" {
		values.Set("state", p.State)
	}
	sep := "?"
	switch {
	case fragment:
		sep = "#"
	case strings.Contains(base, "?"):
		sep = "&"
	}
	return sep + values.Encode()
}

// RedirectURL appends the encoded error of p to its redirect URI. It
// returns false when p carries no redirect URI or no error code.
func RedirectURL(p Payload, fragment bool) (string, bool) {
	if p.RedirectURI == "" || p.Error == "" {
		return "", false
	}
	// A fragment on the base would swallow a query-mode error, so drop it.
	base, _, _ := strings.Cut(p.RedirectURI, "#")
	return base + ErrorQuery(base, p, fragment), true
}

// ParseRedirect reads the OAuth2 error parameters back out of a redirect URL.
// The returned RedirectURI has query and fragment stripped.
func ParseRedirect(raw string) (Payload, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Payload{}, fmt.Errorf("parse redirect: %w", err)
	}
	values := u.Query()
	if u.Fragment != "" && values.Get("error") == "" {
		values, err = url.ParseQuery(u.Fragment)
		if err != nil {
			return Payload{}, fmt.Errorf("parse redirect fragment: %w", err)
		}
	}
	u.RawQuery = ""
	u.Fragment = ""
	return Payload{
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
		State:            values.Get("state"),
		RedirectURI:      u.String(),
	}, nil
}
