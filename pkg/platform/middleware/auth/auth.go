// Package auth guards the internal consent API with HTTP Basic credentials.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"obconsent/pkg/platform/middleware/request"
)

// CredentialVerifier checks a plaintext password against a stored hash.
type CredentialVerifier func(secret, hash string) error

// Credentials is the single API identity allowed to call the consent API.
type Credentials struct {
	Username     string
	PasswordHash string
}

type contextKeyPrincipal struct{}

// ContextKeyPrincipal is exported for tests that need context.WithValue directly.
var ContextKeyPrincipal = contextKeyPrincipal{}

// GetPrincipal returns the authenticated API username.
func GetPrincipal(ctx context.Context) string {
	if p, ok := ctx.Value(ContextKeyPrincipal).(string); ok {
		return p
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireBasicAuth rejects requests whose Basic credentials don't match creds.
func RequireBasicAuth(creds Credentials, verify CredentialVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			username, password, ok := r.BasicAuth()
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing basic credentials",
					"request_id", requestID,
				)
				w.Header().Set("WWW-Authenticate", `Basic realm="consent"`)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(username), []byte(creds.Username)) != 1 {
				logger.WarnContext(ctx, "unauthorized access - unknown principal",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
				return
			}

			if err := verify(password, creds.PasswordHash); err != nil {
				logger.WarnContext(ctx, "unauthorized access - credential mismatch",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyPrincipal, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
