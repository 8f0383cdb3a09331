// Package secrets hashes and checks the consent API credential with bcrypt.
package secrets

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "obconsent/pkg/domain-errors"
)

// Hash returns a bcrypt hash of secret at the default cost.
func Hash(secret string) (string, error) {
	switch {
	case secret == "":
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	case len(secret) > 72:
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret is longer than 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Resolve picks the stored hash for the API credential. A configured hash
// wins and must be a bcrypt hash; otherwise the plaintext is hashed at startup.
func Resolve(plain, hash string) (string, error) {
	if hash == "" {
		return Hash(plain)
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "configured password hash is not bcrypt")
	}
	return hash, nil
}

// Verify reports whether secret matches hash. A mismatch is CodeUnauthorized.
func Verify(secret, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	default:
		return fmt.Errorf("verify secret: %w", err)
	}
}
