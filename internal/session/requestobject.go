package session

import (
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractRequestedClaims reads the OIDC "claims" member of a request object.
// id_token claims are the primary set; userinfo claims are the set consulted
// when tokens are refreshed. The signature is not checked here: the identity
// server validated the request object before registering the session.
func ExtractRequestedClaims(requestObject string) (primary, refresh []RequestedClaim, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(requestObject, claims); err != nil {
		return nil, nil, fmt.Errorf("parse request object: %w", err)
	}
	requested, ok := claims["claims"].(map[string]any)
	if !ok {
		return nil, nil, nil
	}
	return claimSet(requested["id_token"]), claimSet(requested["userinfo"]), nil
}

func claimSet(raw any) []RequestedClaim {
	members, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]RequestedClaim, 0, len(names))
	for _, name := range names {
		c := RequestedClaim{Name: name}
		if spec, ok := members[name].(map[string]any); ok {
			if v, ok := spec["value"].(string); ok {
				c.Value = v
			}
			if e, ok := spec["essential"].(bool); ok {
				c.Essential = e
			}
		}
		out = append(out, c)
	}
	return out
}
