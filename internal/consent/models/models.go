package models

import (
	"slices"
	"time"
)

// ConsentStatus is the lifecycle state of a consent resource.
type ConsentStatus string

const (
	ConsentStatusAwaitingAuthorisation ConsentStatus = "AwaitingAuthorisation"
	ConsentStatusAuthorized            ConsentStatus = "Authorized"
	ConsentStatusRejected              ConsentStatus = "Rejected"
	ConsentStatusRevoked               ConsentStatus = "Revoked"
)

// AuthorizationStatus is the state of one authorization attempt on a consent.
type AuthorizationStatus string

const (
	AuthorizationStatusCreated    AuthorizationStatus = "Created"
	AuthorizationStatusAuthorized AuthorizationStatus = "Authorized"
	AuthorizationStatusRejected   AuthorizationStatus = "Rejected"
)

// AuthorizationTypeDefault is the authorization type created with every consent.
const AuthorizationTypeDefault = "authorization"

// PermissionPrimary is the permission tag bound to every selected account.
const PermissionPrimary = "primary"

// MappingStatusActive marks a live account mapping.
const MappingStatusActive = "active"

// Consent is the persisted consent resource together with its authorizations.
type Consent struct {
	ID             string
	ClientID       string
	Type           string
	Receipt        string
	Status         ConsentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Authorizations []Authorization
}

// Authorization records one authorization attempt against a consent.
type Authorization struct {
	ID        string
	ConsentID string
	Type      string
	UserID    string
	Status    AuthorizationStatus
	UpdatedAt time.Time
	Accounts  []AccountMapping
}

// AccountMapping binds one account to an authorization.
type AccountMapping struct {
	ID              string
	AuthorizationID string
	AccountID       string
	Permissions     []string
	Status          string
}

// Authorization returns the authorization with the given id.
func (c *Consent) Authorization(id string) (*Authorization, bool) {
	for i := range c.Authorizations {
		if c.Authorizations[i].ID == id {
			return &c.Authorizations[i], true
		}
	}
	return nil, false
}

// IsAwaitingAuthorisation reports whether the consent still accepts a decision.
func (c *Consent) IsAwaitingAuthorisation() bool {
	return c.Status == ConsentStatusAwaitingAuthorisation
}

// Clone returns a deep copy safe to hand out of a store or cache.
func (c *Consent) Clone() *Consent {
	if c == nil {
		return nil
	}
	out := *c
	out.Authorizations = make([]Authorization, len(c.Authorizations))
	for i, a := range c.Authorizations {
		a.Accounts = slices.Clone(a.Accounts)
		for j := range a.Accounts {
			a.Accounts[j].Permissions = slices.Clone(a.Accounts[j].Permissions)
		}
		out.Authorizations[i] = a
	}
	return &out
}

// AccountBindings maps account id to its permission tags.
type AccountBindings map[string][]string

// AccountIDs returns the bound account ids in sorted order.
func (b AccountBindings) AccountIDs() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DecisionStatuses derives the consent and authorization status from the
// user's decision. Both resources move together.
func DecisionStatuses(approved bool) (ConsentStatus, AuthorizationStatus) {
	if approved {
		return ConsentStatusAuthorized, AuthorizationStatusAuthorized
	}
	return ConsentStatusRejected, AuthorizationStatusRejected
}

// Binding is everything needed to commit a user's decision against a consent.
type Binding struct {
	Consent         *Consent
	UserID          string
	AuthorizationID string
	Accounts        AccountBindings
	AuthStatus      AuthorizationStatus
	ConsentStatus   ConsentStatus
}
