package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionStatuses(t *testing.T) {
	cs, as := DecisionStatuses(true)
	assert.Equal(t, ConsentStatusAuthorized, cs)
	assert.Equal(t, AuthorizationStatusAuthorized, as)

	cs, as = DecisionStatuses(false)
	assert.Equal(t, ConsentStatusRejected, cs)
	assert.Equal(t, AuthorizationStatusRejected, as)
}

func TestAccountBindingsAccountIDsSorted(t *testing.T) {
	b := AccountBindings{"acc-2": {PermissionPrimary}, "acc-1": {PermissionPrimary}, "n/a": {PermissionPrimary}}
	assert.Equal(t, []string{"acc-1", "acc-2", "n/a"}, b.AccountIDs())
}

func TestConsentAuthorizationAndClone(t *testing.T) {
	c := &Consent{
		ID:     "c-1",
		Status: ConsentStatusAwaitingAuthorisation,
		Authorizations: []Authorization{{
			ID:       "auth-1",
			Accounts: []AccountMapping{{AccountID: "acc-1", Permissions: []string{PermissionPrimary}}},
		}},
	}
	assert.True(t, c.IsAwaitingAuthorisation())

	auth, ok := c.Authorization("auth-1")
	require.True(t, ok)
	assert.Equal(t, "auth-1", auth.ID)

	_, ok = c.Authorization("missing")
	assert.False(t, ok)

	clone := c.Clone()
	clone.Authorizations[0].Accounts[0].Permissions[0] = "changed"
	clone.Status = ConsentStatusRevoked
	assert.Equal(t, PermissionPrimary, c.Authorizations[0].Accounts[0].Permissions[0])
	assert.Equal(t, ConsentStatusAwaitingAuthorisation, c.Status)

	var nilConsent *Consent
	assert.Nil(t, nilConsent.Clone())
}
