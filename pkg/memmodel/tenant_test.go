package memmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantMatchesSameUser(t *testing.T) {
	a := TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	b := TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	assert.True(t, a.Matches(b))
}

func TestTenantMatchesRejectsOtherCompany(t *testing.T) {
	a := TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	b := TenantContext{CompanyID: "other", AppID: "chat", UserID: "u1"}
	assert.False(t, a.Matches(b))
}

func TestTenantMatchesRejectsDifferentUser(t *testing.T) {
	a := TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	b := TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u2"}
	assert.False(t, a.Matches(b))
}

func TestTenantMatchesSystemBroadcast(t *testing.T) {
	a := TenantContext{CompanyID: "acme", AppID: "chat", UserID: SystemUserID}
	b := TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u2"}
	assert.True(t, a.Matches(b))
}

func TestTenantIsSystem(t *testing.T) {
	assert.True(t, TenantContext{UserID: SystemUserID}.IsSystem())
	assert.False(t, TenantContext{UserID: "u1"}.IsSystem())
}

func TestTenantKey(t *testing.T) {
	tc := TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	assert.Equal(t, "acme:chat:u1", tc.Key())
}
