package tenant

import (
	"context"
	"testing"

	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/stretchr/testify/assert"
)

func TestAuthorizeWriteRejectsIncompleteTenant(t *testing.T) {
	g := NewGate(false, nil, "unified-memory")
	err := g.AuthorizeWrite("storeEpisode", memmodel.TenantContext{CompanyID: "acme"})
	assert.Error(t, err)
	kind, ok := memerr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, memerr.KindInvalidInput, kind)
}

func TestAuthorizeReadAllowsSameTenant(t *testing.T) {
	g := NewGate(false, nil, "unified-memory")
	reader := memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	record := reader
	assert.True(t, g.AuthorizeRead(reader, record))
}

func TestAuthorizeReadDeniesCrossTenantWithoutLegacy(t *testing.T) {
	g := NewGate(false, nil, "unified-memory")
	reader := memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	record := memmodel.TenantContext{CompanyID: "nexus-default", AppID: "chat", UserID: "u2"}
	assert.False(t, g.AuthorizeRead(reader, record))
}

func TestAuthorizeReadAllowsLegacyCompanyWhenEnabled(t *testing.T) {
	g := NewGate(true, []string{"nexus-default", "system"}, "unified-memory")
	reader := memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	record := memmodel.TenantContext{CompanyID: "nexus-default", AppID: "chat", UserID: "u2"}
	assert.True(t, g.AuthorizeRead(reader, record))
}

func TestAuthorizeReadAllowsLegacySystemLane(t *testing.T) {
	g := NewGate(true, nil, "unified-memory")
	reader := memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	record := memmodel.TenantContext{CompanyID: "unified-memory", AppID: "chat", UserID: "u2"}
	assert.True(t, g.AuthorizeRead(reader, record))
}

func TestAuthorizeMergeRejectsDifferentTenants(t *testing.T) {
	g := NewGate(false, nil, "unified-memory")
	a := memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	b := memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u2"}
	err := g.AuthorizeMerge("mergeEntities", a, b)
	assert.Error(t, err)
}

func TestBuildFilterIncludesSystemUser(t *testing.T) {
	g := NewGate(false, nil, "unified-memory")
	f := g.BuildFilter(memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"})
	assert.Contains(t, f.UserIDs, "u1")
	assert.Contains(t, f.UserIDs, memmodel.SystemUserID)
	assert.False(t, f.LegacyLane)
}

func TestFromContextRoundTrip(t *testing.T) {
	tc := memmodel.TenantContext{CompanyID: "acme", AppID: "chat", UserID: "u1"}
	ctx := WithContext(context.Background(), tc)
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, tc, got)
}
