package tenant

import (
	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
)

// Gate enforces tenant isolation on every operation. It is configured
// once at startup with the legacy allow-list and handed to every
// component that reads or writes tenant-scoped records.
type Gate struct {
	legacyAllowlistEnabled bool
	legacyCompanyAllowlist map[string]struct{}
	legacySystemLane       string
}

// NewGate builds a Gate from the resolved legacy allow-list configuration.
func NewGate(allowlistEnabled bool, legacyCompanies []string, legacySystemLane string) *Gate {
	set := make(map[string]struct{}, len(legacyCompanies))
	for _, c := range legacyCompanies {
		set[c] = struct{}{}
	}
	return &Gate{
		legacyAllowlistEnabled: allowlistEnabled,
		legacyCompanyAllowlist: set,
		legacySystemLane:       legacySystemLane,
	}
}

// AuthorizeWrite validates a tenant context is complete enough to stamp
// onto a new record. It does not check visibility: a write always
// succeeds under its own tenant.
func (g *Gate) AuthorizeWrite(op string, tc memmodel.TenantContext) error {
	if tc.CompanyID == "" || tc.AppID == "" || tc.UserID == "" {
		return memerr.Invalid(op, "tenant context requires company_id, app_id, and user_id")
	}
	return nil
}

// Filter is the (company_id, app_id, user_id) predicate every read
// query must apply, expressed as the concrete values a store-specific
// query builder substitutes into its own filter syntax.
type Filter struct {
	CompanyID       string
	AppID           string
	UserIDs         []string // caller's user id plus "system"
	LegacyLane      bool     // also match the legacy system lane as a company id
	LegacyCompanies []string
}

// BuildFilter derives the read filter for a query issued under tc. The
// caller always sees its own records and the broadcast "system" user's
// records within the same (company_id, app_id). When the legacy
// allow-list is enabled, reads additionally span the fixed set of
// legacy company ids and the legacy system lane, preserving
// backward-compatible recall for data written before tenants existed.
func (g *Gate) BuildFilter(tc memmodel.TenantContext) Filter {
	f := Filter{
		CompanyID: tc.CompanyID,
		AppID:     tc.AppID,
		UserIDs:   []string{tc.UserID, memmodel.SystemUserID},
	}
	if g.legacyAllowlistEnabled {
		f.LegacyLane = true
		for c := range g.legacyCompanyAllowlist {
			f.LegacyCompanies = append(f.LegacyCompanies, c)
		}
	}
	return f
}

// AuthorizeRead reports whether a record written under recordTenant is
// visible to a reader scoped to readerTenant, honoring the legacy
// allow-list when enabled.
func (g *Gate) AuthorizeRead(readerTenant, recordTenant memmodel.TenantContext) bool {
	if recordTenant.Matches(readerTenant) {
		return true
	}
	if !g.legacyAllowlistEnabled {
		return false
	}
	if recordTenant.CompanyID == g.legacySystemLane {
		return true
	}
	_, legacyCompany := g.legacyCompanyAllowlist[recordTenant.CompanyID]
	return legacyCompany
}

// AuthorizeMerge requires every participating tenant context to be
// identical: merges and consolidation only ever combine records that
// share a single tenant.
func (g *Gate) AuthorizeMerge(op string, contexts ...memmodel.TenantContext) error {
	if len(contexts) == 0 {
		return nil
	}
	first := contexts[0]
	for _, tc := range contexts[1:] {
		if tc.CompanyID != first.CompanyID || tc.AppID != first.AppID || tc.UserID != first.UserID {
			return memerr.TenantViolation(op, "")
		}
	}
	return nil
}
