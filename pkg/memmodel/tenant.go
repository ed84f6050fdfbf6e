// Package memmodel defines the shared data model for the episodic memory
// and retrieval engine: tenant context, memory items, episodes, extracted
// entities and facts, graph edges, vector records, and hybrid scores.
package memmodel

// SystemUserID is the reserved user id that is readable across users
// within the same (company_id, app_id) scope.
const SystemUserID = "system"

// TenantContext identifies the isolation scope every persisted record
// carries and every query filters on. No record may be read outside its
// tenant, except SystemUserID which is broadcast within (CompanyID, AppID).
type TenantContext struct {
	CompanyID string `json:"company_id" db:"company_id"`
	AppID     string `json:"app_id" db:"app_id"`
	UserID    string `json:"user_id" db:"user_id"`
	SessionID string `json:"session_id,omitempty" db:"session_id"`
}

// IsSystem reports whether this context is the reserved broadcast user.
func (t TenantContext) IsSystem() bool {
	return t.UserID == SystemUserID
}

// Matches reports whether a record written under t is visible to a
// reader with context other: same (company, app) and either identical
// user, or the record was written by the system user.
func (t TenantContext) Matches(other TenantContext) bool {
	if t.CompanyID != other.CompanyID || t.AppID != other.AppID {
		return false
	}
	return t.UserID == other.UserID || t.UserID == SystemUserID
}

// Key returns a stable string form suitable for cache keys and log fields.
func (t TenantContext) Key() string {
	return t.CompanyID + ":" + t.AppID + ":" + t.UserID
}
