// Package tenant implements the Tenant Context Gate: every read and
// write the engine performs is scoped to a (company_id, app_id, user_id)
// tuple, with the reserved "system" user broadcasting within its
// (company_id, app_id) and a small legacy allow-list kept for
// backward-compatible reads.
package tenant

import (
	"context"

	"github.com/adverant/nexus-memory/pkg/memmodel"
)

type contextKey string

const tenantContextKey contextKey = "tenant_context"

// FromContext extracts the TenantContext a request was scoped to, if any
// was attached with WithContext.
func FromContext(ctx context.Context) (memmodel.TenantContext, bool) {
	v, ok := ctx.Value(tenantContextKey).(memmodel.TenantContext)
	return v, ok
}

// WithContext attaches tc to ctx so downstream calls (logging,
// instrumentation) can recover it without threading it explicitly.
func WithContext(ctx context.Context, tc memmodel.TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}
