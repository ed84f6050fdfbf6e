// Package rollback implements tenant-scoped, idempotent delete handlers
// used to compensate a failed saga step, one handler per backing store.
package rollback

import (
	"context"
	"sync"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
)

// DeleteResult is what every handler returns, forward or compensating.
type DeleteResult struct {
	Success        bool
	RecordsDeleted int
	Error          error
}

// Handler is satisfied by each backing store's client: a tenant-scoped,
// batch-capable, idempotent delete.
type Handler interface {
	Name() string
	Delete(ctx context.Context, tenant memmodel.TenantContext, ids []string) DeleteResult
	Exists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error)
}

// notFoundAware lets a concrete store client report "already gone" so the
// generic wrapper can treat it as success rather than an error.
type notFoundAware interface {
	IsNotFound(err error) bool
}

// StoreClient is the minimal surface a concrete backing store wraps to
// become a Handler.
type StoreClient interface {
	DeleteByID(ctx context.Context, tenant memmodel.TenantContext, id string) error
	CheckExists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error)
}

// StoreHandler adapts a StoreClient into a Handler, treating "not found"
// as success and running batch deletes sequentially against the client.
type StoreHandler struct {
	name    string
	client  StoreClient
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewStoreHandler builds a Handler for one backing store.
func NewStoreHandler(name string, client StoreClient, logger observability.Logger, metrics observability.MetricsClient) *StoreHandler {
	if logger == nil {
		logger = observability.NewLogger("rollback." + name)
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &StoreHandler{name: name, client: client, logger: logger, metrics: metrics}
}

func (h *StoreHandler) Name() string { return h.name }

// Delete removes every id scoped to tenant. A delete against a record
// that no longer exists (or never existed) counts as success, not
// failure, so compensation is safe to call more than once.
func (h *StoreHandler) Delete(ctx context.Context, tenant memmodel.TenantContext, ids []string) DeleteResult {
	deleted := 0
	for _, id := range ids {
		err := h.client.DeleteByID(ctx, tenant, id)
		if err == nil {
			deleted++
			continue
		}
		if nf, ok := h.client.(notFoundAware); ok && nf.IsNotFound(err) {
			deleted++
			continue
		}
		h.logger.Error("rollback delete failed", map[string]interface{}{
			"store": h.name, "id": id, "tenant": tenant.Key(), "error": err.Error(),
		})
		h.metrics.IncrementCounter("rollback.delete_failure", 1)
		return DeleteResult{Success: false, RecordsDeleted: deleted, Error: err}
	}
	h.metrics.IncrementCounter("rollback.delete_success", float64(deleted))
	return DeleteResult{Success: true, RecordsDeleted: deleted}
}

func (h *StoreHandler) Exists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error) {
	return h.client.CheckExists(ctx, tenant, id)
}

// VerifyResult reports, per store, whether the record is still present
// after a rollback attempt.
type VerifyResult struct {
	RelationalResidual bool
	VectorResidual     bool
	GraphResidual      bool
}

// CleanlyRolledBack is true only when no backing store still holds the
// record.
func (v VerifyResult) CleanlyRolledBack() bool {
	return !v.RelationalResidual && !v.VectorResidual && !v.GraphResidual
}

// VerifyRollback independently queries the relational, vector, and graph
// handlers for residual presence of id, concurrently.
func VerifyRollback(ctx context.Context, tenant memmodel.TenantContext, id string, relational, vector, graph Handler) VerifyResult {
	var result VerifyResult
	var wg sync.WaitGroup

	check := func(h Handler, residual *bool) {
		defer wg.Done()
		if h == nil {
			return
		}
		present, err := h.Exists(ctx, tenant, id)
		if err != nil {
			// treat an unverifiable store as residual: absence of proof
			// of deletion is not proof of absence.
			*residual = true
			return
		}
		*residual = present
	}

	wg.Add(3)
	go check(relational, &result.RelationalResidual)
	go check(vector, &result.VectorResidual)
	go check(graph, &result.GraphResidual)
	wg.Wait()

	return result
}
