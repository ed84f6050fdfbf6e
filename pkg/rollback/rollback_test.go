package rollback

import (
	"context"
	"errors"
	"testing"

	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notFoundErr struct{ msg string }

func (e notFoundErr) Error() string { return e.msg }

type fakeStoreClient struct {
	deleted     map[string]bool
	present     map[string]bool
	deleteErr   error
	notFound    bool
	existsErr   error
	deleteCalls []string
}

func newFakeStoreClient(present ...string) *fakeStoreClient {
	p := map[string]bool{}
	for _, id := range present {
		p[id] = true
	}
	return &fakeStoreClient{deleted: map[string]bool{}, present: p}
}

func (f *fakeStoreClient) DeleteByID(ctx context.Context, tenant memmodel.TenantContext, id string) error {
	f.deleteCalls = append(f.deleteCalls, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if !f.present[id] {
		return notFoundErr{"not found"}
	}
	delete(f.present, id)
	f.deleted[id] = true
	return nil
}

func (f *fakeStoreClient) CheckExists(ctx context.Context, tenant memmodel.TenantContext, id string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.present[id], nil
}

func (f *fakeStoreClient) IsNotFound(err error) bool {
	_, ok := err.(notFoundErr)
	return ok
}

func testTenant() memmodel.TenantContext {
	return memmodel.TenantContext{CompanyID: "acme", AppID: "app1", UserID: "user1"}
}

func TestDeleteSucceedsForExistingRecord(t *testing.T) {
	client := newFakeStoreClient("rec1")
	h := NewStoreHandler("vector", client, nil, nil)
	result := h.Delete(context.Background(), testTenant(), []string{"rec1"})
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RecordsDeleted)
	assert.True(t, client.deleted["rec1"])
}

func TestDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	client := newFakeStoreClient()
	h := NewStoreHandler("vector", client, nil, nil)
	result := h.Delete(context.Background(), testTenant(), []string{"missing"})
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RecordsDeleted)
}

func TestDeleteIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	client := newFakeStoreClient("rec1")
	h := NewStoreHandler("vector", client, nil, nil)

	first := h.Delete(context.Background(), testTenant(), []string{"rec1"})
	second := h.Delete(context.Background(), testTenant(), []string{"rec1"})

	assert.True(t, first.Success)
	assert.True(t, second.Success)
}

func TestDeleteBatchStopsAtFirstRealFailure(t *testing.T) {
	client := newFakeStoreClient("rec1", "rec2")
	client.deleteErr = errors.New("connection reset")
	h := NewStoreHandler("relational", client, nil, nil)

	result := h.Delete(context.Background(), testTenant(), []string{"rec1", "rec2"})
	require.False(t, result.Success)
	require.Error(t, result.Error)
	assert.Equal(t, 0, result.RecordsDeleted)
}

func TestDeleteBatchSupportsMultipleIDs(t *testing.T) {
	client := newFakeStoreClient("rec1", "rec2", "rec3")
	h := NewStoreHandler("relational", client, nil, nil)

	result := h.Delete(context.Background(), testTenant(), []string{"rec1", "rec2", "rec3"})
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.RecordsDeleted)
}

func TestVerifyRollbackAllClean(t *testing.T) {
	rel := NewStoreHandler("relational", newFakeStoreClient(), nil, nil)
	vec := NewStoreHandler("vector", newFakeStoreClient(), nil, nil)
	graph := NewStoreHandler("graph", newFakeStoreClient(), nil, nil)

	result := VerifyRollback(context.Background(), testTenant(), "rec1", rel, vec, graph)
	assert.True(t, result.CleanlyRolledBack())
}

func TestVerifyRollbackDetectsResidualInOneStore(t *testing.T) {
	rel := NewStoreHandler("relational", newFakeStoreClient(), nil, nil)
	vec := NewStoreHandler("vector", newFakeStoreClient("rec1"), nil, nil)
	graph := NewStoreHandler("graph", newFakeStoreClient(), nil, nil)

	result := VerifyRollback(context.Background(), testTenant(), "rec1", rel, vec, graph)
	assert.False(t, result.CleanlyRolledBack())
	assert.True(t, result.VectorResidual)
	assert.False(t, result.RelationalResidual)
	assert.False(t, result.GraphResidual)
}

func TestVerifyRollbackTreatsUnverifiableStoreAsResidual(t *testing.T) {
	rel := NewStoreHandler("relational", newFakeStoreClient(), nil, nil)
	vecClient := newFakeStoreClient()
	vecClient.existsErr = errors.New("timeout")
	vec := NewStoreHandler("vector", vecClient, nil, nil)
	graph := NewStoreHandler("graph", newFakeStoreClient(), nil, nil)

	result := VerifyRollback(context.Background(), testTenant(), "rec1", rel, vec, graph)
	assert.True(t, result.VectorResidual)
	assert.False(t, result.CleanlyRolledBack())
}

func TestVerifyRollbackSkipsNilHandler(t *testing.T) {
	rel := NewStoreHandler("relational", newFakeStoreClient(), nil, nil)
	result := VerifyRollback(context.Background(), testTenant(), "rec1", rel, nil, nil)
	assert.True(t, result.CleanlyRolledBack())
}
