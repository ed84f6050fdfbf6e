// Package memerr defines the typed error taxonomy storage operations
// return instead of propagating library-specific exceptions.
package memerr

import (
	"errors"
	"fmt"
)

// Kind identifies one member of the error taxonomy.
type Kind string

const (
	// KindInvalidInput covers content too short/long, empty query, limit
	// out of range, or impossible weight normalization. Surfaced to caller.
	KindInvalidInput Kind = "invalid_input"
	// KindTenantViolation covers a record not found under the caller's
	// tenant. Surfaced as a 404-equivalent.
	KindTenantViolation Kind = "tenant_violation"
	// KindEmbeddingUnavailable covers embedder failure after all retry
	// attempts. Write paths degrade to a record without an embedding;
	// read paths degrade to a text-fallback with a warning in the response.
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	// KindBackingStoreFailure covers any backing store call failing or
	// timing out. The saga initiates compensation.
	KindBackingStoreFailure Kind = "backing_store_failure"
	// KindCompensationFailure covers a compensate call failing during
	// rollback. Logged at error level; the saga result is still returned.
	KindCompensationFailure Kind = "compensation_failure"
	// KindExtractionFailure covers malformed or off-schema LLM JSON.
	// Never fatal; degrades to the regex fallback path.
	KindExtractionFailure Kind = "extraction_failure"
	// KindConfigurationError covers missing credentials at startup.
	// Fail-fast at service boot.
	KindConfigurationError Kind = "configuration_error"
)

// MemoryError is the common error type every storage operation returns.
// It carries enough structured context for callers to branch on Kind
// without parsing message strings, and for saga results to preserve
// {sagaId, failedStep, context} across compensation.
type MemoryError struct {
	Kind       Kind
	Op         string
	SagaID     string
	FailedStep string
	Context    map[string]any
	Err        error
}

func (e *MemoryError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.FailedStep != "" {
		msg = fmt.Sprintf("%s (step=%s)", msg, e.FailedStep)
	}
	if e.SagaID != "" {
		msg = fmt.Sprintf("%s (saga=%s)", msg, e.SagaID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *MemoryError) Unwrap() error { return e.Err }

// Is reports whether target is a *MemoryError of the same Kind, so
// errors.Is compares two MemoryErrors by Kind rather than by message.
func (e *MemoryError) Is(target error) bool {
	var other *MemoryError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func new(kind Kind, op string, err error) *MemoryError {
	return &MemoryError{Kind: kind, Op: op, Err: err}
}

// Invalid builds a KindInvalidInput error.
func Invalid(op, msg string) *MemoryError {
	return new(KindInvalidInput, op, errors.New(msg))
}

// TenantViolation builds a KindTenantViolation error for a record id.
func TenantViolation(op, recordID string) *MemoryError {
	return &MemoryError{
		Kind:    KindTenantViolation,
		Op:      op,
		Context: map[string]any{"record_id": recordID},
		Err:     fmt.Errorf("record %s not visible under caller's tenant", recordID),
	}
}

// EmbeddingUnavailable builds a KindEmbeddingUnavailable error after
// exhausting the embedder's retry budget.
func EmbeddingUnavailable(op string, attempts int, cause error) *MemoryError {
	return &MemoryError{
		Kind:    KindEmbeddingUnavailable,
		Op:      op,
		Context: map[string]any{"attempts": attempts},
		Err:     cause,
	}
}

// Backing builds a KindBackingStoreFailure error, preserving saga context.
func Backing(op, sagaID, failedStep string, cause error) *MemoryError {
	return &MemoryError{
		Kind:       KindBackingStoreFailure,
		Op:         op,
		SagaID:     sagaID,
		FailedStep: failedStep,
		Err:        cause,
	}
}

// Compensation builds a KindCompensationFailure error.
func Compensation(op, sagaID, step string, cause error) *MemoryError {
	return &MemoryError{
		Kind:       KindCompensationFailure,
		Op:         op,
		SagaID:     sagaID,
		FailedStep: step,
		Context:    map[string]any{"manual_intervention": true},
		Err:        cause,
	}
}

// Extraction builds a KindExtractionFailure error.
func Extraction(op string, cause error) *MemoryError {
	return new(KindExtractionFailure, op, cause)
}

// Configuration builds a KindConfigurationError error.
func Configuration(op, msg string) *MemoryError {
	return new(KindConfigurationError, op, errors.New(msg))
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *MemoryError, reporting ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}
