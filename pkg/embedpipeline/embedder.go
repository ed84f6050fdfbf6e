// Package embedpipeline turns content into validated 1024-dimension
// embedding vectors: it calls an external embedder with bounded retry,
// validates the result, and degrades to a "no embedding" outcome when
// the embedder cannot be reached.
package embedpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/memmodel"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/adverant/nexus-memory/pkg/resilience"
)

// Embedder generates a single embedding vector for a piece of text
// under a specific model.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// Pipeline wraps a primary and optional fallback Embedder with the
// bounded-retry policy: up to 3 attempts, waiting min(500·n, 2000) ms
// before retry n (500ms, then 1s), via cenkalti/backoff/v4.
type Pipeline struct {
	primary  Embedder
	fallback Embedder
	model    string
	attempts int
	bulkhead *resilience.Bulkhead
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewPipeline builds a Pipeline. fallback may be nil. Outbound embed
// calls are bounded and rate-limited by a Bulkhead using the "embedder"
// default configuration (50 concurrent calls, 100/min rate limit).
func NewPipeline(primary, fallback Embedder, model string, logger observability.Logger, metrics observability.MetricsClient) *Pipeline {
	if logger == nil {
		logger = observability.NewLogger("embedpipeline")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Pipeline{
		primary:  primary,
		fallback: fallback,
		model:    model,
		attempts: 3,
		bulkhead: resilience.NewBulkhead("embedder", resilience.DefaultBulkheadConfigs["embedder"], logger, metrics),
		logger:   logger,
		metrics:  metrics,
	}
}

// Close releases the bulkhead's resources. Safe to call once at
// process shutdown.
func (p *Pipeline) Close() error {
	return p.bulkhead.Close()
}

// Embed returns a validated 1024-dimension vector for text, or a
// memerr.KindEmbeddingUnavailable error if every attempt against both
// the primary and fallback embedder failed. Callers on the write path
// treat that error as "proceed without an embedding" rather than
// failing the whole write.
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedWith(ctx, p.primary, text)
	if err == nil {
		return vec, nil
	}
	p.logger.Warn("primary embedder exhausted retries, falling back", map[string]interface{}{
		"embedder": p.primary.Name(),
		"error":    err.Error(),
	})

	if p.fallback == nil {
		return nil, memerr.EmbeddingUnavailable("embed", p.attempts, err)
	}

	vec, ferr := p.embedWith(ctx, p.fallback, text)
	if ferr != nil {
		return nil, memerr.EmbeddingUnavailable("embed", p.attempts, ferr)
	}
	return vec, nil
}

func (p *Pipeline) embedWith(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if e == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts-1)), ctx)

	var vec []float32
	var lastErr error
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		result, err := p.bulkhead.Execute(attemptCtx, func(ctx context.Context) (interface{}, error) {
			return e.Embed(ctx, text, p.model)
		})
		if err != nil {
			lastErr = err
			p.metrics.IncrementCounter(fmt.Sprintf("embedpipeline.%s.failure", e.Name()), 1)
			return err
		}
		vec32, ok := result.([]float32)
		if !ok {
			lastErr = fmt.Errorf("embedder %s returned unexpected result type", e.Name())
			return backoff.Permanent(lastErr)
		}
		if verr := memmodel.ValidateVector(vec32); verr != nil {
			lastErr = verr
			return backoff.Permanent(verr)
		}
		vec = vec32
		p.metrics.IncrementCounter(fmt.Sprintf("embedpipeline.%s.success", e.Name()), 1)
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return vec, nil
}
