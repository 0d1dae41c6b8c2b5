package embedding

import (
	"context"

	"ragqa/internal/adapter/resilience"
	"ragqa/internal/domain"
	"ragqa/internal/port"
)

// Guarded rate-limits embedding calls, applies a per-call timeout and stops
// calling a failing service through a circuit breaker.
type Guarded struct {
	inner port.Embedder
	guard *resilience.Guard
}

func NewGuarded(inner port.Embedder, guard *resilience.Guard) *Guarded {
	return &Guarded{inner: inner, guard: guard}
}

func (g *Guarded) Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	vectors, err := resilience.Do(ctx, g.guard, func(ctx context.Context) ([][]float32, error) {
		return g.inner.Embed(ctx, texts, mode)
	})
	if err != nil {
		return nil, serviceError("guarded embed", mode, err)
	}
	return vectors, nil
}

func (g *Guarded) ModelName() string {
	return g.inner.ModelName()
}
