package llm

import (
	"context"

	"ragqa/internal/adapter/resilience"
	"ragqa/internal/port"
)

// Guarded protects a generator with the shared rate limit, timeout and
// circuit breaker policy.
type Guarded struct {
	inner port.Generator
	guard *resilience.Guard
}

func NewGuarded(inner port.Generator, guard *resilience.Guard) *Guarded {
	return &Guarded{inner: inner, guard: guard}
}

func (g *Guarded) Generate(ctx context.Context, prompt string) (string, error) {
	return resilience.Do(ctx, g.guard, func(ctx context.Context) (string, error) {
		return g.inner.Generate(ctx, prompt)
	})
}

func (g *Guarded) ModelName() string {
	return g.inner.ModelName()
}
