package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"ragqa/internal/adapter/store"
	"ragqa/internal/domain"
	"ragqa/internal/port"
)

// Cached serves repeated texts from a persistent store and only sends the
// misses to the wrapped embedder. The store is tied to the wrapped model
// and the endpoint serving it: opening it with either changed clears the
// cached vectors.
type Cached struct {
	inner port.Embedder
	store *store.BoltStore
	log   logrus.FieldLogger

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCached(inner port.Embedder, st *store.BoltStore, endpoint string, log logrus.FieldLogger) (*Cached, error) {
	result, err := st.Prepare(Fingerprint(inner.ModelName(), endpoint))
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	if result.NeedsRebuild {
		log.WithField("reason", result.Reason).Info("embedding cache cleared")
	}
	return &Cached{inner: inner, store: st, log: log}, nil
}

// Fingerprint identifies the source of cached vectors. An empty endpoint
// stands for the provider's default.
func Fingerprint(model, endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return model
	}
	return model + "@" + endpoint
}

func (c *Cached) Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([][]byte, len(texts))
	for i, t := range texts {
		keys[i] = store.Key(mode, t)
	}

	vectors := make([][]float32, len(texts))
	found, err := c.store.GetVectors(keys)
	if err != nil {
		// a broken cache only costs extra embedding calls
		c.log.WithError(err).Warn("embedding cache read failed")
		found = nil
	}
	for i, v := range found {
		vectors[i] = v
	}

	var missTexts []string
	var missPos []int
	for i := range texts {
		if vectors[i] == nil {
			missTexts = append(missTexts, texts[i])
			missPos = append(missPos, i)
		}
	}

	c.hits.Add(int64(len(texts) - len(missTexts)))
	c.misses.Add(int64(len(missTexts)))

	if len(missTexts) == 0 {
		return vectors, nil
	}

	computed, err := c.inner.Embed(ctx, missTexts, mode)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missTexts) {
		return nil, serviceError("cached embed", mode,
			fmt.Errorf("malformed response: %d embeddings for %d texts", len(computed), len(missTexts)))
	}

	missKeys := make([][]byte, len(missPos))
	for j, pos := range missPos {
		vectors[pos] = computed[j]
		missKeys[j] = keys[pos]
	}

	if err := c.store.PutVectors(missKeys, computed); err != nil {
		c.log.WithError(err).Warn("embedding cache write failed")
	}

	return vectors, nil
}

// Stats returns cumulative cache hits and misses.
func (c *Cached) Stats() (hits, misses int) {
	return int(c.hits.Load()), int(c.misses.Load())
}

func (c *Cached) ModelName() string {
	return c.inner.ModelName()
}
