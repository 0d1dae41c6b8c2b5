package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"ragqa/config"
	"ragqa/internal/adapter/cache"
	"ragqa/internal/adapter/chunker"
	"ragqa/internal/adapter/embedding"
	"ragqa/internal/adapter/extract"
	"ragqa/internal/adapter/fs"
	"ragqa/internal/adapter/llm"
	"ragqa/internal/adapter/resilience"
	"ragqa/internal/adapter/store"
	"ragqa/internal/port"
	"ragqa/internal/usecase"
)

// App is the wired question answering pipeline.
type App struct {
	Retriever *usecase.Retriever
	Generator *usecase.AnswerGenerator
	QA        *usecase.QAService
	Embedder  port.Embedder

	// EmbeddingCache is nil unless embedding.cache is set.
	EmbeddingCache *embedding.Cached

	// Guards protect the network providers, keyed by "embedding" and
	// "generation". Offline providers have none.
	Guards map[string]*resilience.Guard

	closers []func() error
}

// Close releases provider clients and the embedding cache.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// Build wires the pipeline from cfg. Relative paths resolve against root.
// The caller must Close the result.
func Build(ctx context.Context, cfg *config.Config, root string, log logrus.FieldLogger) (*App, error) {
	a := &App{Guards: make(map[string]*resilience.Guard)}

	ch, err := chunker.NewWindowChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(ctx, cfg, root, log, a)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.Embedder = embedder

	generator, err := newGenerator(ctx, cfg, log, a)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	loader := usecase.NewDocumentLoader(fs.NewWalker(cfg.Documents.Includes, cfg.Documents.Excludes), log)
	a.Retriever = usecase.NewRetriever(extract.New(), ch, embedder, loader, usecase.RetrieverOptions{
		TopK:        cfg.Retrieve.TopK,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}, log)
	if cfg.Retrieve.CacheSize > 0 {
		a.Retriever.WithCache(cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL))
	}

	a.Generator = usecase.NewAnswerGenerator(generator, cfg.Generation.ContextTokenBudget, log)
	a.QA = usecase.NewQAService(a.Retriever, a.Generator, cfg.DocsDir(root), log)
	return a, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, root string, log logrus.FieldLogger, a *App) (port.Embedder, error) {
	ec := cfg.Embedding

	var raw port.Embedder
	switch ec.Provider {
	case "gemini":
		e, err := embedding.NewGeminiEmbedder(ctx, os.Getenv(ec.APIKeyEnv), ec.Model, ec.BatchSize)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, e.Close)
		raw = e
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(os.Getenv(ec.APIKeyEnv), ec.Model, ec.BaseURL, ec.BatchSize)
		if err != nil {
			return nil, err
		}
		raw = e
	case "mock":
		// offline and deterministic, nothing to guard or cache
		return embedding.NewMockEmbedder(ec.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}

	guard := resilience.NewGuard(resilience.Settings{
		Name:              "embedding",
		RequestsPerMinute: ec.RequestsPerMinute,
		Timeout:           ec.Timeout,
	}, log)
	a.Guards["embedding"] = guard
	var embedder port.Embedder = embedding.NewGuarded(raw, guard)

	if !ec.Cache {
		return embedder, nil
	}
	if err := config.EnsureStateDir(root); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	st, err := store.NewBoltStore(config.CachePath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	a.closers = append(a.closers, st.Close)

	cached, err := embedding.NewCached(embedder, st, ec.BaseURL, log)
	if err != nil {
		return nil, err
	}
	a.EmbeddingCache = cached
	return cached, nil
}

func newGenerator(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, a *App) (port.Generator, error) {
	gc := cfg.Generation

	var raw port.Generator
	switch gc.Provider {
	case "gemini":
		g, err := llm.NewGeminiGenerator(ctx, os.Getenv(gc.APIKeyEnv), gc.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		raw = g
	case "openai":
		g, err := llm.NewOpenAIGenerator(os.Getenv(gc.APIKeyEnv), gc.Model, gc.BaseURL)
		if err != nil {
			return nil, err
		}
		raw = g
	case "stub":
		return llm.NewStubGenerator("No generation model is configured."), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", gc.Provider)
	}

	guard := resilience.NewGuard(resilience.Settings{
		Name:    "generation",
		Timeout: gc.Timeout,
	}, log)
	a.Guards["generation"] = guard
	return llm.NewGuarded(raw, guard), nil
}
