package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ragqa/internal/adapter/analyzer"
	"ragqa/internal/adapter/cache"
	"ragqa/internal/adapter/index"
	"ragqa/internal/domain"
	"ragqa/internal/port"
)

// RetrieverOptions tunes index building and search.
type RetrieverOptions struct {
	TopK        int
	BatchSize   int // texts per embedding request
	Concurrency int // embedding requests in flight during a build
}

// ProgressFunc is told how many chunks have been embedded so far.
type ProgressFunc func(done, total int)

// snapshot is one published index. It is never modified after Store.
type snapshot struct {
	index *index.FlatIndex // nil after an empty build
	stats domain.Stats
	gen   uint64
}

// Retriever owns the active index. Builds run off to the side and are
// published with a single atomic store, so a query sees either the old
// index or the new one, never a mix.
type Retriever struct {
	extractor port.Extractor
	chunker   port.Chunker
	embedder  port.Embedder
	loader    *DocumentLoader
	tokenizer *analyzer.Tokenizer
	cache     *cache.QueryCache
	opts      RetrieverOptions
	log       logrus.FieldLogger

	buildMu sync.Mutex
	gen     uint64
	current atomic.Pointer[snapshot]
}

func NewRetriever(
	extractor port.Extractor,
	chunker port.Chunker,
	embedder port.Embedder,
	loader *DocumentLoader,
	opts RetrieverOptions,
	log logrus.FieldLogger,
) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Retriever{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		loader:    loader,
		tokenizer: analyzer.NewTokenizer(),
		opts:      opts,
		log:       log,
	}
}

// WithCache enables the retrieval cache.
func (r *Retriever) WithCache(c *cache.QueryCache) *Retriever {
	r.cache = c
	return r
}

// BuildFromDir loads the documents under dir and builds a new index. The
// directory is read under the build lock, so a later build never publishes
// an older view of dir.
func (r *Retriever) BuildFromDir(ctx context.Context, dir string, progress ProgressFunc) (*domain.BuildReport, error) {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	docs, unreadable, err := r.loader.Load(dir)
	if err != nil {
		return nil, err
	}
	report, err := r.buildIndex(ctx, docs, progress)
	if report != nil {
		report.Failed = append(unreadable, report.Failed...)
	}
	return report, err
}

// BuildIndex extracts, chunks and embeds docs, then publishes the result.
// On an empty corpus the active index is cleared.
// On an embedding failure the previous index stays active.
func (r *Retriever) BuildIndex(ctx context.Context, docs []domain.Document, progress ProgressFunc) (*domain.BuildReport, error) {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	return r.buildIndex(ctx, docs, progress)
}

// buildIndex expects buildMu to be held.
func (r *Retriever) buildIndex(ctx context.Context, docs []domain.Document, progress ProgressFunc) (*domain.BuildReport, error) {
	start := time.Now()
	report := &domain.BuildReport{}

	var chunks []domain.Chunk
	supported := 0
	for _, doc := range docs {
		if !r.extractor.Supports(doc.Format) {
			report.Skipped = append(report.Skipped, doc.Source)
			r.log.WithField("source", doc.Source).Info("skipping unsupported document")
			continue
		}
		supported++

		text, err := r.extractor.Extract(doc)
		if err != nil {
			var ee *domain.ExtractionError
			if errors.As(err, &ee) {
				report.Failed = append(report.Failed, ee)
			} else {
				report.Failed = append(report.Failed, &domain.ExtractionError{Source: doc.Source, Err: err})
			}
			r.log.WithError(err).WithField("source", doc.Source).Warn("text extraction failed")
			continue
		}
		if strings.TrimSpace(text) == "" {
			r.log.WithField("source", doc.Source).Warn("document has no extractable text")
			continue
		}

		docChunks := r.chunker.Chunk(doc.Source, text, len(chunks))
		chunks = append(chunks, docChunks...)
		report.Documents++
	}
	report.Chunks = len(chunks)

	if supported == 0 {
		return report, r.publishEmpty(domain.NoDocuments)
	}
	if len(chunks) == 0 {
		return report, r.publishEmpty(domain.NoContent)
	}

	vectors, err := r.embedChunks(ctx, chunks, progress)
	if err != nil {
		return report, fmt.Errorf("index build: %w", err)
	}

	idx, err := index.New(chunks, vectors)
	if err != nil {
		return report, fmt.Errorf("index build: %w", &domain.EmbeddingServiceError{
			Op: "build index", Mode: domain.ModeDocument, Err: err,
		})
	}

	tokens := 0
	for _, c := range chunks {
		tokens += r.tokenizer.CountTokens(c.Text)
	}

	report.Duration = time.Since(start)
	r.publish(&snapshot{
		index: idx,
		stats: domain.Stats{
			Documents:    report.Documents,
			Chunks:       idx.Len(),
			Dimension:    idx.Dimension(),
			ApproxTokens: tokens,
			Model:        r.embedder.ModelName(),
			BuiltAt:      time.Now(),
		},
	})

	r.log.WithFields(logrus.Fields{
		"documents":   report.Documents,
		"chunks":      report.Chunks,
		"skipped":     len(report.Skipped),
		"failed":      len(report.Failed),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("index built")

	return report, nil
}

// embedChunks embeds all chunks in document mode. Batches run concurrently
// up to the configured limit and write into their own slots, so the output
// order always matches chunk order. The first failure cancels the rest.
func (r *Retriever) embedChunks(ctx context.Context, chunks []domain.Chunk, progress ProgressFunc) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	var (
		progressMu sync.Mutex
		done       int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for start := 0; start < len(chunks); start += r.opts.BatchSize {
		end := start + r.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}

			batch, err := r.embedder.Embed(gctx, texts, domain.ModeDocument)
			if err != nil {
				return asEmbeddingError("embed chunks", domain.ModeDocument, err)
			}
			if len(batch) != len(texts) {
				return &domain.EmbeddingServiceError{
					Op:   "embed chunks",
					Mode: domain.ModeDocument,
					Err:  fmt.Errorf("malformed response: %d vectors for %d chunks", len(batch), len(texts)),
				}
			}
			copy(vectors[start:end], batch)

			if progress != nil {
				progressMu.Lock()
				done += len(texts)
				progress(done, len(chunks))
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (r *Retriever) publishEmpty(reason domain.EmptyCorpusReason) error {
	err := &domain.EmptyCorpusError{Reason: reason}
	r.publish(&snapshot{})
	r.log.WithField("reason", err.Error()).Warn("nothing to index, index cleared")
	return err
}

// publish must be called with buildMu held.
func (r *Retriever) publish(s *snapshot) {
	r.gen++
	s.gen = r.gen
	r.current.Store(s)
	if r.cache != nil {
		r.cache.Invalidate()
	}
}

// Retrieve embeds the query and returns the top-k chunks of the active
// index. Without a usable index it fails before calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string) (domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.RetrievalResult{}, domain.ErrEmptyQuery
	}

	snap := r.current.Load()
	if snap == nil || snap.index == nil || snap.index.Len() == 0 {
		return domain.RetrievalResult{}, &domain.EmptyCorpusError{Reason: domain.NoDocuments}
	}

	if r.cache != nil {
		if cached, ok := r.cache.Get(query, r.opts.TopK, snap.gen); ok {
			return cached, nil
		}
	}

	vectors, err := r.embedder.Embed(ctx, []string{query}, domain.ModeQuery)
	if err != nil {
		return domain.RetrievalResult{}, asEmbeddingError("embed query", domain.ModeQuery, err)
	}
	if len(vectors) != 1 {
		return domain.RetrievalResult{}, &domain.EmbeddingServiceError{
			Op: "embed query", Mode: domain.ModeQuery,
			Err: fmt.Errorf("malformed response: %d vectors for 1 query", len(vectors)),
		}
	}

	scored, err := snap.index.Search(vectors[0], r.opts.TopK)
	if err != nil {
		// a query vector that does not fit the index came from the wrong model
		return domain.RetrievalResult{}, &domain.EmbeddingServiceError{Op: "search", Mode: domain.ModeQuery, Err: err}
	}
	if len(scored) == 0 {
		return domain.RetrievalResult{}, &domain.RetrievalEmptyError{Query: query}
	}

	result := domain.RetrievalResult{Query: query, Chunks: scored}
	if r.cache != nil {
		r.cache.Put(query, r.opts.TopK, snap.gen, result)
	}
	return result, nil
}

// Stats describes the active index; ok is false until a non-empty index
// has been published.
func (r *Retriever) Stats() (stats domain.Stats, ok bool) {
	snap := r.current.Load()
	if snap == nil || snap.index == nil {
		return domain.Stats{}, false
	}
	return snap.stats, true
}

func asEmbeddingError(op string, mode domain.EmbeddingMode, err error) error {
	var es *domain.EmbeddingServiceError
	if errors.As(err, &es) {
		return err
	}
	return &domain.EmbeddingServiceError{Op: op, Mode: mode, Err: err}
}
