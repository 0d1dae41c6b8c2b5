package index

import (
	"fmt"
	"math"
	"sort"

	"ragqa/internal/domain"
)

// FlatIndex is an immutable in-memory vector index searched exhaustively
// with cosine similarity. Build a new one instead of mutating it.
type FlatIndex struct {
	chunks    []domain.Chunk
	vectors   [][]float32
	norms     []float64
	dimension int
}

// New builds an index from parallel slices: chunks[i] is embedded by vectors[i].
func New(chunks []domain.Chunk, vectors [][]float32) (*FlatIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	idx := &FlatIndex{
		chunks:  chunks,
		vectors: vectors,
		norms:   make([]float64, len(vectors)),
	}

	for i, v := range vectors {
		if i == 0 {
			idx.dimension = len(v)
		} else if len(v) != idx.dimension {
			return nil, fmt.Errorf("vector dimension mismatch at chunk %d: expected %d, got %d", i, idx.dimension, len(v))
		}
		idx.norms[i] = norm(v)
	}

	return idx, nil
}

// Len returns the number of indexed chunks.
func (x *FlatIndex) Len() int {
	return len(x.chunks)
}

func (x *FlatIndex) Dimension() int {
	return x.dimension
}

// Search returns the k chunks most similar to query, best first. Ties are
// broken by the lower chunk position. k is clamped to the index size.
func (x *FlatIndex) Search(query []float32, k int) ([]domain.ScoredChunk, error) {
	if x == nil || len(x.chunks) == 0 || k <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", x.dimension, len(query))
	}

	type scored struct {
		pos   int
		score float64
	}

	qNorm := norm(query)
	scores := make([]scored, len(x.vectors))
	for i, v := range x.vectors {
		scores[i] = scored{pos: i, score: cosine(query, v, qNorm, x.norms[i])}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].pos < scores[j].pos
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]domain.ScoredChunk, k)
	for i := 0; i < k; i++ {
		results[i] = domain.ScoredChunk{
			Chunk: x.chunks[scores[i].pos],
			Score: scores[i].score,
		}
	}

	return results, nil
}

// cosine is zero when either vector has zero norm.
func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	sim := dot / (normA * normB)
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
