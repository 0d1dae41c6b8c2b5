package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync/atomic"

	"ragqa/internal/adapter/analyzer"
	"ragqa/internal/domain"
)

// MockEmbedder is a deterministic offline embedder. Each content word is
// hashed into one of dimension buckets, so texts sharing words end up
// close in cosine space. Good enough for tests and demos without network.
type MockEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer

	documentCalls atomic.Int64
	queryCalls    atomic.Int64
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &MockEmbedder{dimension: dimension, tokenizer: analyzer.NewTokenizer()}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	switch mode {
	case domain.ModeDocument:
		e.documentCalls.Add(1)
	case domain.ModeQuery:
		e.queryCalls.Add(1)
	default:
		return nil, serviceError("mock embed", mode, fmt.Errorf("unknown embedding mode %q", mode))
	}
	if err := ctx.Err(); err != nil {
		return nil, serviceError("mock embed", mode, err)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.vector(text)
	}
	return embeddings, nil
}

func (e *MockEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dimension)
	for _, token := range e.tokenizer.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		v[h.Sum32()%uint32(e.dimension)]++
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Calls returns how many Embed calls were made in the given mode.
func (e *MockEmbedder) Calls(mode domain.EmbeddingMode) int {
	if mode == domain.ModeQuery {
		return int(e.queryCalls.Load())
	}
	return int(e.documentCalls.Load())
}

func (e *MockEmbedder) ModelName() string {
	return fmt.Sprintf("mock/%d", e.dimension)
}
