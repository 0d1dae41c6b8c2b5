package port

import (
	"context"

	"ragqa/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates one vector per input text, in input order.
	// The mode must match the side of retrieval the texts belong to.
	Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string
}
