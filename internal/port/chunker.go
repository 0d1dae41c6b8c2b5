package port

import "ragqa/internal/domain"

type Chunker interface {
	// Chunk splits normalized text into ordered windows. Chunk indexes start at
	// firstIndex so a single pass over many documents yields one sequence.
	Chunk(source, text string, firstIndex int) []domain.Chunk
}
