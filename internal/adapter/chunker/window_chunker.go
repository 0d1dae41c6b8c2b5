package chunker

import (
	"fmt"

	"ragqa/internal/domain"
)

// WindowChunker cuts text into fixed-size windows that overlap by a fixed
// number of characters. Sizes are counted in runes.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Stride is the distance between the starts of consecutive windows.
func (c *WindowChunker) Stride() int {
	return c.size - c.overlap
}

func (c *WindowChunker) Chunk(source, text string, firstIndex int) []domain.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	for start := 0; start < len(runes); start += c.Stride() {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, domain.Chunk{
			Index:  firstIndex + len(chunks),
			Source: source,
			Text:   string(runes[start:end]),
		})

		// the window already reaches the end; another one would be a suffix of it
		if end == len(runes) {
			break
		}
	}

	return chunks
}

// ExpectedCount returns how many chunks Chunk produces for a text of n runes.
func (c *WindowChunker) ExpectedCount(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= c.size {
		return 1
	}
	stride := c.Stride()
	return (n - c.overlap + stride - 1) / stride
}
