package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is the declared format of a raw document.
type Format string

const (
	FormatText    Format = "text"
	FormatPDF     Format = "pdf"
	FormatDocx    Format = "docx"
	FormatUnknown Format = "unknown"
)

// FormatFromPath infers a document format from its file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".text":
		return FormatText
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDocx
	default:
		return FormatUnknown
	}
}

// Document is a raw document read once per indexing pass.
type Document struct {
	Source string // filename or other source identifier
	Format Format
	Data   []byte
}

// Chunk is a contiguous window of a document's normalized text.
type Chunk struct {
	Index  int    // position in the ordered sequence of one indexing pass
	Source string // document the chunk was cut from
	Text   string
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult holds the top-k chunks for one query, most relevant first.
type RetrievalResult struct {
	Query  string
	Chunks []ScoredChunk
}

// Texts returns the chunk texts in ranked order.
func (r RetrievalResult) Texts() []string {
	texts := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		texts[i] = c.Chunk.Text
	}
	return texts
}

// Stats describes the currently published index.
type Stats struct {
	Documents    int       `json:"documents"`
	Chunks       int       `json:"chunks"`
	Dimension    int       `json:"dimension"`
	ApproxTokens int       `json:"approx_tokens"`
	Model        string    `json:"model"`
	BuiltAt      time.Time `json:"built_at"`
}

// BuildReport summarises one indexing pass.
type BuildReport struct {
	Documents int
	Skipped   []string // unsupported formats
	Failed    []*ExtractionError
	Chunks    int
	Duration  time.Duration
}

// Status values of a QueryResult.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// QueryResult is the structured value returned across the system boundary.
type QueryResult struct {
	Status  string `json:"status"`
	Answer  string `json:"answer,omitempty"`
	Message string `json:"message,omitempty"`
}

func Success(answer string) QueryResult {
	return QueryResult{Status: StatusSuccess, Answer: answer}
}

func Failure(message string) QueryResult {
	return QueryResult{Status: StatusError, Message: message}
}
