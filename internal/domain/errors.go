package domain

import (
	"errors"
	"fmt"
)

// User-facing messages.
const (
	MsgNoDocuments       = "No documents found. Please upload some documents first."
	MsgNoContent         = "Error processing documents. Please try uploading them again."
	MsgEmbeddingFailed   = "Error retrieving relevant information. Please try again."
	MsgNoRelevantInfo    = "No relevant information found for this query."
	MsgUnexpected        = "An unexpected error occurred. Please try again."
	MsgEmptyQuery        = "Query must not be empty."
	NotEnoughInformation = "I don't have enough information in the provided documents to answer this question."
	FallbackAnswer       = "Could not generate a response based on the provided information."
)

// ErrEmptyQuery is returned when a query is blank.
var ErrEmptyQuery = errors.New("empty query")

// EmbeddingMode tells the embedding service which side of retrieval a text is on.
type EmbeddingMode string

const (
	ModeDocument EmbeddingMode = "document"
	ModeQuery    EmbeddingMode = "query"
)

// ExtractionError reports a document whose text could not be extracted.
// It is never fatal: the document contributes an empty string.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmptyCorpusReason distinguishes a missing corpus from an unusable one.
type EmptyCorpusReason int

const (
	NoDocuments EmptyCorpusReason = iota
	NoContent
)

// EmptyCorpusError is returned when there is nothing to index or query.
type EmptyCorpusError struct {
	Reason EmptyCorpusReason
}

func (e *EmptyCorpusError) Error() string {
	if e.Reason == NoContent {
		return "documents present but no text could be extracted"
	}
	return "no documents"
}

// Message returns the user-actionable message for the error.
func (e *EmptyCorpusError) Message() string {
	if e.Reason == NoContent {
		return MsgNoContent
	}
	return MsgNoDocuments
}

// EmbeddingServiceError wraps a failed call to the embedding service.
type EmbeddingServiceError struct {
	Op        string
	Mode      EmbeddingMode
	Retryable bool
	Err       error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %s (%s): %v", e.Op, e.Mode, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationServiceError wraps a failed call to the generation service.
type GenerationServiceError struct {
	Err error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation service: %v", e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// RetrievalEmptyError is returned when a search yields no chunks.
type RetrievalEmptyError struct {
	Query string
}

func (e *RetrievalEmptyError) Error() string {
	return fmt.Sprintf("no relevant chunks for %q", e.Query)
}

// MessageFor maps any pipeline error to the message shown to users.
func MessageFor(err error) string {
	var ec *EmptyCorpusError
	var es *EmbeddingServiceError
	var re *RetrievalEmptyError
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return MsgEmptyQuery
	case errors.As(err, &ec):
		return ec.Message()
	case errors.As(err, &es):
		return MsgEmbeddingFailed
	case errors.As(err, &re):
		return MsgNoRelevantInfo
	default:
		return MsgUnexpected
	}
}
