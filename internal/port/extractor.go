package port

import "ragqa/internal/domain"

// Extractor converts a raw document into normalized text.
type Extractor interface {
	// Extract returns the document text. A non-nil error is always an
	// *domain.ExtractionError and the returned text is empty.
	Extract(doc domain.Document) (string, error)

	// Supports reports whether the format can be extracted at all.
	Supports(format domain.Format) bool
}
