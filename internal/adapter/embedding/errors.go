package embedding

import (
	"errors"

	"ragqa/internal/adapter/resilience"
	"ragqa/internal/domain"
)

// serviceError wraps err as a domain.EmbeddingServiceError unless it already is one.
func serviceError(op string, mode domain.EmbeddingMode, err error) error {
	var es *domain.EmbeddingServiceError
	if errors.As(err, &es) {
		return err
	}
	return &domain.EmbeddingServiceError{
		Op:        op,
		Mode:      mode,
		Retryable: resilience.Retryable(err),
		Err:       err,
	}
}
