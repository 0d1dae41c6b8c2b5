package port

import "context"

// Generator represents a language model for single-shot text generation.
type Generator interface {
	// Generate returns the model output for the prompt. An empty string
	// means the service produced no usable content.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
