package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"

	"ragqa/internal/domain"
)

// OpenAIEmbedder embeds text with an OpenAI-compatible embeddings endpoint.
// The API has no task types, so both modes produce the same vectors; the
// mode is still validated so callers cannot skip it.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	batchSize int
}

func NewOpenAIEmbedder(apiKey, model, baseURL string, batchSize int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedder: API key is empty")
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	opts := []oaioption.RequestOption{oaioption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, oaioption.WithBaseURL(baseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     model,
		batchSize: batchSize,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	if mode != domain.ModeDocument && mode != domain.ModeQuery {
		return nil, serviceError("openai embed", mode, fmt.Errorf("unknown embedding mode %q", mode))
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, serviceError("openai batch embed", mode, err)
		}
		all = append(all, vectors...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("malformed response: %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	// results carry their input position; do not trust response order
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(vectors) || len(data.Embedding) == 0 {
			return nil, fmt.Errorf("malformed response: bad embedding at index %d", data.Index)
		}
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		vectors[data.Index] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("malformed response: missing embedding for text %d", i)
		}
	}

	return vectors, nil
}

func (e *OpenAIEmbedder) ModelName() string {
	return "openai/" + e.model
}
