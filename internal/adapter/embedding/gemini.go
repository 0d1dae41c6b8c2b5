package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ragqa/internal/domain"
)

// documentTitle accompanies every document-mode request; the API only
// accepts titles for retrieval documents.
const documentTitle = "Document chunk"

// GeminiEmbedder embeds text with the Gemini embedding API. Document and
// query texts go through separately configured models so each request
// carries the matching task type.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	docModel   *genai.EmbeddingModel
	queryModel *genai.EmbeddingModel
	batchSize  int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, batchSize int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini embedder: API key is empty")
	}
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}

	docModel := client.EmbeddingModel(model)
	docModel.TaskType = genai.TaskTypeRetrievalDocument
	queryModel := client.EmbeddingModel(model)
	queryModel.TaskType = genai.TaskTypeRetrievalQuery

	return &GeminiEmbedder{
		client:     client,
		model:      model,
		docModel:   docModel,
		queryModel: queryModel,
		batchSize:  batchSize,
	}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embedBatch(ctx, texts[i:end], mode)
		if err != nil {
			return nil, serviceError("gemini batch embed", mode, err)
		}
		all = append(all, vectors...)
	}

	return all, nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	var model *genai.EmbeddingModel
	switch mode {
	case domain.ModeDocument:
		model = e.docModel
	case domain.ModeQuery:
		model = e.queryModel
	default:
		return nil, fmt.Errorf("unknown embedding mode %q", mode)
	}

	batch := model.NewBatch()
	for _, text := range texts {
		if mode == domain.ModeDocument {
			batch.AddContentWithTitle(documentTitle, genai.Text(text))
		} else {
			batch.AddContent(genai.Text(text))
		}
	}

	res, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	return collectVectors(len(texts), res.Embeddings)
}

func collectVectors(want int, embeddings []*genai.ContentEmbedding) ([][]float32, error) {
	if len(embeddings) != want {
		return nil, fmt.Errorf("malformed response: %d embeddings for %d texts", len(embeddings), want)
	}
	vectors := make([][]float32, want)
	for i, emb := range embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("malformed response: empty embedding at position %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *GeminiEmbedder) ModelName() string {
	return "gemini/" + e.model
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
