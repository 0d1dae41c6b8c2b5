package usecase

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"

	"ragqa/internal/adapter/analyzer"
	"ragqa/internal/domain"
	"ragqa/internal/port"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var answerPrompt = template.Must(template.ParseFS(promptTemplates, "templates/answer_prompt.txt"))

// PromptData is what the answer prompt template renders.
type PromptData struct {
	Query   string
	Context []string
}

// AnswerGenerator turns retrieved chunks into a grounded answer.
type AnswerGenerator struct {
	llm       port.Generator
	tokenizer *analyzer.Tokenizer
	budget    int // context tokens; 0 means unlimited
	log       logrus.FieldLogger
}

func NewAnswerGenerator(llm port.Generator, budget int, log logrus.FieldLogger) *AnswerGenerator {
	return &AnswerGenerator{
		llm:       llm,
		tokenizer: analyzer.NewTokenizer(),
		budget:    budget,
		log:       log,
	}
}

// FitBudget keeps the longest ranked prefix of chunks that fits the token
// budget. The top chunk is always kept.
func (g *AnswerGenerator) FitBudget(chunks []string) []string {
	if g.budget <= 0 || len(chunks) == 0 {
		return chunks
	}

	used := g.tokenizer.CountTokens(chunks[0])
	kept := 1
	for _, c := range chunks[1:] {
		tokens := g.tokenizer.CountTokens(c)
		if used+tokens > g.budget {
			break
		}
		used += tokens
		kept++
	}

	if kept < len(chunks) {
		g.log.WithFields(logrus.Fields{
			"kept":    kept,
			"dropped": len(chunks) - kept,
			"tokens":  used,
			"budget":  g.budget,
		}).Debug("context trimmed to token budget")
	}
	return chunks[:kept]
}

// BuildPrompt renders the context chunks in ranked order, then the query,
// then the answering instruction.
func (g *AnswerGenerator) BuildPrompt(query string, chunks []string) (string, error) {
	var buf bytes.Buffer
	err := answerPrompt.Execute(&buf, PromptData{
		Query:   query,
		Context: g.FitBudget(chunks),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// Generate answers query from chunks. It never fails: without context the
// model is not called, and a failed or blank completion yields the
// fallback answer.
func (g *AnswerGenerator) Generate(ctx context.Context, query string, chunks []string) string {
	if len(chunks) == 0 {
		return domain.NotEnoughInformation
	}

	prompt, err := g.BuildPrompt(query, chunks)
	if err != nil {
		g.log.WithError(err).Error("prompt rendering failed")
		return domain.FallbackAnswer
	}

	text, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		g.log.WithError(&domain.GenerationServiceError{Err: err}).
			WithField("model", g.llm.ModelName()).
			Error("answer generation failed")
		return domain.FallbackAnswer
	}

	text = strings.TrimSpace(text)
	if text == "" {
		g.log.WithField("model", g.llm.ModelName()).Warn("model returned an empty answer")
		return domain.FallbackAnswer
	}
	return text
}
