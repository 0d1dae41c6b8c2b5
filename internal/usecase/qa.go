package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ragqa/internal/adapter/fs"
	"ragqa/internal/domain"
)

// UploadResult is returned to the upload caller.
type UploadResult struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Files   []string            `json:"files,omitempty"`
	Report  *domain.BuildReport `json:"-"`
	Err     error               `json:"-"`
}

// QAService is the question answering boundary. Its methods return
// structured results and never leak pipeline errors as failures.
type QAService struct {
	retriever *Retriever
	generator *AnswerGenerator
	docsDir   string
	log       logrus.FieldLogger

	// docsMu covers replacing docsDir and indexing it, so the index always
	// matches the last completed upload.
	docsMu sync.Mutex
}

func NewQAService(retriever *Retriever, generator *AnswerGenerator, docsDir string, log logrus.FieldLogger) *QAService {
	return &QAService{
		retriever: retriever,
		generator: generator,
		docsDir:   docsDir,
		log:       log,
	}
}

// Ask answers one query against the active index.
func (s *QAService) Ask(ctx context.Context, query string) domain.QueryResult {
	result, _ := s.Answer(ctx, query)
	return result
}

// Answer is Ask that also returns the pipeline error behind a failed
// result, for callers that classify failures.
func (s *QAService) Answer(ctx context.Context, query string) (domain.QueryResult, error) {
	start := time.Now()
	log := s.log.WithField("query_len", len(query))

	result, err := s.retriever.Retrieve(ctx, query)
	var empty *domain.RetrievalEmptyError
	switch {
	case errors.As(err, &empty):
		// no chunks; the generator answers with NotEnoughInformation
	case err != nil:
		log.WithError(err).Warn("retrieval failed")
		return domain.Failure(domain.MessageFor(err)), err
	}

	answer := s.generator.Generate(ctx, result.Query, result.Texts())
	log.WithFields(logrus.Fields{
		"chunks":      len(result.Chunks),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("query answered")
	return domain.Success(answer), nil
}

// Prompt returns the prompt that Ask would send to the model.
func (s *QAService) Prompt(ctx context.Context, query string) (string, error) {
	result, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	return s.generator.BuildPrompt(result.Query, result.Texts())
}

// Rebuild re-indexes the documents directory.
func (s *QAService) Rebuild(ctx context.Context, progress ProgressFunc) (*domain.BuildReport, error) {
	s.docsMu.Lock()
	defer s.docsMu.Unlock()
	return s.retriever.BuildFromDir(ctx, s.docsDir, progress)
}

// Upload replaces the document set with uploads and rebuilds the index.
func (s *QAService) Upload(ctx context.Context, uploads []fs.Upload) UploadResult {
	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	names, err := fs.ReplaceDocuments(s.docsDir, uploads)
	if err != nil {
		s.log.WithError(err).Error("failed to store uploaded documents")
		return UploadResult{Status: domain.StatusError, Message: fmt.Sprintf("Error uploading files: %v", err), Err: err}
	}

	report, err := s.retriever.BuildFromDir(ctx, s.docsDir, nil)
	if err != nil {
		s.log.WithError(err).WithField("files", len(names)).Warn("index rebuild after upload failed")
		return UploadResult{
			Status:  domain.StatusError,
			Message: domain.MessageFor(err),
			Files:   names,
			Report:  report,
			Err:     err,
		}
	}

	return UploadResult{
		Status:  domain.StatusSuccess,
		Message: fmt.Sprintf("Successfully uploaded %d files", len(names)),
		Files:   names,
		Report:  report,
	}
}

// Stats describes the active index.
func (s *QAService) Stats() (domain.Stats, bool) {
	return s.retriever.Stats()
}
