package usecase

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"ragqa/internal/adapter/fs"
	"ragqa/internal/domain"
	"ragqa/internal/port"
)

// DocumentLoader reads the current document set from disk.
type DocumentLoader struct {
	walker port.FileWalker
	log    logrus.FieldLogger
}

func NewDocumentLoader(walker port.FileWalker, log logrus.FieldLogger) *DocumentLoader {
	return &DocumentLoader{walker: walker, log: log}
}

// Load returns every matching file under dir as a raw document. Files that
// cannot be read are reported and left out.
func (l *DocumentLoader) Load(dir string) ([]domain.Document, []*domain.ExtractionError, error) {
	files, err := l.walker.Walk(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk documents dir: %w", err)
	}

	docs := make([]domain.Document, 0, len(files))
	var failed []*domain.ExtractionError
	for _, file := range files {
		data, err := fs.ReadFile(file.Path)
		if err != nil {
			failed = append(failed, &domain.ExtractionError{Source: file.Path, Err: err})
			l.log.WithError(err).WithField("source", file.Path).Warn("failed to read document")
			continue
		}
		docs = append(docs, domain.Document{
			Source: file.Path,
			Format: domain.FormatFromPath(file.Path),
			Data:   data,
		})
	}

	l.log.WithFields(logrus.Fields{"dir": dir, "documents": len(docs)}).Debug("documents loaded")
	return docs, failed, nil
}
