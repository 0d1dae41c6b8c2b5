package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ragqa/internal/domain"
)

// Extractor converts raw documents to normalized text. Failures never
// escape as panics or partial text: the caller gets an empty string and a
// *domain.ExtractionError.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(format domain.Format) bool {
	switch format {
	case domain.FormatText, domain.FormatPDF, domain.FormatDocx:
		return true
	default:
		return false
	}
}

func (e *Extractor) Extract(doc domain.Document) (text string, err error) {
	// the PDF parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &domain.ExtractionError{Source: doc.Source, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	switch doc.Format {
	case domain.FormatText:
		text, err = plainText(doc.Data), nil
	case domain.FormatPDF:
		text, err = pdfText(doc.Data)
	case domain.FormatDocx:
		text, err = docxText(doc.Data)
	default:
		err = fmt.Errorf("unsupported format %q", doc.Format)
	}

	if err != nil {
		return "", &domain.ExtractionError{Source: doc.Source, Err: err}
	}
	return text, nil
}

func plainText(data []byte) string {
	s := string(data)
	s = strings.TrimPrefix(s, "\ufeff")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
