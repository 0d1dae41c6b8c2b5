package extract

import (
	"bytes"
	"fmt"
	"strings"

	"baliance.com/gooxml/document"
)

// docxText returns the body paragraphs in document order, one per line.
func docxText(data []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	paragraphs := doc.Paragraphs()
	lines := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		var line strings.Builder
		for _, r := range p.Runs() {
			line.WriteString(r.Text())
		}
		lines = append(lines, line.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
