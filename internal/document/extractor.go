package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// Extractor pulls plain text out of PDF files. Each page's text is prefixed
// with a marker so retrieved chunks keep a trace of where they came from.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a PDF text extractor.
func NewExtractor() *Extractor {
	return &Extractor{logger: slog.Default()}
}

// ExtractionError reports an unreadable or unparseable document.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PageMarker returns the separator inserted ahead of each page's text.
// Pages are numbered from 1.
func PageMarker(page int) string {
	return fmt.Sprintf("\n--- Page %d ---\n", page)
}

// Extract parses the file at path as a PDF and returns its full text, pages
// concatenated in order with page markers between them.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}

	docs, err := documentloaders.NewPDF(file, info.Size()).Load(ctx)
	if err != nil {
		return "", &ExtractionError{Path: path, Err: err}
	}
	if len(docs) == 0 {
		return "", &ExtractionError{Path: path, Err: errors.New("document has no pages")}
	}

	var b strings.Builder
	for i, doc := range docs {
		page := i + 1
		if p, ok := doc.Metadata["page"].(int); ok {
			page = p
		}
		b.WriteString(PageMarker(page))
		b.WriteString(doc.PageContent)
	}

	text := b.String()
	e.logger.Info("extracted text", "path", path, "pages", len(docs), "chars", len(text))

	return text, nil
}
