package extractor

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"ragserver/internal/domain"
)

// Extractor converts raw document bytes into a single UTF-8 text blob.
// The document type is taken from the filename extension.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Supports reports whether the given filename has an ingestable extension.
func (e *Extractor) Supports(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// Extract returns the full text of the document. There are no partial
// results: any parse failure returns an empty string and an error wrapping
// domain.ErrExtraction.
func (e *Extractor) Extract(data []byte, name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return e.extractPDF(data)
	case ".txt", ".md", ".markdown":
		return e.extractText(data)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrExtraction, filepath.Ext(name))
	}
}

func (e *Extractor) extractText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid UTF-8 text", domain.ErrExtraction)
	}
	return string(data), nil
}

// extractPDF decodes each page's text and joins pages with newlines, in
// page order.
func (e *Extractor) extractPDF(data []byte) (string, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: parsing pdf: %v", domain.ErrExtraction, err)
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("%w: reading pdf page count: %v", domain.ErrExtraction, err)
	}

	var builder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("%w: reading pdf page %d: %v", domain.ErrExtraction, i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("%w: extracting pdf page %d: %v", domain.ErrExtraction, i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("%w: extracting pdf page %d: %v", domain.ErrExtraction, i, err)
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
