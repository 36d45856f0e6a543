// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/jupark12/docshift/models"
)

// ErrEmptyInput is returned when there are no bytes to extract from.
var ErrEmptyInput = errors.New("empty input")

// Extractor returns the plain text contained in a document.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

// Extract calls f(ctx, data).
func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// For returns the extractor for documents of the given format.
func For(format models.Format) (Extractor, error) {
	switch format {
	case models.FormatPDF:
		return PDF{}, nil
	case models.FormatDOCX:
		return DOCX{}, nil
	default:
		return nil, fmt.Errorf("no extractor for %q: %w", format, models.ErrUnsupportedFormat)
	}
}

func normalize(text string) string {
	return norm.NFC.String(text)
}
