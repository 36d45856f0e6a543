// Package generate renders enhanced text as a PDF or DOCX payload.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/jupark12/docshift/models"
)

// Generator renders text into a document payload.
type Generator interface {
	Generate(ctx context.Context, text string) ([]byte, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, text string) ([]byte, error)

// Generate calls f(ctx, text).
func (f GeneratorFunc) Generate(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

// For returns the generator producing documents of the given format.
func For(format models.Format) (Generator, error) {
	switch format {
	case models.FormatPDF:
		return NewPDF(), nil
	case models.FormatDOCX:
		return NewDOCX(), nil
	default:
		return nil, fmt.Errorf("no generator for %q: %w", format, models.ErrUnsupportedFormat)
	}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
