package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/text/encoding/charmap"
)

// ErrUnsupportedCharacter is returned when the text holds a character that
// neither the core font nor the embedded Unicode font can draw.
var ErrUnsupportedCharacter = errors.New("character not supported by pdf fonts")

// unicodeFamily is the name the embedded Go Regular font is registered under.
const unicodeFamily = "GoRegular"

var unicodeFont, unicodeFontErr = sfnt.Parse(goregular.TTF)

// PDF lays text out on A4 pages in 12pt Times, one paragraph per line. Text
// outside Windows-1252 is set in the embedded Go Regular font instead.
type PDF struct {
	FontFamily string
	FontSize   float64
	LineHeight float64
	MarginMM   float64
}

// NewPDF returns a PDF generator with the default layout.
func NewPDF() *PDF {
	return &PDF{
		FontFamily: "Times",
		FontSize:   12,
		LineHeight: 7,
		MarginMM:   25.4,
	}
}

// Generate renders text, breaking onto new pages as needed.
func (g *PDF) Generate(ctx context.Context, text string) ([]byte, error) {
	needsUnicode, err := needsUnicodeFont(text)
	if err != nil {
		return nil, err
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCreator("docshift", true)
	doc.SetMargins(g.MarginMM, g.MarginMM, g.MarginMM)
	doc.SetAutoPageBreak(true, g.MarginMM)
	doc.AddPage()

	var encode func(string) string
	if needsUnicode {
		doc.AddUTF8FontFromBytes(unicodeFamily, "", goregular.TTF)
		doc.SetFont(unicodeFamily, "", g.FontSize)
		encode = func(s string) string { return s }
	} else {
		doc.SetFont(g.FontFamily, "", g.FontSize)
		// Core fonts are cp1252 encoded.
		encode = doc.UnicodeTranslatorFromDescriptor("")
	}

	for _, line := range splitLines(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.MultiCell(0, g.LineHeight, encode(strings.TrimSpace(line)), "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// needsUnicodeFont reports whether text leaves Windows-1252, and fails when
// it holds a character the Unicode font has no glyph for.
func needsUnicodeFont(text string) (bool, error) {
	var (
		buf     sfnt.Buffer
		unicode bool
	)
	for _, r := range text {
		if r == '\r' || r == '\n' {
			continue
		}
		if _, ok := charmap.Windows1252.EncodeRune(r); ok {
			continue
		}
		if unicodeFontErr != nil {
			return false, fmt.Errorf("failed to load unicode font: %w", unicodeFontErr)
		}
		idx, err := unicodeFont.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			return false, fmt.Errorf("%w: %q (U+%04X)", ErrUnsupportedCharacter, r, r)
		}
		unicode = true
	}
	return unicode, nil
}
