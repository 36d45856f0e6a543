package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const documentPart = "word/document.xml"

// DefaultMaxPartBytes caps the decompressed size of the main document part.
const DefaultMaxPartBytes = 64 << 20

// ErrDocumentTooLarge is returned when the main document part decompresses
// past the configured cap.
var ErrDocumentTooLarge = errors.New("document part exceeds size limit")

var zipMagic = []byte("PK\x03\x04")

// DOCX reads the paragraphs of a WordprocessingML package. Bytes that are not a
// zip archive are already plain text and pass through unchanged.
type DOCX struct {
	// MaxPartBytes caps word/document.xml after decompression. Zero means
	// DefaultMaxPartBytes.
	MaxPartBytes int64
}

// Extract returns one line per paragraph of the main document part.
func (d DOCX) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyInput
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return normalize(string(data)), nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("invalid docx archive: %w", err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", fmt.Errorf("invalid docx archive: missing %s", documentPart)
	}

	limit := d.MaxPartBytes
	if limit <= 0 {
		limit = DefaultMaxPartBytes
	}
	if part.UncompressedSize64 > uint64(limit) {
		return "", fmt.Errorf("%s is %d bytes: %w", documentPart, part.UncompressedSize64, ErrDocumentTooLarge)
	}

	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", documentPart, err)
	}
	defer rc.Close()

	// Reading one byte past the limit means the declared size was wrong.
	lr := &io.LimitedReader{R: rc, N: limit + 1}
	text, err := readParagraphs(ctx, lr)
	if lr.N == 0 {
		return "", fmt.Errorf("%s is over %d bytes: %w", documentPart, limit, ErrDocumentTooLarge)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", documentPart, err)
	}
	return normalize(text), nil
}

// readParagraphs walks the XML token stream collecting w:t runs per w:p.
func readParagraphs(ctx context.Context, r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
		inPara     bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				paragraphs = append(paragraphs, current.String())
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && inPara {
				current.Write(t)
			}
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}
