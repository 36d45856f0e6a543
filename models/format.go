package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is one of the two supported document format tags.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ErrUnsupportedFormat is returned for uploads whose extension is neither .pdf nor .docx.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// SupportedFormats lists every format the service accepts.
var SupportedFormats = []Format{FormatPDF, FormatDOCX}

// ParseFormat derives the format from a filename's extension.
func ParseFormat(filename string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch Format(ext) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Complement returns the format a document of this format is converted into.
func (f Format) Complement() Format {
	if f == FormatPDF {
		return FormatDOCX
	}
	return FormatPDF
}

// ContentType returns the MIME type served for payloads of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
