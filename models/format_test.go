package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Format
		wantErr  bool
	}{
		{name: "pdf", filename: "report.pdf", want: FormatPDF},
		{name: "docx", filename: "notes.docx", want: FormatDOCX},
		{name: "upper case extension", filename: "REPORT.PDF", want: FormatPDF},
		{name: "dotted name", filename: "q3.final.docx", want: FormatDOCX},
		{name: "txt", filename: "readme.txt", wantErr: true},
		{name: "doc", filename: "legacy.doc", wantErr: true},
		{name: "no extension", filename: "pdf", wantErr: true},
		{name: "empty", filename: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.filename)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComplementIsOpposite(t *testing.T) {
	for _, f := range SupportedFormats {
		c := f.Complement()
		assert.NotEqual(t, f, c)
		assert.Contains(t, SupportedFormats, c)
		assert.Equal(t, f, c.Complement())
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", FormatDOCX.ContentType())
}

func TestDownloadFilename(t *testing.T) {
	doc := &Document{OriginalName: "report.pdf", ConvertedFormat: FormatDOCX}
	assert.Equal(t, "report.pdf.docx", doc.DownloadFilename())
}
