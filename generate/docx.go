package generate

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const (
	documentHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	documentFooter = `</w:body></w:document>`
)

// DOCX writes a minimal WordprocessingML package.
type DOCX struct {
	Font        string
	HalfPoints  int // font size in half-points
	LineSpacing int // in 240ths of a line
	MarginTwips int
}

// NewDOCX returns a DOCX generator with 1.5 line spacing, 12pt Times New Roman and 1in margins.
func NewDOCX() *DOCX {
	return &DOCX{
		Font:        "Times New Roman",
		HalfPoints:  24,
		LineSpacing: 360,
		MarginTwips: 1440,
	}
}

// Generate writes one paragraph per line of text.
func (g *DOCX) Generate(ctx context.Context, text string) ([]byte, error) {
	body, err := g.documentXML(ctx, text)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", body},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", p.name, err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *DOCX) documentXML(ctx context.Context, text string) (string, error) {
	var sb strings.Builder
	sb.WriteString(documentHeader)

	for _, line := range splitLines(text) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, `<w:p><w:pPr><w:spacing w:line="%d" w:lineRule="auto"/></w:pPr>`, g.LineSpacing)
		fmt.Fprintf(&sb, `<w:r><w:rPr><w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:cs="%[1]s"/><w:sz w:val="%[2]d"/></w:rPr>`, g.Font, g.HalfPoints)
		sb.WriteString(`<w:t xml:space="preserve">`)
		if err := xml.EscapeText(&sb, []byte(line)); err != nil {
			return "", fmt.Errorf("failed to escape text: %w", err)
		}
		sb.WriteString(`</w:t></w:r></w:p>`)
	}

	fmt.Fprintf(&sb, `<w:sectPr><w:pgSz w:w="11906" w:h="16838" w:orient="portrait"/><w:pgMar w:top="%[1]d" w:right="%[1]d" w:bottom="%[1]d" w:left="%[1]d" w:header="720" w:footer="720" w:gutter="0"/></w:sectPr>`, g.MarginTwips)
	sb.WriteString(documentFooter)
	return sb.String(), nil
}
