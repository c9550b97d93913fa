package formatter

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

// Column widths and page geometry, all in twips (1/1440 inch), per spec.md
// §4.8.
const (
	numberColTwips = 601
	gapColTwips    = 329
	textColTwips   = 8708

	pageMarginTopBottomTwips = 1701
	pageMarginLeftRightTwips = 1134

	rowMinHeightTwips = 283

	bodyFontHalfPoints = 24 // 12pt, OOXML sz is in half-points

	// measureCharWidthPt approximates the average glyph advance of the body
	// font at 12pt, used only to decide wrap points against
	// textColWidth-8pt; it is not a typesetting-accurate metric.
	measureCharWidthPt = 6.2
	twipsPerPoint      = 20.0
)

// wrapWidthPt is textColWidth minus 8pt, expressed in points, per spec.md
// §4.8's wrap rule.
func wrapWidthPt() float64 {
	return float64(textColTwips)/twipsPerPoint - 8.0
}

// wrapLine splits text into fragments that each fit within wrapWidthPt,
// breaking on word boundaries. A single word longer than the limit is kept
// whole rather than broken mid-word.
func wrapLine(text string) []string {
	limit := int(wrapWidthPt() / measureCharWidthPt)
	if limit < 1 {
		limit = 1
	}
	if len(text) <= limit {
		return []string{text}
	}

	var fragments []string
	var current []byte
	words := splitKeepingSpaces(text)
	for _, word := range words {
		if len(current)+len(word) > limit && len(current) > 0 {
			fragments = append(fragments, string(current))
			current = current[:0]
		}
		current = append(current, word...)
	}
	if len(current) > 0 {
		fragments = append(fragments, string(current))
	}
	if len(fragments) == 0 {
		fragments = []string{text}
	}
	return fragments
}

func splitKeepingSpaces(text string) []string {
	var words []string
	var current []byte
	for _, r := range text {
		current = append(current, string(r)...)
		if r == ' ' {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return words
}

// docxRow is one pre-wrapped table row: a numbered fragment of a single
// LineEntry's text, with the speaker prefix attached only on the first
// fragment of a block.
type docxRow struct {
	Number      int
	SpeakerText string // "I" or "D", empty if none on this row
	Bold        bool
	Text        string
}

func buildDocxRows(entries []LineEntry) []docxRow {
	var rows []docxRow
	for _, e := range entries {
		fragments := []string{e.Text}
		if e.Text != "" {
			fragments = wrapLine(e.Text)
		}
		for i, frag := range fragments {
			row := docxRow{Number: e.Number, Text: frag}
			if i == 0 && e.Speaker != nil {
				row.SpeakerText = string(*e.Speaker)
				row.Bold = true
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// RenderDOCX writes a minimal OOXML .docx: the header as plain unnumbered
// paragraphs, followed by a single page-wide, fixed-layout three-column
// table (number | gap | text), one row per wrapped line fragment.
func RenderDOCX(w io.Writer, header []string, entries []LineEntry) error {
	rows := buildDocxRows(entries)
	documentXML, err := buildDocumentXML(header, rows)
	if err != nil {
		return fmt.Errorf("build document.xml: %w", err)
	}

	zw := zip.NewWriter(w)

	files := []struct {
		name string
		body []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"word/_rels/document.xml.rels", []byte(documentRelsXML)},
		{"word/styles.xml", []byte(stylesXML)},
		{"word/document.xml", documentXML},
	}
	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.name, err)
		}
		if _, err := fw.Write(f.body); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return zw.Close()
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

const stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:docDefaults>
<w:rPrDefault><w:rPr><w:rFonts w:asciiTheme="minorHAnsi" w:hAnsiTheme="minorHAnsi"/><w:sz w:val="24"/></w:rPr></w:rPrDefault>
</w:docDefaults>
</w:styles>`

func buildDocumentXML(header []string, rows []docxRow) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`)
	buf.WriteString(`<w:body>`)

	for _, line := range header {
		buf.WriteString(`<w:p>`)
		if line != "" {
			buf.WriteString(`<w:r>`)
			if line == danishParticipantsLine {
				buf.WriteString(`<w:rPr><w:b/></w:rPr>`)
			}
			buf.WriteString(`<w:t xml:space="preserve">`)
			xml.EscapeText(&buf, []byte(line))
			buf.WriteString(`</w:t></w:r>`)
		}
		buf.WriteString(`</w:p>`)
	}

	buf.WriteString(`<w:tbl>`)
	buf.WriteString(`<w:tblPr><w:tblLayout w:type="fixed"/></w:tblPr>`)
	fmt.Fprintf(&buf, `<w:tblGrid><w:gridCol w:w="%d"/><w:gridCol w:w="%d"/><w:gridCol w:w="%d"/></w:tblGrid>`,
		numberColTwips, gapColTwips, textColTwips)

	for _, row := range rows {
		buf.WriteString(`<w:tr>`)
		fmt.Fprintf(&buf, `<w:trPr><w:trHeight w:val="%d" w:hRule="atLeast"/></w:trPr>`, rowMinHeightTwips)

		buf.WriteString(`<w:tc>`)
		fmt.Fprintf(&buf, `<w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr>`, numberColTwips)
		fmt.Fprintf(&buf, `<w:p><w:r><w:t xml:space="preserve">%d</w:t></w:r></w:p>`, row.Number)
		buf.WriteString(`</w:tc>`)

		buf.WriteString(`<w:tc>`)
		fmt.Fprintf(&buf, `<w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr>`, gapColTwips)
		buf.WriteString(`<w:p/>`)
		buf.WriteString(`</w:tc>`)

		buf.WriteString(`<w:tc>`)
		fmt.Fprintf(&buf, `<w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr>`, textColTwips)
		buf.WriteString(`<w:p>`)
		if row.SpeakerText != "" {
			buf.WriteString(`<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">`)
			xml.EscapeText(&buf, []byte(row.SpeakerText+": "))
			buf.WriteString(`</w:t></w:r>`)
		}
		buf.WriteString(`<w:r><w:t xml:space="preserve">`)
		xml.EscapeText(&buf, []byte(row.Text))
		buf.WriteString(`</w:t></w:r>`)
		buf.WriteString(`</w:p>`)
		buf.WriteString(`</w:tc>`)

		buf.WriteString(`</w:tr>`)
	}

	buf.WriteString(`</w:tbl>`)
	buf.WriteString(`<w:p/>`)
	fmt.Fprintf(&buf, `<w:sectPr><w:pgMar w:top="%d" w:bottom="%d" w:left="%d" w:right="%d"/></w:sectPr>`,
		pageMarginTopBottomTwips, pageMarginTopBottomTwips, pageMarginLeftRightTwips, pageMarginLeftRightTwips)
	buf.WriteString(`</w:body>`)
	buf.WriteString(`</w:document>`)
	return buf.Bytes(), nil
}
