package document

import (
	_ "embed"
	"fmt"
	"io"
	"sync"
	"unicode"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/sfnt"
)

const (
	pdfMargin       = 20.0
	pdfOptionIndent = 8.0
	pdfFont         = "DejaVu"
)

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	dejaVuRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	dejaVuBold []byte
)

var (
	glyphFontOnce sync.Once
	glyphFont     *sfnt.Font
	glyphFontErr  error
)

// unsupportedRune returns the first rune in p that the embedded PDF font has
// no glyph for, or 0 when every rune can be drawn.
func unsupportedRune(p page) (rune, error) {
	glyphFontOnce.Do(func() {
		glyphFont, glyphFontErr = sfnt.Parse(dejaVuRegular)
	})
	if glyphFontErr != nil {
		return 0, fmt.Errorf("parse PDF font: %w", glyphFontErr)
	}
	var buf sfnt.Buffer
	for _, text := range append([]string{p.title}, pageTexts(p)...) {
		for _, r := range text {
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				continue
			}
			idx, err := glyphFont.GlyphIndex(&buf, r)
			if err != nil {
				return 0, err
			}
			if idx == 0 {
				return r, nil
			}
		}
	}
	return 0, nil
}

func pageTexts(p page) []string {
	texts := make([]string, len(p.lines))
	for i, l := range p.lines {
		texts[i] = l.text
	}
	return texts
}

// writePDF renders p on A4 pages with an embedded DejaVu Sans, which covers
// Latin, Greek and Cyrillic scripts.
func writePDF(w io.Writer, p page) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(p.title, true)
	pdf.SetCreator("ExamGen", true)
	pdf.AddUTF8FontFromBytes(pdfFont, "", dejaVuRegular)
	pdf.AddUTF8FontFromBytes(pdfFont, "B", dejaVuBold)

	pdf.AddPage()
	for _, l := range p.lines {
		switch l.style {
		case styleHeading:
			pdf.SetFont(pdfFont, "B", 16)
			pdf.MultiCell(0, 9, l.text, "", "L", false)
			pdf.Ln(3)
		case styleBlank:
			pdf.Ln(5)
		case styleOption:
			pdf.SetFont(pdfFont, "", 11)
			pdf.SetX(pdfMargin + pdfOptionIndent)
			pdf.MultiCell(0, 6, l.text, "", "L", false)
		default:
			pdf.SetFont(pdfFont, "", 11)
			pdf.MultiCell(0, 6, l.text, "", "L", false)
		}
	}
	return pdf.Output(w)
}
