package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
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

// writeDOCX writes p as a minimal WordprocessingML package.
func writeDOCX(w io.Writer, p page) error {
	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(relsXML)},
		{"word/document.xml", documentXML(p)},
	}
	for _, part := range parts {
		f, err := zw.Create(part.name)
		if err != nil {
			return err
		}
		if _, err := f.Write(part.body); err != nil {
			return err
		}
	}
	return zw.Close()
}

func documentXML(p page) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, l := range p.lines {
		b.WriteString("<w:p>")
		switch l.style {
		case styleHeading:
			b.WriteString(`<w:pPr><w:spacing w:after="240"/></w:pPr>`)
		case styleOption:
			b.WriteString(`<w:pPr><w:ind w:left="720"/></w:pPr>`)
		}
		if l.text != "" {
			b.WriteString("<w:r>")
			if l.style == styleHeading {
				b.WriteString(`<w:rPr><w:b/><w:sz w:val="32"/></w:rPr>`)
			}
			for i, seg := range strings.Split(l.text, "\n") {
				if i > 0 {
					b.WriteString("<w:br/>")
				}
				b.WriteString(`<w:t xml:space="preserve">`)
				xml.EscapeText(&b, []byte(seg))
				b.WriteString("</w:t>")
			}
			b.WriteString("</w:r>")
		}
		b.WriteString("</w:p>")
	}
	// A4 with 2.5 cm margins.
	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>`)
	b.WriteString(`<w:pgMar w:top="1417" w:right="1417" w:bottom="1417" w:left="1417" w:header="708" w:footer="708" w:gutter="0"/>`)
	b.WriteString(`</w:sectPr></w:body></w:document>`)
	return b.Bytes()
}
