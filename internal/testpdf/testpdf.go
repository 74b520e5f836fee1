// Package testpdf builds small, well-formed PDF files for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Page describes one page of a generated document.
type Page struct {
	Width, Height float64
	// Optional CropBox as llx, lly, urx, ury.
	CropBox []float64
	// Clockwise /Rotate; zero omits the key.
	Rotate int
	// Lines of text drawn with Helvetica.
	Lines []Line
}

// Line is a single text show operation; X and Y are the PDF baseline origin.
type Line struct {
	X, Y     float64
	FontSize float64
	Text     string
}

// Letter returns a US Letter page carrying the given lines.
func Letter(lines ...Line) Page {
	return Page{Width: 612, Height: 792, Lines: lines}
}

// Build serializes pages into a PDF with a valid cross-reference table.
func Build(pages ...Page) []byte {
	var objs []string

	// 1 catalog, 2 pages, 3 font, then page/content pairs.
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)

	for i, p := range pages {
		contentRef := 5 + 2*i
		page := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s]", num(p.Width), num(p.Height))
		if len(p.CropBox) == 4 {
			page += fmt.Sprintf(" /CropBox [%s %s %s %s]", num(p.CropBox[0]), num(p.CropBox[1]), num(p.CropBox[2]), num(p.CropBox[3]))
		}
		if p.Rotate != 0 {
			page += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		page += fmt.Sprintf(" /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentRef)

		var content strings.Builder
		for _, l := range p.Lines {
			fmt.Fprintf(&content, "BT /F1 %s Tf %s %s Td (%s) Tj ET\n", num(l.FontSize), num(l.X), num(l.Y), escape(l.Text))
		}
		stream := fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String())

		objs = append(objs, page, stream)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
