// Package export burns highlights into a copy of the source PDF.
package export

import (
	"regexp"
	"strings"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// Box is the visible page box in PDF user space and the page's clockwise
// /Rotate.
type Box struct {
	LLX, LLY      float64
	Width, Height float64
	Rotate        int
}

// PDFRect converts a top-left rect on the displayed page to PDF user space,
// whose origin is the box's lower-left corner with Y growing upward. It
// returns the lower-left corner and size.
func PDFRect(r domain.Rect, box Box) (x, y, w, h float64) {
	r = r.Unrotate(box.Rotate, box.Width, box.Height)
	x = box.LLX + r.Left
	y = box.LLY + box.Height - r.Top - r.Height
	return x, y, r.Width, r.Height
}

var pdfSuffix = regexp.MustCompile(`(?i)\.pdf$`)

// OutputFilename derives the exported file's name from the original's.
func OutputFilename(original string) string {
	base := strings.TrimSpace(original)
	if base == "" {
		base = domain.DefaultFilename
	}
	return pdfSuffix.ReplaceAllString(base, "") + "-highlighted.pdf"
}
