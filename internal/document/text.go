package document

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// Ascent is the share of the font size drawn above the baseline.
const ascent = 0.8

// TextRun is a positioned run of text in displayed page space at scale 1.0,
// top-left origin.
type TextRun struct {
	Text     string  `json:"text"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"fontSize"`
}

// glyph is one shown string in PDF user space, baseline origin.
type glyph struct {
	X, Y, W  float64
	FontSize float64
	Font     string
	S        string
}

// groupRuns merges glyphs sharing a baseline and size into runs and converts
// them to top-left page space using geometry g.
func groupRuns(glyphs []glyph, g Geometry) []TextRun {
	var runs []TextRun
	var cur *glyph
	var b strings.Builder
	start := 0.0

	flush := func() {
		if cur == nil {
			return
		}
		text := b.String()
		if strings.TrimSpace(text) != "" {
			runs = append(runs, toRun(text, start, cur.X+cur.W, cur.Y, cur.FontSize, g))
		}
		cur = nil
		b.Reset()
	}

	for i := range glyphs {
		gl := glyphs[i]
		if gl.S == "" {
			continue
		}
		if cur != nil && continues(*cur, gl) {
			if gap := gl.X - (cur.X + cur.W); gap > 0.15*gl.FontSize && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			b.WriteString(gl.S)
			cur = &glyphs[i]
			continue
		}
		flush()
		cur = &glyphs[i]
		start = gl.X
		b.WriteString(gl.S)
	}
	flush()
	return runs
}

func continues(prev, next glyph) bool {
	if math.Abs(prev.Y-next.Y) > 0.5 || math.Abs(prev.FontSize-next.FontSize) > 0.01 {
		return false
	}
	end := prev.X + prev.W
	return next.X >= end-0.5*next.FontSize && next.X <= end+next.FontSize
}

func toRun(text string, x0, x1, baseline, size float64, g Geometry) TextRun {
	r := domain.Rect{
		Top:    g.OriginY + g.Height - baseline - ascent*size,
		Left:   x0 - g.OriginX,
		Width:  math.Max(x1-x0, 0),
		Height: size,
	}.Rotate(g.Rotation, g.Width, g.Height)
	return TextRun{
		Text:     text,
		Left:     r.Left,
		Top:      r.Top,
		Width:    r.Width,
		Height:   r.Height,
		FontSize: size,
	}
}

// pageGlyphs extracts shown strings from a page. The parser panics on some
// malformed content streams, which is reported as ok=false.
func pageGlyphs(p pdf.Page) (glyphs []glyph, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			glyphs, ok = nil, false
		}
	}()

	content := p.Content()
	glyphs = make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, Font: t.Font, S: t.S})
	}
	return glyphs, true
}

// pageBox reads the crop box, falling back to the media box, walking up the
// page tree for inherited values.
func pageBox(p pdf.Page) (llx, lly, urx, ury float64, ok bool) {
	for _, key := range []string{"CropBox", "MediaBox"} {
		for v := p.V; !v.IsNull(); v = v.Key("Parent") {
			box := v.Key(key)
			if box.IsNull() || box.Len() != 4 {
				continue
			}
			x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
			x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
			return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1), true
		}
	}
	return 0, 0, 0, 0, false
}

// pageRotation reads the inherited /Rotate value.
func pageRotation(p pdf.Page) int {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if r := v.Key("Rotate"); !r.IsNull() {
			return domain.NormalizeRotation(int(r.Int64()))
		}
	}
	return 0
}
