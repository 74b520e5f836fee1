package render

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// Span is a selectable text element positioned in layer pixels.
type Span struct {
	Text     string      `json:"text"`
	Rect     domain.Rect `json:"rect"`
	FontSize float64     `json:"fontSize"`
}

// TextLayer is the invisible, selectable overlay for one page at one scale.
// Its size equals the viewport size at that scale.
type TextLayer struct {
	Page  int         `json:"page"`
	Scale float64     `json:"scale"`
	Size  domain.Size `json:"size"`
	Spans []Span      `json:"spans"`
}

// BuildTextLayer positions runs at scale.
func BuildTextLayer(page int, scale float64, g document.Geometry, runs []document.TextRun) *TextLayer {
	layer := &TextLayer{Page: page, Scale: scale, Size: g.Size(scale), Spans: make([]Span, 0, len(runs))}
	for _, r := range runs {
		rect := domain.Rect{Top: r.Top, Left: r.Left, Width: r.Width, Height: r.Height}.Scale(scale)
		layer.Spans = append(layer.Spans, Span{Text: r.Text, Rect: rect, FontSize: r.FontSize * scale})
	}
	return layer
}

// Selection is a range over the layer's spans; offsets count runes and End
// is exclusive.
type Selection struct {
	StartSpan   int `json:"startSpan"`
	StartOffset int `json:"startOffset"`
	EndSpan     int `json:"endSpan"`
	EndOffset   int `json:"endOffset"`
}

// Collapsed reports whether the selection covers no characters.
func (s Selection) Collapsed() bool {
	return s.StartSpan == s.EndSpan && s.StartOffset == s.EndOffset
}

// Normalize orders start before end.
func (s Selection) Normalize() Selection {
	if s.EndSpan < s.StartSpan || (s.EndSpan == s.StartSpan && s.EndOffset < s.StartOffset) {
		s.StartSpan, s.EndSpan = s.EndSpan, s.StartSpan
		s.StartOffset, s.EndOffset = s.EndOffset, s.StartOffset
	}
	return s
}

// Contains reports whether both ends of sel fall inside the layer.
func (l *TextLayer) Contains(sel Selection) bool {
	if l == nil {
		return false
	}
	sel = sel.Normalize()
	return l.validEnd(sel.StartSpan, sel.StartOffset) && l.validEnd(sel.EndSpan, sel.EndOffset)
}

func (l *TextLayer) validEnd(span, offset int) bool {
	if span < 0 || span >= len(l.Spans) {
		return false
	}
	return offset >= 0 && offset <= utf8.RuneCountInString(l.Spans[span].Text)
}

// ClientRects returns one rect per selected span fragment, offset by the
// layer's on-screen origin.
func (l *TextLayer) ClientRects(sel Selection, origin domain.Point) []domain.Rect {
	if !l.Contains(sel) || sel.Collapsed() {
		return nil
	}
	sel = sel.Normalize()

	var rects []domain.Rect
	for i := sel.StartSpan; i <= sel.EndSpan; i++ {
		span := l.Spans[i]
		n := utf8.RuneCountInString(span.Text)
		from, to := 0, n
		if i == sel.StartSpan {
			from = sel.StartOffset
		}
		if i == sel.EndSpan {
			to = sel.EndOffset
		}
		if to <= from || n == 0 {
			continue
		}
		per := span.Rect.Width / float64(n)
		rects = append(rects, domain.Rect{
			Top:    origin.Y + span.Rect.Top,
			Left:   origin.X + span.Rect.Left + per*float64(from),
			Width:  per * float64(to-from),
			Height: span.Rect.Height,
		})
	}
	return rects
}

// Text returns the selected characters. Spans on different lines are joined
// with a newline, spans on the same line with a space.
func (l *TextLayer) Text(sel Selection) string {
	if !l.Contains(sel) || sel.Collapsed() {
		return ""
	}
	sel = sel.Normalize()

	var b strings.Builder
	for i := sel.StartSpan; i <= sel.EndSpan; i++ {
		runes := []rune(l.Spans[i].Text)
		from, to := 0, len(runes)
		if i == sel.StartSpan {
			from = sel.StartOffset
		}
		if i == sel.EndSpan {
			to = sel.EndOffset
		}
		if i > sel.StartSpan {
			if math.Abs(l.Spans[i].Rect.Top-l.Spans[i-1].Rect.Top) > l.Spans[i].Rect.Height/2 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		if to > from {
			b.WriteString(string(runes[from:to]))
		}
	}
	return b.String()
}

// HitTest maps a layer-local point to the nearest caret position. ok is false
// when the layer has no spans.
func (l *TextLayer) HitTest(p domain.Point) (span, offset int, ok bool) {
	if l == nil || len(l.Spans) == 0 {
		return 0, 0, false
	}
	best, bestDist := 0, math.Inf(1)
	for i, s := range l.Spans {
		d := rectDistance(s.Rect, p)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	s := l.Spans[best]
	n := utf8.RuneCountInString(s.Text)
	if n == 0 || s.Rect.Width <= 0 {
		return best, 0, true
	}
	pos := (p.X - s.Rect.Left) / (s.Rect.Width / float64(n))
	offset = int(math.Round(pos))
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	return best, offset, true
}

// SelectBetween builds the selection spanned by a drag from a to b.
func (l *TextLayer) SelectBetween(a, b domain.Point) (Selection, bool) {
	s1, o1, ok := l.HitTest(a)
	if !ok {
		return Selection{}, false
	}
	s2, o2, _ := l.HitTest(b)
	return Selection{StartSpan: s1, StartOffset: o1, EndSpan: s2, EndOffset: o2}.Normalize(), true
}

func rectDistance(r domain.Rect, p domain.Point) float64 {
	dx := math.Max(math.Max(r.Left-p.X, 0), p.X-r.Right())
	dy := math.Max(math.Max(r.Top-p.Y, 0), p.Y-r.Bottom())
	return math.Hypot(dx, dy)
}
