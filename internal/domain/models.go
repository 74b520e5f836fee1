package domain

import (
	"math"
	"sort"
)

// Scale bounds shared by every zoom input.
const (
	MinScale     = 0.5
	MaxScale     = 5.0
	DefaultScale = 1.5
)

// DefaultFilename is used when the persisted book carries no filename.
const DefaultFilename = "book.pdf"

// Rect is a rectangle with a top-left origin and Y growing downward.
// Stored highlight rects are in page-space units (scale 1.0).
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Scale multiplies every coordinate by s.
func (r Rect) Scale(s float64) Rect {
	return Rect{Top: r.Top * s, Left: r.Left * s, Width: r.Width * s, Height: r.Height * s}
}

// Union returns the smallest rect containing both r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	top := math.Min(r.Top, o.Top)
	left := math.Min(r.Left, o.Left)
	bottom := math.Max(r.Bottom(), o.Bottom())
	right := math.Max(r.Right(), o.Right())
	return Rect{Top: top, Left: left, Width: right - left, Height: bottom - top}
}

// NormalizeRotation folds a page /Rotate value into 0, 90, 180 or 270.
// Values that are not a multiple of 90 are treated as 0.
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	if deg%90 != 0 {
		return 0
	}
	return deg
}

// Rotate maps r from an unrotated w x h page into the page as displayed after
// a clockwise rotation of deg degrees.
func (r Rect) Rotate(deg int, w, h float64) Rect {
	switch NormalizeRotation(deg) {
	case 90:
		return Rect{Top: r.Left, Left: h - r.Bottom(), Width: r.Height, Height: r.Width}
	case 180:
		return Rect{Top: h - r.Bottom(), Left: w - r.Right(), Width: r.Width, Height: r.Height}
	case 270:
		return Rect{Top: w - r.Right(), Left: r.Top, Width: r.Height, Height: r.Width}
	}
	return r
}

// Unrotate is the inverse of Rotate for the same unrotated w x h page.
func (r Rect) Unrotate(deg int, w, h float64) Rect {
	deg = NormalizeRotation(deg)
	if deg == 90 || deg == 270 {
		return r.Rotate(360-deg, h, w)
	}
	return r.Rotate(deg, w, h)
}

// Point is a position in viewport or content pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Highlight is a rectangular highlight annotation on one page.
type Highlight struct {
	ID    string `json:"id"`
	Color string `json:"color"`
	Rects []Rect `json:"rects"`
}

// HighlightSet maps page numbers to highlights in creation order.
type HighlightSet map[int][]Highlight

// Clone returns a deep copy of the set.
func (s HighlightSet) Clone() HighlightSet {
	out := make(HighlightSet, len(s))
	for page, hs := range s {
		cp := make([]Highlight, len(hs))
		for i, h := range hs {
			cp[i] = Highlight{ID: h.ID, Color: h.Color, Rects: append([]Rect(nil), h.Rects...)}
		}
		out[page] = cp
	}
	return out
}

// With returns a new set containing h appended to page. The receiver is not modified.
func (s HighlightSet) With(page int, h Highlight) HighlightSet {
	out := s.Clone()
	out[page] = append(out[page], Highlight{ID: h.ID, Color: h.Color, Rects: append([]Rect(nil), h.Rects...)})
	return out
}

// ForPage returns the highlights of a page.
func (s HighlightSet) ForPage(page int) []Highlight {
	return s[page]
}

// Pages returns the pages carrying at least one highlight, ascending.
func (s HighlightSet) Pages() []int {
	pages := make([]int, 0, len(s))
	for page, hs := range s {
		if len(hs) > 0 {
			pages = append(pages, page)
		}
	}
	sort.Ints(pages)
	return pages
}

// Count returns the number of highlights across all pages.
func (s HighlightSet) Count() int {
	n := 0
	for _, hs := range s {
		n += len(hs)
	}
	return n
}

// ViewportState is the unit of persistence for an open document.
type ViewportState struct {
	PageNumber int          `json:"pageNum"`
	Scale      float64      `json:"scale"`
	Highlights HighlightSet `json:"highlights"`
}

// InitialState is what the persistence collaborator hands over at mount.
type InitialState struct {
	ViewportState
	Filename string `json:"filename,omitempty"`
}

// Normalize fills defaults for a state loaded from storage.
func (s InitialState) Normalize() InitialState {
	if s.PageNumber < 1 {
		s.PageNumber = 1
	}
	if s.Scale <= 0 {
		s.Scale = DefaultScale
	}
	s.Scale = ClampScale(s.Scale)
	if s.Highlights == nil {
		s.Highlights = HighlightSet{}
	}
	if s.Filename == "" {
		s.Filename = DefaultFilename
	}
	return s
}

// ClampScale bounds a scale to [MinScale, MaxScale]. NaN maps to MinScale.
func ClampScale(s float64) float64 {
	if math.IsNaN(s) || s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}

// ClampPage bounds a page number to [1, pageCount].
func ClampPage(page, pageCount int) int {
	if pageCount < 1 {
		return 1
	}
	if page < 1 {
		return 1
	}
	if page > pageCount {
		return pageCount
	}
	return page
}

// Theme is the reading theme; it decides how highlights blend with the page.
type Theme string

const (
	ThemeWhite Theme = "white"
	ThemeDim   Theme = "dim"
	ThemeBlack Theme = "black"
)

// BlendMode names the composite operation used for highlights.
type BlendMode string

const (
	BlendMultiply BlendMode = "multiply"
	BlendScreen   BlendMode = "screen"
)

// BlendMode returns multiply for the white theme and screen for dark ones.
func (t Theme) BlendMode() BlendMode {
	if t == ThemeDim || t == ThemeBlack {
		return BlendScreen
	}
	return BlendMultiply
}

// InvertsPage reports whether the page raster is shown inverted.
func (t Theme) InvertsPage() bool {
	return t == ThemeDim || t == ThemeBlack
}

// ParseTheme maps a name to a theme, defaulting to white.
func ParseTheme(name string) Theme {
	switch Theme(name) {
	case ThemeDim:
		return ThemeDim
	case ThemeBlack:
		return ThemeBlack
	default:
		return ThemeWhite
	}
}
