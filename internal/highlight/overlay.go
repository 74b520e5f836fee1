package highlight

import (
	"image"
	"math"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// Group is one overlay layer: every rect of one colour drawn at a single
// opacity, so overlapping same-colour highlights do not darken twice.
type Group struct {
	Color   string        `json:"color"`
	Fill    RGBA          `json:"-"`
	Opacity float64       `json:"opacity"`
	Rects   []domain.Rect `json:"rects"`
	// Parsed is false for colours that failed to parse; such groups hold a
	// single rect and draw at opacity 1.
	Parsed bool `json:"parsed"`
}

// Groups builds the overlay for highlights at scale, grouped by colour in
// first-appearance order. Rects come back in layer pixels.
func Groups(highlights []domain.Highlight, scale float64) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, h := range highlights {
		fill, ok := ParseColor(h.Color)
		if !ok {
			for _, r := range h.Rects {
				groups = append(groups, Group{Color: h.Color, Fill: Black, Opacity: 1, Rects: []domain.Rect{r.Scale(scale)}})
			}
			continue
		}

		i, seen := index[h.Color]
		if !seen {
			i = len(groups)
			index[h.Color] = i
			opaque := fill
			opaque.A = 1
			groups = append(groups, Group{Color: h.Color, Fill: opaque, Opacity: fill.A, Parsed: true})
		}
		for _, r := range h.Rects {
			groups[i].Rects = append(groups[i].Rects, r.Scale(scale))
		}
	}
	return groups
}

// Composite paints groups onto dst. factor converts layer pixels to raster
// pixels; blend is multiply on light themes and screen on dark ones.
func Composite(dst *image.RGBA, groups []Group, factor float64, blend domain.BlendMode) {
	b := dst.Bounds()
	mask := make([]bool, b.Dx()*b.Dy())

	for _, g := range groups {
		for i := range mask {
			mask[i] = false
		}
		for _, r := range g.Rects {
			x0 := clampInt(int(math.Floor(r.Left*factor)), 0, b.Dx())
			y0 := clampInt(int(math.Floor(r.Top*factor)), 0, b.Dy())
			x1 := clampInt(int(math.Ceil(r.Right()*factor)), 0, b.Dx())
			y1 := clampInt(int(math.Ceil(r.Bottom()*factor)), 0, b.Dy())
			for y := y0; y < y1; y++ {
				row := y * b.Dx()
				for x := x0; x < x1; x++ {
					mask[row+x] = true
				}
			}
		}

		fill := [3]float64{g.Fill.R, g.Fill.G, g.Fill.B}
		a := g.Opacity
		for y := 0; y < b.Dy(); y++ {
			row := y * b.Dx()
			off := dst.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < b.Dx(); x++ {
				if !mask[row+x] {
					continue
				}
				p := dst.Pix[off+4*x : off+4*x+3 : off+4*x+3]
				for c := 0; c < 3; c++ {
					d := float64(p[c]) / 255
					var mixed float64
					if blend == domain.BlendScreen {
						mixed = 1 - (1-d)*(1-fill[c])
					} else {
						mixed = d * fill[c]
					}
					p[c] = uint8(math.Round(((1-a)*d + a*mixed) * 255))
				}
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
