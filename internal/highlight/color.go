// Package highlight manages text selection, highlight creation and the
// highlight overlay.
package highlight

import (
	"regexp"
	"strconv"
	"strings"
)

// Palette colour names.
const (
	Yellow = "yellow"
	Green  = "green"
	Blue   = "blue"
	Pink   = "pink"
	Grey   = "grey"
)

// Palette maps colour names to the stored colour strings.
var Palette = map[string]string{
	Yellow: "rgba(255, 255, 0, 0.4)",
	Green:  "rgba(134, 239, 172, 0.5)",
	Blue:   "rgba(147, 197, 253, 0.5)",
	Pink:   "rgba(249, 168, 212, 0.5)",
	Grey:   "rgba(156, 163, 175, 0.5)",
}

// PaletteOrder is the toolbar order.
var PaletteOrder = []string{Yellow, Green, Blue, Pink, Grey}

// DefaultColor is the active colour before the user picks one.
var DefaultColor = Palette[Yellow]

// ResolveColor accepts a palette name or a colour string.
func ResolveColor(nameOrValue string) (string, bool) {
	if v, ok := Palette[strings.ToLower(strings.TrimSpace(nameOrValue))]; ok {
		return v, true
	}
	if _, ok := ParseColor(nameOrValue); ok {
		return nameOrValue, true
	}
	return "", false
}

// RGBA is a colour with channels in [0, 1].
type RGBA struct {
	R, G, B float64
	A       float64
}

// Black at full opacity, used for colours that fail to parse.
var Black = RGBA{A: 1}

var colorPattern = regexp.MustCompile(`rgba?\((\d+),\s*(\d+),\s*(\d+)(?:,\s*([\d.]+))?\)`)

// ParseColor reads rgb(r, g, b) or rgba(r, g, b, a). Alpha defaults to 1.
func ParseColor(s string) (RGBA, bool) {
	m := colorPattern.FindStringSubmatch(s)
	if m == nil {
		return RGBA{}, false
	}
	ch := func(v string) float64 {
		n, _ := strconv.Atoi(v)
		if n > 255 {
			n = 255
		}
		return float64(n) / 255
	}
	c := RGBA{R: ch(m[1]), G: ch(m[2]), B: ch(m[3]), A: 1}
	if m[4] != "" {
		a, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return RGBA{}, false
		}
		if a > 1 {
			a = 1
		}
		c.A = a
	}
	return c, true
}

// ParseColorOrBlack parses s, falling back to opaque black.
func ParseColorOrBlack(s string) RGBA {
	if c, ok := ParseColor(s); ok {
		return c
	}
	return Black
}
