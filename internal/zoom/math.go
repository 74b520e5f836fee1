// Package zoom turns zoom intents into scale changes that keep the content
// under an anchor point stationary.
package zoom

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// WheelFactor is the multiplicative scale change for a wheel delta.
// Scrolling up (negative delta) zooms in.
func WheelFactor(deltaY, sensitivity float64) float64 {
	return math.Exp(-sensitivity * deltaY)
}

// PinchFactor is the ratio of the current to the initial finger distance.
func PinchFactor(initialDistance, distance float64) float64 {
	if initialDistance <= 0 || distance <= 0 {
		return 1
	}
	return distance / initialDistance
}

// Distance between two touch points.
func Distance(a, b domain.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// AnchoredScroll returns the scroll offset that keeps the content under
// anchor (viewport pixels) fixed when the scale goes from oldScale to newScale.
func AnchoredScroll(scroll, anchor domain.Point, oldScale, newScale float64) domain.Point {
	if oldScale <= 0 {
		return scroll
	}
	ratio := newScale / oldScale
	return domain.Point{
		X: (scroll.X+anchor.X)*ratio - anchor.X,
		Y: (scroll.Y+anchor.Y)*ratio - anchor.Y,
	}
}

// ClampScroll bounds scroll to the scrollable range of content inside viewport.
func ClampScroll(scroll domain.Point, content, viewport domain.Size) domain.Point {
	maxX := math.Max(content.Width-viewport.Width, 0)
	maxY := math.Max(content.Height-viewport.Height, 0)
	return domain.Point{
		X: math.Min(math.Max(scroll.X, 0), maxX),
		Y: math.Min(math.Max(scroll.Y, 0), maxY),
	}
}

// Center of a viewport.
func Center(viewport domain.Size) domain.Point {
	return domain.Point{X: viewport.Width / 2, Y: viewport.Height / 2}
}

// Midpoint of two touch points.
func Midpoint(a, b domain.Point) domain.Point {
	return domain.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// PageOffset is where a page of size content starts inside viewport. A page
// narrower than the viewport is centred horizontally.
func PageOffset(content, viewport domain.Size) domain.Point {
	return domain.Point{X: math.Max((viewport.Width-content.Width)/2, 0)}
}

// PreviewTransform is the visual-only transform applied to the rendered
// raster while a gesture is active.
type PreviewTransform struct {
	Scale          float64 `json:"scale"`
	OriginXPercent float64 `json:"originXPercent"`
	OriginYPercent float64 `json:"originYPercent"`
}

// Identity reports whether the transform leaves pixels in place.
func (t PreviewTransform) Identity() bool {
	return t.Scale == 0 || t.Scale == 1
}

// NewPreview builds the transform scale(target/rendered) with its origin at
// the content point under anchor, in percent of the page box laid out in
// viewport.
func NewPreview(target, rendered float64, scroll, anchor domain.Point, content, viewport domain.Size) PreviewTransform {
	t := PreviewTransform{Scale: 1, OriginXPercent: 50, OriginYPercent: 50}
	if rendered > 0 {
		t.Scale = target / rendered
	}
	offset := PageOffset(content, viewport)
	if content.Width > 0 {
		t.OriginXPercent = (scroll.X + anchor.X - offset.X) / content.Width * 100
	}
	if content.Height > 0 {
		t.OriginYPercent = (scroll.Y + anchor.Y - offset.Y) / content.Height * 100
	}
	return t
}

// ApplyPreview scales src around the transform origin into a raster of the
// same size, as a compositor would draw the transformed element.
func ApplyPreview(src *image.RGBA, t PreviewTransform) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	if t.Identity() {
		draw.Copy(dst, b.Min, src, b, draw.Src, nil)
		return dst
	}
	ox := float64(b.Min.X) + t.OriginXPercent/100*float64(b.Dx())
	oy := float64(b.Min.Y) + t.OriginYPercent/100*float64(b.Dy())
	k := t.Scale
	m := f64.Aff3{
		k, 0, ox * (1 - k),
		0, k, oy * (1 - k),
	}
	draw.ApproxBiLinear.Transform(dst, m, src, b, draw.Src, nil)
	return dst
}
