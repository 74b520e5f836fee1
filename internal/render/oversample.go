// Package render turns document pages into presented rasters and text layers.
package render

import (
	"image"
	"math"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// Options tunes rasterization density.
type Options struct {
	DevicePixelRatio float64
	// MinRasterWidth is the raster width in pixels the oversampling aims for.
	MinRasterWidth float64
	MinOversample  float64
	MaxOversample  float64
}

// DefaultOptions matches the reader's shipped settings.
func DefaultOptions() Options {
	return Options{DevicePixelRatio: 1, MinRasterWidth: 1800, MinOversample: 2, MaxOversample: 4}
}

// OversamplingFactor returns min(max(dpr, minWidth/viewportWidth, floor), ceil).
// A non-positive viewport width drops the dynamic term.
func (o Options) OversamplingFactor(viewportWidth float64) float64 {
	dpr := o.DevicePixelRatio
	if dpr <= 0 || math.IsNaN(dpr) {
		dpr = 1
	}
	dynamic := dpr
	if viewportWidth > 0 && o.MinRasterWidth > 0 {
		dynamic = o.MinRasterWidth / viewportWidth
	}
	f := math.Max(math.Max(dpr, dynamic), o.MinOversample)
	if o.MaxOversample > 0 {
		f = math.Min(f, o.MaxOversample)
	}
	return f
}

// RasterSize is the backing pixel size for a viewport rendered at factor.
func RasterSize(viewport domain.Size, factor float64) image.Point {
	return image.Pt(int(math.Floor(viewport.Width*factor)), int(math.Floor(viewport.Height*factor)))
}
