package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
)

// Renderer rasterizes pages onto a Surface. Only the most recent request may
// commit; starting a new one cancels the one in flight.
type Renderer struct {
	handle  document.Handle
	surface *Surface
	opts    Options
	logger  *observability.Logger

	cache    cache.Client
	cacheTTL time.Duration
	flights  singleflight.Group

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithCache stores encoded rasters in c.
func WithCache(c cache.Client, ttl time.Duration) RendererOption {
	return func(r *Renderer) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) RendererOption {
	return func(r *Renderer) {
		r.logger = l
	}
}

// NewRenderer creates a renderer for handle presenting onto surface.
func NewRenderer(handle document.Handle, surface *Surface, opts Options, options ...RendererOption) *Renderer {
	r := &Renderer{
		handle:  handle,
		surface: surface,
		opts:    opts,
		logger:  observability.NopLogger(),
	}
	for _, o := range options {
		o(r)
	}
	r.logger = r.logger.WithOperation("render").WithDocument(handle.Fingerprint())
	return r
}

// Surface returns the surface this renderer presents onto.
func (r *Renderer) Surface() *Surface { return r.surface }

// Render produces and commits the frame for page at scale. A superseded
// request returns a cancelled error and never touches the surface; any other
// failure leaves the previously presented frame in place.
func (r *Renderer) Render(ctx context.Context, page int, scale float64) (Frame, error) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	if r.cancel != nil {
		r.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	start := time.Now()
	frame, err := r.produce(rctx, page, scale)

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq != r.seq {
		return Frame{}, domain.CancelledError(fmt.Sprintf("render of page %d superseded", page), nil)
	}
	r.cancel = nil

	if err != nil {
		if domain.IsCancelled(err) {
			r.logger.Debug().Int("page", page).Float64("scale", scale).Msg("render cancelled")
			return Frame{}, err
		}
		r.logger.Error().Err(err).Int("page", page).Float64("scale", scale).Msg("render failed, keeping previous frame")
		return Frame{}, err
	}

	frame.Seq = seq
	r.surface.Present(frame)
	r.logger.Debug().
		Int("page", page).
		Float64("scale", scale).
		Float64("factor", frame.Factor).
		Dur("took", time.Since(start)).
		Msg("frame committed")
	return frame, nil
}

// Cancel aborts the in-flight render, if any.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Renderer) produce(ctx context.Context, page int, scale float64) (Frame, error) {
	g, err := r.handle.PageGeometry(page)
	if err != nil {
		return Frame{}, err
	}

	logical := g.Size(scale)
	factor := r.opts.OversamplingFactor(logical.Width)
	size := RasterSize(logical, factor)
	if size.X <= 0 || size.Y <= 0 {
		return Frame{}, domain.RenderError(fmt.Sprintf("page %d has an empty raster at scale %.3f", page, scale), nil)
	}

	raster, err := r.raster(ctx, page, scale, factor, size)
	if err != nil {
		return Frame{}, err
	}

	layer := &TextLayer{Page: page, Scale: scale, Size: logical}
	runs, err := r.handle.TextContent(ctx, page)
	switch {
	case err == nil:
		layer = BuildTextLayer(page, scale, g, runs)
	case domain.IsCancelled(err):
		return Frame{}, err
	default:
		r.logger.Warn().Err(err).Int("page", page).Msg("text layer unavailable")
	}

	return Frame{Page: page, Scale: scale, Factor: factor, Logical: logical, Raster: raster, Layer: layer}, nil
}

func (r *Renderer) raster(ctx context.Context, page int, scale, factor float64, size image.Point) (*image.RGBA, error) {
	key := cache.RasterKey(r.handle.Fingerprint(), page, scale, factor)

	if r.cache != nil {
		if data, err := r.cache.Get(ctx, key); err == nil {
			if img, derr := DecodePNG(data); derr == nil && img.Bounds().Size() == size {
				return img, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn().Err(err).Str("key", key).Msg("raster cache read failed")
		}
	}

	v, err, _ := r.flights.Do(key, func() (interface{}, error) {
		img, err := r.handle.RenderPage(ctx, page, scale*factor)
		if err != nil {
			return nil, err
		}
		return Resize(img, size), nil
	})
	if err != nil {
		// A shared flight started by a cancelled caller must not fail a live one.
		if domain.IsCancelled(err) && ctx.Err() == nil {
			img, err := r.handle.RenderPage(ctx, page, scale*factor)
			if err != nil {
				return nil, err
			}
			v = Resize(img, size)
		} else {
			return nil, err
		}
	}
	img := v.(*image.RGBA)

	if r.cache != nil {
		if data, err := EncodePNG(img); err == nil {
			if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
				r.logger.Warn().Err(err).Str("key", key).Msg("raster cache write failed")
			}
		}
	}
	return img, nil
}
