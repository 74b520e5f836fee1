package viewer

import (
	"context"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/zoom"
)

// requestRender starts an asynchronous render of the current page. A
// non-nil commit renders at the commit's scale and resolves it on landing.
// Runs on the loop.
func (s *Session) requestRender(commit *zoom.Commit) {
	if s.renderer == nil {
		return
	}
	renderer := s.renderer
	page := s.page
	scale := s.zoom.Scale()
	if commit != nil {
		scale = commit.Scale
	}
	ctx := s.renderCtx

	s.async(func() {
		frame, err := renderer.Render(ctx, page, scale)
		s.post(func() { s.renderLanded(renderer, commit, frame, err) })
	})
}

func (s *Session) renderLanded(renderer *render.Renderer, commit *zoom.Commit, frame render.Frame, err error) {
	if renderer != s.renderer {
		return
	}
	if err != nil {
		if domain.IsCancelled(err) {
			return
		}
		s.lastError = err
		if commit != nil {
			s.zoom.RenderFailed(commit.ID)
			s.surface.DiscardSnapshot()
		}
		return
	}
	s.lastError = nil
	if commit == nil {
		return
	}
	scroll, ok := s.zoom.RenderComplete(commit.ID)
	if !ok {
		// A newer gesture started while this commit rendered; its frame is
		// on screen, so the gesture continues from it.
		if _, ok := s.zoom.Presented(*commit, frame.Logical); ok {
			s.scheduleSave()
		}
		return
	}
	scroll = zoom.ClampScroll(scroll, frame.Logical, s.viewport)
	s.zoom.SetScroll(scroll)
	s.logger.Debug().
		Float64("scale", commit.Scale).
		Float64("scroll_x", scroll.X).
		Float64("scroll_y", scroll.Y).
		Msg("zoom committed")
	s.scheduleSave()
}

// onZoomCommit is the controller's commit callback. It runs on a caller or
// timer goroutine, never on the loop.
func (s *Session) onZoomCommit(c zoom.Commit) {
	s.post(func() {
		if s.renderer == nil {
			s.zoom.RenderFailed(c.ID)
			return
		}
		s.surface.Snapshot()
		s.requestRender(&c)
	})
}

// ZoomIn steps the scale up around the viewport centre.
func (s *Session) ZoomIn() error {
	if err := s.requireDocument(); err != nil {
		return err
	}
	s.zoom.ZoomIn()
	return nil
}

// ZoomOut steps the scale down around the viewport centre.
func (s *Session) ZoomOut() error {
	if err := s.requireDocument(); err != nil {
		return err
	}
	s.zoom.ZoomOut()
	return nil
}

// Wheel feeds a wheel event. It reports whether the event was consumed as a
// zoom gesture; plain wheel events scroll and are left to the caller.
func (s *Session) Wheel(deltaY float64, pointer domain.Point, modifier bool) (bool, error) {
	if err := s.requireDocument(); err != nil {
		return false, err
	}
	return s.zoom.Wheel(deltaY, pointer, modifier), nil
}

// PinchStart begins a two-finger zoom.
func (s *Session) PinchStart(a, b domain.Point) error {
	if err := s.requireDocument(); err != nil {
		return err
	}
	s.zoom.PinchStart(a, b)
	return nil
}

// PinchMove updates a two-finger zoom.
func (s *Session) PinchMove(a, b domain.Point) {
	s.zoom.PinchMove(a, b)
}

// PinchEnd releases a two-finger zoom; the commit follows after it settles.
func (s *Session) PinchEnd() {
	s.zoom.PinchEnd()
}

// SetScroll records the container's scroll offset.
func (s *Session) SetScroll(p domain.Point) {
	s.zoom.SetScroll(p)
}

// SetViewport records the container size.
func (s *Session) SetViewport(size domain.Size) error {
	return s.do(func() {
		s.viewport = size
		s.zoom.SetViewport(size)
	})
}

func (s *Session) requireDocument() error {
	var open bool
	if err := s.do(func() { open = s.handle != nil }); err != nil {
		return err
	}
	if !open {
		return ErrNoDocument
	}
	return nil
}

// Render re-renders the current page and waits for it to land.
func (s *Session) Render(ctx context.Context) error {
	var renderer *render.Renderer
	var page int
	var scale float64
	if err := s.do(func() {
		if s.renderer != nil {
			s.abandonGesture()
		}
		renderer, page, scale = s.renderer, s.page, s.zoom.Scale()
	}); err != nil {
		return err
	}
	if renderer == nil {
		return ErrNoDocument
	}
	_, err := renderer.Render(ctx, page, scale)
	if err != nil && !domain.IsCancelled(err) {
		_ = s.do(func() { s.lastError = err })
	}
	return err
}
