package viewer

import (
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/zoom"
)

// NextPage advances one page. It reports false on the last page.
func (s *Session) NextPage() (bool, error) {
	return s.step(1)
}

// PrevPage goes back one page. It reports false on the first page.
func (s *Session) PrevPage() (bool, error) {
	return s.step(-1)
}

func (s *Session) step(delta int) (bool, error) {
	var moved bool
	var err error
	if derr := s.do(func() {
		if s.handle == nil {
			err = ErrNoDocument
			return
		}
		moved = s.goTo(s.page + delta)
	}); derr != nil {
		return false, derr
	}
	return moved, err
}

// GoTo jumps to page. Out-of-range pages are a validation error.
func (s *Session) GoTo(page int) error {
	var err error
	if derr := s.do(func() {
		if s.handle == nil {
			err = ErrNoDocument
			return
		}
		if page < 1 || page > s.handle.PageCount() {
			err = domain.ValidationError("page out of range", nil)
			return
		}
		s.goTo(page)
	}); derr != nil {
		return derr
	}
	return err
}

// goTo moves to page if it exists. Runs on the loop.
func (s *Session) goTo(page int) bool {
	if page < 1 || page > s.handle.PageCount() || page == s.page {
		return false
	}
	s.abandonGesture()
	s.page = page
	s.highlights.ClearSelection()
	s.zoom.SetScroll(domain.Point{})
	s.logger.Debug().Int("page", page).Msg("page changed")
	s.requestRender(nil)
	s.scheduleSave()
	return true
}

// abandonGesture drops a pending zoom so a page render can take over the
// renderer. Runs on the loop.
func (s *Session) abandonGesture() {
	if s.zoom.State() == zoom.Idle {
		return
	}
	s.zoom.Reset(s.zoom.Scale())
	s.surface.DiscardSnapshot()
}

// EdgeClick handles a click at container x. Clicks left of the page turn
// back, clicks right of it turn forward, clicks on the page do nothing. It
// returns the page shown afterwards.
func (s *Session) EdgeClick(x float64) (int, error) {
	var page int
	var err error
	if derr := s.do(func() {
		if s.handle == nil {
			err = ErrNoDocument
			return
		}
		left, right := s.pageBounds()
		switch {
		case x < left:
			s.goTo(s.page - 1)
		case x > right:
			s.goTo(s.page + 1)
		}
		page = s.page
	}); derr != nil {
		return 0, derr
	}
	return page, err
}

// pageBounds returns the page's horizontal extent in container pixels. A
// page narrower than the viewport is centred; a wider one scrolls.
func (s *Session) pageBounds() (left, right float64) {
	g, err := s.handle.PageGeometry(s.page)
	if err != nil {
		return 0, s.viewport.Width
	}
	size := g.Size(s.zoom.Scale())
	width := size.Width
	if width < s.viewport.Width {
		left = zoom.PageOffset(size, s.viewport).X
	} else {
		left = -s.zoom.Scroll().X
	}
	return left, left + width
}
