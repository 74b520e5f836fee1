package viewer

import (
	"fmt"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
)

// PointerUp reports the end of a selection drag over the presented text
// layer and returns the toolbar to show.
func (s *Session) PointerUp(sel render.Selection, placement highlight.Placement) (highlight.Toolbar, error) {
	var tb highlight.Toolbar
	var err error
	if derr := s.do(func() {
		layer, lerr := s.currentLayer()
		if lerr != nil {
			s.highlights.ClearSelection()
			err = lerr
			return
		}
		tb = s.highlights.PointerUp(s.page, layer, sel, placement)
	}); derr != nil {
		return highlight.Toolbar{}, derr
	}
	return tb, err
}

// Select builds the selection dragged between two layer-local points and
// handles it like a pointer-up.
func (s *Session) Select(from, to domain.Point, placement highlight.Placement) (highlight.Toolbar, error) {
	var tb highlight.Toolbar
	var err error
	if derr := s.do(func() {
		layer, lerr := s.currentLayer()
		if lerr != nil {
			err = lerr
			return
		}
		sel, ok := layer.SelectBetween(from, to)
		if !ok {
			s.highlights.ClearSelection()
			return
		}
		tb = s.highlights.PointerUp(s.page, layer, sel, placement)
	}); derr != nil {
		return highlight.Toolbar{}, derr
	}
	return tb, err
}

// currentLayer returns the text layer of the presented frame if it shows
// the current page. Runs on the loop.
func (s *Session) currentLayer() (*render.TextLayer, error) {
	if s.handle == nil {
		return nil, ErrNoDocument
	}
	frame := s.surface.Presented()
	if frame.Empty() || frame.Page != s.page || frame.Layer == nil {
		return nil, domain.SelectionError("page has not rendered yet", nil)
	}
	return frame.Layer, nil
}

// ApplyHighlight highlights the pending selection with a palette name or a
// colour string. ok is false when nothing was selected.
func (s *Session) ApplyHighlight(color string) (domain.Highlight, bool, error) {
	value, valid := highlight.ResolveColor(color)
	if !valid {
		return domain.Highlight{}, false, domain.ValidationError(fmt.Sprintf("unknown colour %q", color), nil)
	}

	var h domain.Highlight
	var ok bool
	if err := s.do(func() {
		_, h, ok = s.highlights.Apply(value)
		if ok {
			s.scheduleSave()
		}
	}); err != nil {
		return domain.Highlight{}, false, err
	}
	return h, ok, nil
}

// AddHighlight records a highlight from page-space rects at scale 1.0.
func (s *Session) AddHighlight(page int, color string, rects []domain.Rect) (domain.Highlight, error) {
	value, valid := highlight.ResolveColor(color)
	if !valid {
		return domain.Highlight{}, domain.ValidationError(fmt.Sprintf("unknown colour %q", color), nil)
	}

	var h domain.Highlight
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
		var ok bool
		if _, h, ok = s.highlights.Add(page, value, rects); !ok {
			err = domain.ValidationError("highlight needs at least one non-empty rect", nil)
			return
		}
		s.scheduleSave()
	}); derr != nil {
		return domain.Highlight{}, derr
	}
	return h, err
}

// Copy returns the selected text and clears the selection.
func (s *Session) Copy() (string, bool, error) {
	var text string
	var ok bool
	if err := s.do(func() { text, ok = s.highlights.Copy() }); err != nil {
		return "", false, err
	}
	return text, ok, nil
}

// ClearSelection hides the toolbar.
func (s *Session) ClearSelection() error {
	return s.do(s.highlights.ClearSelection)
}

// Highlights returns a copy of the highlight set.
func (s *Session) Highlights() (domain.HighlightSet, error) {
	var set domain.HighlightSet
	if err := s.do(func() { set = s.highlights.Set().Clone() }); err != nil {
		return nil, err
	}
	return set, nil
}
