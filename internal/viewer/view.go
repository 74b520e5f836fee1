package viewer

import (
	"image"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/zoom"
)

// View is a snapshot of everything the chrome draws.
type View struct {
	Open            bool                  `json:"open"`
	Filename        string                `json:"filename,omitempty"`
	Fingerprint     string                `json:"fingerprint,omitempty"`
	PageNumber      int                   `json:"pageNum"`
	PageCount       int                   `json:"pageCount"`
	Scale           float64               `json:"scale"`
	TargetScale     float64               `json:"targetScale"`
	ZoomState       string                `json:"zoomState"`
	Preview         zoom.PreviewTransform `json:"preview"`
	Scroll          domain.Point          `json:"scroll"`
	Viewport        domain.Size           `json:"viewport"`
	PageSize        domain.Size           `json:"pageSize"`
	Factor          float64               `json:"oversample"`
	Theme           domain.Theme          `json:"theme"`
	ControlsVisible bool                  `json:"controlsVisible"`
	Toolbar         highlight.Toolbar     `json:"toolbar"`
	ActiveColor     string                `json:"activeColor"`
	HighlightCount  int                   `json:"highlightCount"`
	CanPrev         bool                  `json:"canPrev"`
	CanNext         bool                  `json:"canNext"`
	Error           string                `json:"error,omitempty"`
}

// View returns the current view state.
func (s *Session) View() (View, error) {
	var v View
	if err := s.do(func() { v = s.view() }); err != nil {
		return View{}, err
	}
	return v, nil
}

func (s *Session) view() View {
	frame := s.surface.Presented()
	v := View{
		Open:            s.handle != nil,
		Filename:        s.filename,
		PageNumber:      s.page,
		Scale:           s.zoom.Scale(),
		TargetScale:     s.zoom.Target(),
		ZoomState:       s.zoom.State().String(),
		Preview:         s.zoom.Preview(frame.Logical),
		Scroll:          s.zoom.Scroll(),
		Viewport:        s.viewport,
		PageSize:        frame.Logical,
		Factor:          frame.Factor,
		Theme:           s.theme,
		ControlsVisible: s.controlsVisible,
		Toolbar:         s.highlights.Toolbar(),
		ActiveColor:     s.highlights.ActiveColor(),
		HighlightCount:  s.highlights.Set().Count(),
	}
	if s.lastError != nil {
		v.Error = s.lastError.Error()
	}
	if s.handle != nil {
		v.Fingerprint = s.handle.Fingerprint()
		v.PageCount = s.handle.PageCount()
		v.CanPrev = s.page > 1
		v.CanNext = s.page < v.PageCount
	}
	return v
}

// State returns the persisted part of the view.
func (s *Session) State() (domain.ViewportState, error) {
	var st domain.ViewportState
	if err := s.do(func() { st = s.state() }); err != nil {
		return domain.ViewportState{}, err
	}
	return st, nil
}

// Frame returns the presented frame.
func (s *Session) Frame() render.Frame {
	return s.surface.Presented()
}

// TextLayer returns the presented page's text layer, or nil before the
// first render lands.
func (s *Session) TextLayer() (*render.TextLayer, error) {
	var layer *render.TextLayer
	if err := s.do(func() { layer, _ = s.currentLayer() }); err != nil {
		return nil, err
	}
	return layer, nil
}

// Raster composes what the screen shows: the visible raster, inverted for
// dark themes, with the page's highlights blended on top and the zoom
// preview applied. It returns nil before the first render lands.
func (s *Session) Raster() (*image.RGBA, error) {
	var out *image.RGBA
	if err := s.do(func() { out = s.compose() }); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) compose() *image.RGBA {
	frame := s.surface.Presented()
	visible := s.surface.Visible()
	if visible == nil {
		return nil
	}
	out := Compose(visible, frame, s.highlights.Set(), s.theme)
	if t := s.zoom.Preview(frame.Logical); !t.Identity() {
		out = zoom.ApplyPreview(out, t)
	}
	return out
}

// Compose draws frame's page the way the theme shows it: raster inverted
// for dark themes, with the page's highlights blended on top. raster is
// left untouched.
func Compose(raster *image.RGBA, frame render.Frame, set domain.HighlightSet, theme domain.Theme) *image.RGBA {
	var out *image.RGBA
	if theme.InvertsPage() {
		out = render.Invert(raster)
	} else {
		out = render.Clone(raster)
	}
	highlight.Composite(out, highlight.Groups(set.ForPage(frame.Page), frame.Scale), frame.Factor, theme.BlendMode())
	return out
}

// SetControlsVisible shows or hides the overlay controls.
func (s *Session) SetControlsVisible(visible bool) error {
	return s.do(func() { s.controlsVisible = visible })
}

// ToggleControls flips the overlay controls and returns the new visibility.
func (s *Session) ToggleControls() (bool, error) {
	var visible bool
	if err := s.do(func() {
		s.controlsVisible = !s.controlsVisible
		visible = s.controlsVisible
	}); err != nil {
		return false, err
	}
	return visible, nil
}

// SetTheme switches the page appearance.
func (s *Session) SetTheme(theme domain.Theme) error {
	return s.do(func() { s.theme = theme })
}

// Overlay returns the current page's highlight groups at the rendered scale,
// ready for a client to draw.
func (s *Session) Overlay() ([]highlight.Group, error) {
	var groups []highlight.Group
	if err := s.do(func() { groups = s.highlights.Overlay(s.page, s.zoom.Scale()) }); err != nil {
		return nil, err
	}
	return groups, nil
}
