package highlight

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
)

// ToolbarOffset is how far above the selection the toolbar floats.
const ToolbarOffset = 50

// Toolbar is the colour picker shown over a selection, positioned relative
// to the page container.
type Toolbar struct {
	Visible bool    `json:"visible"`
	Top     float64 `json:"top"`
	Left    float64 `json:"left"`
}

// Placement locates the text layer and its container in client coordinates.
type Placement struct {
	Layer     domain.Point
	Container domain.Point
}

// Manager owns the highlight set and the live selection.
type Manager struct {
	mu        sync.Mutex
	set       domain.HighlightSet
	selection *pendingSelection
	toolbar   Toolbar
	active    string
	newID     func() string
	logger    *observability.Logger
}

type pendingSelection struct {
	page      int
	scale     float64
	layer     *render.TextLayer
	sel       render.Selection
	placement Placement
}

// NewManager starts from a loaded set, which may be nil.
func NewManager(set domain.HighlightSet, logger *observability.Logger) *Manager {
	if set == nil {
		set = domain.HighlightSet{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Manager{
		set:    set,
		active: DefaultColor,
		newID:  uuid.NewString,
		logger: logger.WithOperation("highlight"),
	}
}

// Set returns the current highlight set. Callers must not mutate it.
func (m *Manager) Set() domain.HighlightSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

// Replace swaps in a set loaded from storage and drops the selection.
func (m *Manager) Replace(set domain.HighlightSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set == nil {
		set = domain.HighlightSet{}
	}
	m.set = set
	m.clearLocked()
}

// Toolbar returns the toolbar state.
func (m *Manager) Toolbar() Toolbar {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolbar
}

// ActiveColor is the colour last chosen.
func (m *Manager) ActiveColor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// HasSelection reports whether a selection is pending.
func (m *Manager) HasSelection() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selection != nil
}

// PointerUp inspects the selection at the end of a drag. A non-empty
// selection inside the text layer shows the toolbar; anything else hides it.
func (m *Manager) PointerUp(page int, layer *render.TextLayer, sel render.Selection, placement Placement) Toolbar {
	m.mu.Lock()
	defer m.mu.Unlock()

	if layer == nil || sel.Collapsed() || !layer.Contains(sel) {
		m.clearLocked()
		return m.toolbar
	}

	rects := layer.ClientRects(sel, placement.Layer)
	if len(rects) == 0 {
		m.clearLocked()
		return m.toolbar
	}

	var bounds domain.Rect
	for _, r := range rects {
		bounds = bounds.Union(r)
	}

	m.selection = &pendingSelection{page: page, scale: layer.Scale, layer: layer, sel: sel.Normalize(), placement: placement}
	m.toolbar = Toolbar{
		Visible: true,
		Top:     bounds.Top - placement.Container.Y - ToolbarOffset,
		Left:    bounds.Left - placement.Container.X + bounds.Width/2,
	}
	return m.toolbar
}

// ClearSelection drops the selection and hides the toolbar.
func (m *Manager) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

// Apply turns the pending selection into a highlight of color on its page.
// The returned set is new; the previous one is left untouched. ok is false
// when there was nothing to highlight.
func (m *Manager) Apply(color string) (domain.HighlightSet, domain.Highlight, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = color
	p := m.selection
	if p == nil {
		return m.set, domain.Highlight{}, false
	}
	defer m.clearLocked()

	rects := PageRects(p.layer.ClientRects(p.sel, p.placement.Layer), p.placement.Layer, p.scale)
	if len(rects) == 0 {
		m.logger.Debug().Int("page", p.page).Msg("selection produced no rects")
		return m.set, domain.Highlight{}, false
	}

	h := domain.Highlight{ID: m.newID(), Color: color, Rects: rects}
	m.set = m.set.With(p.page, h)
	m.logger.Debug().Int("page", p.page).Int("rects", len(rects)).Str("color", color).Msg("highlight added")
	return m.set, h, true
}

// Add appends a highlight built elsewhere, e.g. from page-space rects given
// on the command line.
func (m *Manager) Add(page int, color string, rects []domain.Rect) (domain.HighlightSet, domain.Highlight, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []domain.Rect
	for _, r := range rects {
		if !r.Empty() {
			kept = append(kept, r)
		}
	}
	if page < 1 || len(kept) == 0 {
		return m.set, domain.Highlight{}, false
	}
	h := domain.Highlight{ID: m.newID(), Color: color, Rects: kept}
	m.set = m.set.With(page, h)
	return m.set, h, true
}

// Copy returns the selected text and clears the selection.
func (m *Manager) Copy() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.selection == nil {
		return "", false
	}
	text := m.selection.layer.Text(m.selection.sel)
	m.clearLocked()
	return text, text != ""
}

// Overlay returns the grouped overlay for page at scale.
func (m *Manager) Overlay(page int, scale float64) []Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Groups(m.set.ForPage(page), scale)
}

func (m *Manager) clearLocked() {
	m.selection = nil
	m.toolbar = Toolbar{}
}

// PageRects converts client rects to page space at scale 1.0 relative to
// the text layer's client origin.
func PageRects(client []domain.Rect, layer domain.Point, scale float64) []domain.Rect {
	if scale <= 0 {
		return nil
	}
	out := make([]domain.Rect, 0, len(client))
	for _, r := range client {
		out = append(out, domain.Rect{
			Top:    (r.Top - layer.Y) / scale,
			Left:   (r.Left - layer.X) / scale,
			Width:  r.Width / scale,
			Height: r.Height / scale,
		})
	}
	return out
}
