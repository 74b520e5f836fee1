package zoom

import (
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/schedule"
)

// State of the gesture state machine.
type State int

const (
	Idle State = iota
	GestureActive
	Committing
)

func (s State) String() string {
	switch s {
	case GestureActive:
		return "gesture-active"
	case Committing:
		return "committing"
	default:
		return "idle"
	}
}

// Settings tunes gesture handling.
type Settings struct {
	WheelSensitivity float64
	WheelSettle      time.Duration
	PinchSettle      time.Duration
	ButtonStep       float64
}

// DefaultSettings matches the reader's shipped gesture feel.
func DefaultSettings() Settings {
	return Settings{
		WheelSensitivity: 0.003,
		WheelSettle:      100 * time.Millisecond,
		PinchSettle:      80 * time.Millisecond,
		ButtonStep:       0.25,
	}
}

// Commit asks for a re-render at Scale. Once the render lands, RenderComplete
// must be called with ID to obtain the anchored scroll offset.
type Commit struct {
	ID        uint64
	Scale     float64
	PrevScale float64
	Anchor    domain.Point
	Scroll    domain.Point
}

// CommitFunc receives commits. It runs on the goroutine that triggered the
// commit, which for debounced gestures is a timer goroutine.
type CommitFunc func(Commit)

// Controller is the zoom state machine. A new gesture always cancels a
// pending commit, so the last gesture wins.
type Controller struct {
	settings Settings
	clock    schedule.Clock
	onCommit CommitFunc

	mu       sync.Mutex
	state    State
	rendered float64
	target   float64
	anchor   domain.Point
	origin   domain.Point
	scroll   domain.Point
	viewport domain.Size
	timer    schedule.Timer
	gen      uint64
	pending  *Commit

	pinchBase     float64
	pinchDistance float64
}

// NewController starts idle at scale.
func NewController(settings Settings, clock schedule.Clock, scale float64, onCommit CommitFunc) *Controller {
	if clock == nil {
		clock = schedule.RealClock()
	}
	scale = domain.ClampScale(scale)
	return &Controller{
		settings: settings,
		clock:    clock,
		onCommit: onCommit,
		rendered: scale,
		target:   scale,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scale returns the last rendered scale.
func (c *Controller) Scale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rendered
}

// Target returns the scale the user is steering towards.
func (c *Controller) Target() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// SetViewport records the visible area size in pixels.
func (c *Controller) SetViewport(size domain.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = size
}

// SetScroll records the scroll offset. Ignored while a gesture is in
// progress, since the pre-gesture offset is the commit's base.
func (c *Controller) SetScroll(p domain.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		c.scroll = p
	}
}

// Scroll returns the tracked scroll offset.
func (c *Controller) Scroll() domain.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scroll
}

// Reset drops any gesture and jumps to scale, e.g. after loading state.
func (c *Controller) Reset(scale float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.pending = nil
	c.state = Idle
	c.rendered = domain.ClampScale(scale)
	c.target = c.rendered
}

// ZoomIn steps the scale up, anchored on the viewport centre.
func (c *Controller) ZoomIn() { c.step(c.settings.ButtonStep) }

// ZoomOut steps the scale down, anchored on the viewport centre.
func (c *Controller) ZoomOut() { c.step(-c.settings.ButtonStep) }

func (c *Controller) step(delta float64) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.target = domain.ClampScale(c.target + delta)
	c.anchor = Center(c.viewport)
	c.origin = c.anchor
	commit := c.commitLocked()
	c.mu.Unlock()

	c.emit(commit)
}

// Wheel handles a wheel event. Without the zoom modifier it is plain
// scrolling and reports false.
func (c *Controller) Wheel(deltaY float64, pointer domain.Point, modifier bool) bool {
	if !modifier {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.beginLocked()
	c.target = domain.ClampScale(c.target * WheelFactor(deltaY, c.settings.WheelSensitivity))
	c.anchor = pointer
	c.origin = pointer
	c.scheduleLocked(c.settings.WheelSettle)
	return true
}

// PinchStart begins a two-finger gesture.
func (c *Controller) PinchStart(a, b domain.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.beginLocked()
	c.pinchBase = c.target
	c.pinchDistance = Distance(a, b)
	c.origin = Midpoint(a, b)
}

// PinchMove updates the target from the current finger positions.
func (c *Controller) PinchMove(a, b domain.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != GestureActive || c.pinchDistance <= 0 {
		return
	}
	c.target = domain.ClampScale(c.pinchBase * PinchFactor(c.pinchDistance, Distance(a, b)))
}

// PinchEnd schedules the commit, anchored on the viewport centre. The
// preview stays pivoted on the fingers until the commit lands.
func (c *Controller) PinchEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != GestureActive || c.pinchDistance <= 0 {
		return
	}
	c.pinchDistance = 0
	c.anchor = Center(c.viewport)
	c.scheduleLocked(c.settings.PinchSettle)
}

// Preview returns the visual-only transform for the current gesture, or the
// identity when idle.
func (c *Controller) Preview(content domain.Size) PreviewTransform {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return PreviewTransform{Scale: 1, OriginXPercent: 50, OriginYPercent: 50}
	}
	return NewPreview(c.target, c.rendered, c.scroll, c.origin, content, c.viewport)
}

// RenderComplete finishes commit id and returns the scroll offset to apply
// atomically with the new raster. Stale ids report false.
func (c *Controller) RenderComplete(id uint64) (domain.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Committing || c.pending == nil || c.pending.ID != id {
		return domain.Point{}, false
	}
	p := c.pending
	c.pending = nil
	c.state = Idle
	c.rendered = p.Scale
	c.scroll = AnchoredScroll(p.Scroll, p.Anchor, p.PrevScale, p.Scale)
	return c.scroll, true
}

// Presented records that the raster of a superseded commit is on screen
// while a newer gesture is active. The rendered scale and scroll are rebased
// onto it so the gesture's preview stays continuous. It reports false when
// there is no gesture to rebase.
func (c *Controller) Presented(commit Commit, content domain.Size) (domain.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != GestureActive || c.rendered != commit.PrevScale {
		return domain.Point{}, false
	}
	c.rendered = commit.Scale
	scroll := AnchoredScroll(commit.Scroll, commit.Anchor, commit.PrevScale, commit.Scale)
	c.scroll = ClampScroll(scroll, content, c.viewport)
	return c.scroll, true
}

// RenderFailed returns to idle at the previous scale.
func (c *Controller) RenderFailed(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.ID != id {
		return
	}
	c.pending = nil
	c.state = Idle
	c.target = c.rendered
}

// Stop cancels any pending commit.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
}

func (c *Controller) beginLocked() {
	c.stopTimerLocked()
	if c.state != GestureActive {
		c.pending = nil
		c.state = GestureActive
	}
}

func (c *Controller) scheduleLocked(d time.Duration) {
	c.stopTimerLocked()
	gen := c.gen
	c.timer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		if gen != c.gen || c.state != GestureActive {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		commit := c.commitLocked()
		c.mu.Unlock()
		c.emit(commit)
	})
}

func (c *Controller) stopTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// commitLocked moves to Committing. A commit that leaves the scale unchanged
// resolves immediately and returns nil.
func (c *Controller) commitLocked() *Commit {
	if c.target == c.rendered {
		c.state = Idle
		c.pending = nil
		return nil
	}
	c.gen++
	commit := &Commit{
		ID:        c.gen,
		Scale:     c.target,
		PrevScale: c.rendered,
		Anchor:    c.anchor,
		Scroll:    c.scroll,
	}
	c.pending = commit
	c.state = Committing
	return commit
}

func (c *Controller) emit(commit *Commit) {
	if commit != nil && c.onCommit != nil {
		c.onCommit(*commit)
	}
}
