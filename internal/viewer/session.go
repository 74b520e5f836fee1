// Package viewer runs a reading session: one event loop that owns the open
// document, the viewport state and every asynchronous result posted back to
// it.
package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/export"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/schedule"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/zoom"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("viewer session closed")

// ErrNoDocument is returned by operations that need an open document.
var ErrNoDocument = domain.ValidationError("no document is open", nil)

// Options tunes a session.
type Options struct {
	Render       render.Options
	Zoom         zoom.Settings
	SaveDebounce time.Duration
	Theme        domain.Theme
	Viewport     domain.Size
	CacheTTL     time.Duration
}

// DefaultOptions matches the reader's shipped behaviour.
func DefaultOptions() Options {
	return Options{
		Render:       render.DefaultOptions(),
		Zoom:         zoom.DefaultSettings(),
		SaveDebounce: 500 * time.Millisecond,
		Theme:        domain.ThemeWhite,
		Viewport:     domain.Size{Width: 1280, Height: 800},
		CacheTTL:     10 * time.Minute,
	}
}

// OpenFunc loads a document handle from a byte source.
type OpenFunc func(ctx context.Context, src document.ByteSource) (document.Handle, error)

// Deps are the session's collaborators. Every field is optional.
type Deps struct {
	Clock  schedule.Clock
	Cache  cache.Client
	Logger *observability.Logger
	Open   OpenFunc

	// OnStateChange receives {page, scale, highlights} after SaveDebounce of
	// quiet following any change. It runs off the event loop, one call at a
	// time, and never delivers an older state after a newer one.
	OnStateChange func(domain.ViewportState)
	// OnDownloadComplete fires once per triggered export, success or not.
	OnDownloadComplete func()
	Saver              export.Saver
	Notifier           export.Notifier
	Exporter           *export.Exporter
	ExportProgress     export.Progress
}

// Session is a single-document reading session. All state is owned by one
// event-loop goroutine; the exported methods post to it and wait.
type Session struct {
	opts   Options
	deps   Deps
	logger *observability.Logger

	loop    chan func()
	done    chan struct{}
	closing sync.Once
	tasks   sync.WaitGroup

	saveMu   sync.Mutex
	savedSeq uint64

	// Owned by the loop goroutine.
	src             document.ByteSource
	handle          document.Handle
	surface         *render.Surface
	renderer        *render.Renderer
	page            int
	filename        string
	zoom            *zoom.Controller
	highlights      *highlight.Manager
	theme           domain.Theme
	viewport        domain.Size
	controlsVisible bool
	lastDownload    int
	saveDebounce    *schedule.Debouncer
	saveSeq         uint64
	renderCtx       context.Context
	cancelRenders   context.CancelFunc
	lastError       error
}

// NewSession starts a session's event loop.
func NewSession(opts Options, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = schedule.RealClock()
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Open == nil {
		deps.Open = document.Open
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewExporter(deps.Logger)
	}
	if opts.Theme == "" {
		opts.Theme = domain.ThemeWhite
	}

	s := &Session{
		opts:            opts,
		deps:            deps,
		logger:          deps.Logger.WithOperation("viewer"),
		loop:            make(chan func(), 64),
		done:            make(chan struct{}),
		surface:         render.NewSurface(),
		page:            1,
		highlights:      highlight.NewManager(nil, deps.Logger),
		theme:           opts.Theme,
		viewport:        opts.Viewport,
		controlsVisible: true,
		saveDebounce:    schedule.NewDebouncer(deps.Clock, opts.SaveDebounce),
	}
	s.renderCtx, s.cancelRenders = context.WithCancel(context.Background())
	s.zoom = zoom.NewController(opts.Zoom, deps.Clock, domain.DefaultScale, s.onZoomCommit)
	s.zoom.SetViewport(opts.Viewport)

	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.loop:
			f()
		}
	}
}

// do runs f on the loop and waits for it.
func (s *Session) do(f func()) error {
	finished := make(chan struct{})
	select {
	case <-s.done:
		return ErrClosed
	case s.loop <- func() { defer close(finished); f() }:
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// post queues f on the loop without waiting. Dropped after Close.
func (s *Session) post(f func()) {
	select {
	case <-s.done:
	case s.loop <- f:
	}
}

// async runs f on its own goroutine, tracked by WaitIdle.
func (s *Session) async(f func()) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		f()
	}()
}

// WaitIdle blocks until every asynchronous render or export started so far
// has posted its result and the loop has processed it.
func (s *Session) WaitIdle() error {
	if err := s.do(func() {}); err != nil {
		return err
	}
	s.tasks.Wait()
	return s.do(func() {})
}

// Open loads src and applies initial, replacing any open document. Loading
// the same state twice yields the same page, scale and highlights.
func (s *Session) Open(ctx context.Context, src document.ByteSource, initial domain.InitialState) error {
	handle, err := s.deps.Open(ctx, src)
	if err != nil {
		s.logger.Error().Err(err).Str("source", src.Name()).Msg("failed to load document")
		_ = s.do(func() { s.lastError = err })
		return err
	}

	if initial.Filename == "" {
		initial.Filename = src.Name()
	}
	state := initial.Normalize()
	if err := s.do(func() { s.install(src, handle, state) }); err != nil {
		handle.Close()
		return err
	}
	return nil
}

func (s *Session) install(src document.ByteSource, handle document.Handle, state domain.InitialState) {
	s.teardown()

	s.src = src
	s.handle = handle
	s.filename = state.Filename
	s.page = domain.ClampPage(state.PageNumber, handle.PageCount())
	s.zoom.Reset(state.Scale)
	s.highlights.Replace(state.Highlights)
	s.lastError = nil

	rendererOpts := []render.RendererOption{render.WithLogger(s.deps.Logger)}
	if s.deps.Cache != nil {
		rendererOpts = append(rendererOpts, render.WithCache(s.deps.Cache, s.opts.CacheTTL))
	}
	s.renderer = render.NewRenderer(handle, s.surface, s.opts.Render, rendererOpts...)

	s.logger.Info().
		Str("document", handle.Fingerprint()).
		Int("pages", handle.PageCount()).
		Int("page", s.page).
		Float64("scale", s.zoom.Scale()).
		Msg("document opened")

	s.requestRender(nil)
}

// Clear closes the document and forgets all state.
func (s *Session) Clear() error {
	return s.do(func() {
		s.teardown()
		s.page = 1
		s.filename = ""
		s.zoom.Reset(domain.DefaultScale)
		s.highlights.Replace(nil)
	})
}

// teardown releases the document. Runs on the loop.
func (s *Session) teardown() {
	s.saveDebounce.Cancel()
	s.zoom.Stop()
	if s.renderer != nil {
		s.renderer.Cancel()
		s.renderer = nil
	}
	if s.handle != nil {
		h := s.handle
		s.handle = nil
		// In-flight renders finish against the old handle before it closes.
		s.async(func() {
			if err := h.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to close document")
			}
		})
	}
	s.src = nil
	s.surface.Reset()
}

// Close flushes a pending state save, releases the document and stops the
// loop.
func (s *Session) Close() error {
	err := s.do(func() {
		if s.saveDebounce.Cancel() {
			s.emitState()
		}
		s.teardown()
	})
	s.closing.Do(func() {
		s.cancelRenders()
		close(s.done)
	})
	s.tasks.Wait()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// scheduleSave arms the debounced state notification. Runs on the loop.
func (s *Session) scheduleSave() {
	if s.deps.OnStateChange == nil {
		return
	}
	s.saveDebounce.Schedule(func() {
		s.post(s.emitState)
	})
}

// emitState hands the current state to OnStateChange on a task goroutine.
// Runs on the loop.
func (s *Session) emitState() {
	if s.deps.OnStateChange == nil || s.handle == nil {
		return
	}
	state := s.state()
	s.saveSeq++
	seq := s.saveSeq
	s.async(func() {
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
		if seq <= s.savedSeq {
			return
		}
		s.savedSeq = seq
		s.deps.OnStateChange(state)
	})
}

func (s *Session) state() domain.ViewportState {
	return domain.ViewportState{
		PageNumber: s.page,
		Scale:      s.zoom.Scale(),
		Highlights: s.highlights.Set(),
	}
}
