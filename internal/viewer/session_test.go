package viewer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/export"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/schedule"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/testpdf"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []domain.ViewportState
}

func (r *stateRecorder) record(s domain.ViewportState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []domain.ViewportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ViewportState(nil), r.states...)
}

func newTestSession(t *testing.T, pages int, deps Deps) (*Session, *schedule.ManualClock) {
	t.Helper()
	clock := schedule.NewManualClock()
	deps.Clock = clock
	if deps.Open == nil {
		deps.Open, _ = openFake(pages)
	}
	s := NewSession(DefaultOptions(), deps)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func openDefault(t *testing.T, s *Session, initial domain.InitialState) {
	t.Helper()
	src := &document.MemorySource{Filename: "novel.pdf", Data: testpdf.Build(testpdf.Letter())}
	require.NoError(t, s.Open(context.Background(), src, initial))
	require.NoError(t, s.WaitIdle())
}

func TestSession_OpenAppliesDefaults(t *testing.T) {
	s, _ := newTestSession(t, 3, Deps{})
	openDefault(t, s, domain.InitialState{})

	v, err := s.View()
	require.NoError(t, err)
	assert.True(t, v.Open)
	assert.Equal(t, 1, v.PageNumber)
	assert.Equal(t, 3, v.PageCount)
	assert.Equal(t, domain.DefaultScale, v.Scale)
	assert.Equal(t, "novel.pdf", v.Filename)
	assert.Equal(t, domain.Size{Width: 150, Height: 300}, v.PageSize)
	assert.Equal(t, 4.0, v.Factor, "1800px minimum over a 150px page hits the 4x cap")
	assert.False(t, v.CanPrev)
	assert.True(t, v.CanNext)
	assert.Empty(t, v.Error)
}

func TestSession_OpenClampsStoredPage(t *testing.T) {
	s, _ := newTestSession(t, 3, Deps{})
	openDefault(t, s, domain.InitialState{ViewportState: domain.ViewportState{PageNumber: 9, Scale: 12}})

	v, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, 3, v.PageNumber)
	assert.Equal(t, domain.MaxScale, v.Scale)
}

func TestSession_LoadFailureLeavesEmptyViewer(t *testing.T) {
	s, _ := newTestSession(t, 3, Deps{Open: failingOpen})
	err := s.Open(context.Background(), &document.MemorySource{Filename: "bad.pdf"}, domain.InitialState{})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeLoad))

	v, err := s.View()
	require.NoError(t, err)
	assert.False(t, v.Open)
	assert.NotEmpty(t, v.Error)

	img, err := s.Raster()
	require.NoError(t, err)
	assert.Nil(t, img)

	_, err = s.NextPage()
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestSession_NavigationStopsAtEnds(t *testing.T) {
	s, _ := newTestSession(t, 2, Deps{})
	openDefault(t, s, domain.InitialState{})

	moved, err := s.PrevPage()
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = s.NextPage()
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.NextPage()
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, s.WaitIdle())
	assert.Equal(t, 2, s.Frame().Page)

	assert.Error(t, s.GoTo(3))
	require.NoError(t, s.GoTo(1))
	require.NoError(t, s.WaitIdle())
	assert.Equal(t, 1, s.Frame().Page)
}

func TestSession_EdgeClick(t *testing.T) {
	s, _ := newTestSession(t, 3, Deps{})
	openDefault(t, s, domain.InitialState{})

	// A 150px page centred in 1280px spans 565..715.
	page, err := s.EdgeClick(10)
	require.NoError(t, err)
	assert.Equal(t, 1, page, "no page before the first")

	page, err = s.EdgeClick(1000)
	require.NoError(t, err)
	assert.Equal(t, 2, page)

	page, err = s.EdgeClick(600)
	require.NoError(t, err)
	assert.Equal(t, 2, page, "clicks on the page itself do nothing")

	page, err = s.EdgeClick(100)
	require.NoError(t, err)
	assert.Equal(t, 1, page)
}

func TestSession_DebouncedStateChange(t *testing.T) {
	rec := &stateRecorder{}
	s, clock := newTestSession(t, 12, Deps{OnStateChange: rec.record})
	openDefault(t, s, domain.InitialState{})

	for i := 0; i < 10; i++ {
		_, err := s.NextPage()
		require.NoError(t, err)
	}
	require.NoError(t, s.WaitIdle())

	clock.Advance(499 * time.Millisecond)
	require.NoError(t, s.WaitIdle())
	assert.Empty(t, rec.all())

	clock.Advance(time.Millisecond)
	require.NoError(t, s.WaitIdle())

	states := rec.all()
	require.Len(t, states, 1)
	assert.Equal(t, 11, states[0].PageNumber)
	assert.Equal(t, domain.DefaultScale, states[0].Scale)
}

func TestSession_CloseFlushesPendingSave(t *testing.T) {
	rec := &stateRecorder{}
	s, _ := newTestSession(t, 4, Deps{OnStateChange: rec.record})
	openDefault(t, s, domain.InitialState{})

	require.NoError(t, s.GoTo(3))
	require.NoError(t, s.Close())

	states := rec.all()
	require.Len(t, states, 1)
	assert.Equal(t, 3, states[0].PageNumber)

	_, err := s.View()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_StateChangeRunsOffLoop(t *testing.T) {
	var s *Session
	seen := make(chan View, 1)
	s, clock := newTestSession(t, 4, Deps{OnStateChange: func(domain.ViewportState) {
		// Calling back into the session would deadlock on the loop.
		v, err := s.View()
		if err == nil {
			seen <- v
		}
	}})
	openDefault(t, s, domain.InitialState{})

	require.NoError(t, s.GoTo(2))
	clock.Advance(500 * time.Millisecond)
	require.NoError(t, s.WaitIdle())

	select {
	case v := <-seen:
		assert.Equal(t, 2, v.PageNumber)
	case <-time.After(5 * time.Second):
		t.Fatal("state change not delivered")
	}
}

func TestSession_ZoomButtonsCommitAndSave(t *testing.T) {
	rec := &stateRecorder{}
	s, clock := newTestSession(t, 2, Deps{OnStateChange: rec.record})
	openDefault(t, s, domain.InitialState{})

	require.NoError(t, s.ZoomIn())
	require.NoError(t, s.ZoomIn())
	require.NoError(t, s.WaitIdle())

	v, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Scale)
	assert.Equal(t, "idle", v.ZoomState)
	assert.Equal(t, 2.0, s.Frame().Scale)

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, s.WaitIdle())
	states := rec.all()
	require.Len(t, states, 1)
	assert.Equal(t, 2.0, states[0].Scale)
}

func TestSession_WheelZoomPreviewThenCommit(t *testing.T) {
	s, clock := newTestSession(t, 2, Deps{})
	openDefault(t, s, domain.InitialState{})

	consumed, err := s.Wheel(40, domain.Point{X: 10, Y: 10}, false)
	require.NoError(t, err)
	assert.False(t, consumed, "plain wheel scrolls")

	consumed, err = s.Wheel(-100, domain.Point{X: 640, Y: 400}, true)
	require.NoError(t, err)
	assert.True(t, consumed)

	v, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, "gesture-active", v.ZoomState)
	assert.Equal(t, domain.DefaultScale, v.Scale, "no re-render mid gesture")
	assert.Greater(t, v.Preview.Scale, 1.0)

	clock.Advance(100 * time.Millisecond)
	require.NoError(t, s.WaitIdle())

	v, err = s.View()
	require.NoError(t, err)
	assert.Equal(t, "idle", v.ZoomState)
	assert.InDelta(t, 2.025, v.Scale, 0.001)
	assert.Equal(t, 1.0, v.Preview.Scale)
}

func TestSession_PinchLastGestureWins(t *testing.T) {
	s, clock := newTestSession(t, 2, Deps{})
	openDefault(t, s, domain.InitialState{})

	require.NoError(t, s.PinchStart(domain.Point{X: 0}, domain.Point{X: 100}))
	s.PinchMove(domain.Point{X: 0}, domain.Point{X: 200})
	s.PinchEnd()

	clock.Advance(40 * time.Millisecond)
	require.NoError(t, s.PinchStart(domain.Point{X: 0}, domain.Point{X: 100}))
	s.PinchMove(domain.Point{X: 0}, domain.Point{X: 80})

	// The first release would have committed here.
	clock.Advance(40 * time.Millisecond)
	require.NoError(t, s.WaitIdle())
	v, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, "gesture-active", v.ZoomState)
	assert.Equal(t, domain.DefaultScale, v.Scale)

	s.PinchEnd()
	clock.Advance(80 * time.Millisecond)
	require.NoError(t, s.WaitIdle())

	v, err = s.View()
	require.NoError(t, err)
	assert.Equal(t, "idle", v.ZoomState)
	assert.InDelta(t, 2.4, v.Scale, 1e-9)
}

func TestSession_CommitLandingDuringNewGesture(t *testing.T) {
	openFn, opened := openFake(2)
	s, clock := newTestSession(t, 2, Deps{Open: openFn})
	openDefault(t, s, domain.InitialState{})
	release := (*opened)[0].hold()

	_, err := s.Wheel(-100, domain.Point{X: 640, Y: 400}, true)
	require.NoError(t, err)
	clock.Advance(100 * time.Millisecond)
	_, err = s.View()
	require.NoError(t, err)

	// The commit is still rendering when the fingers land.
	require.NoError(t, s.PinchStart(domain.Point{X: 0}, domain.Point{X: 100}))
	release()
	require.NoError(t, s.WaitIdle())

	v, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, "gesture-active", v.ZoomState)
	assert.InDelta(t, 2.025, s.Frame().Scale, 0.001)
	assert.InDelta(t, s.Frame().Scale, v.Scale, 1e-9, "controller follows the raster on screen")
	assert.InDelta(t, 1.0, v.Preview.Scale, 1e-9)

	s.PinchEnd()
	clock.Advance(80 * time.Millisecond)
	require.NoError(t, s.WaitIdle())
	v, err = s.View()
	require.NoError(t, err)
	assert.Equal(t, "idle", v.ZoomState)
	assert.InDelta(t, 2.025, v.Scale, 0.001)
}

func TestSession_SelectHighlightAndCopy(t *testing.T) {
	s, _ := newTestSession(t, 2, Deps{})
	openDefault(t, s, domain.InitialState{})

	// The word spans 15..75 x 30..45 at scale 1.5.
	placement := highlight.Placement{}
	tb, err := s.Select(domain.Point{X: 15, Y: 35}, domain.Point{X: 75, Y: 35}, placement)
	require.NoError(t, err)
	assert.True(t, tb.Visible)
	assert.InDelta(t, -20, tb.Top, 1e-9)
	assert.InDelta(t, 45, tb.Left, 1e-9)

	text, ok, err := s.Copy()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "page", text)

	_, err = s.Select(domain.Point{X: 15, Y: 35}, domain.Point{X: 75, Y: 35}, placement)
	require.NoError(t, err)
	h, ok, err := s.ApplyHighlight("green")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, highlight.Palette[highlight.Green], h.Color)
	require.Len(t, h.Rects, 1)
	assert.InDelta(t, 10, h.Rects[0].Left, 1e-9)
	assert.InDelta(t, 20, h.Rects[0].Top, 1e-9)

	v, err := s.View()
	require.NoError(t, err)
	assert.False(t, v.Toolbar.Visible)
	assert.Equal(t, 1, v.HighlightCount)

	_, ok, err = s.ApplyHighlight("green")
	require.NoError(t, err)
	assert.False(t, ok, "no selection left")

	_, _, err = s.ApplyHighlight("chartreuse")
	assert.Error(t, err)
}

func TestSession_RasterFollowsTheme(t *testing.T) {
	s, _ := newTestSession(t, 2, Deps{})
	openDefault(t, s, domain.InitialState{})

	img, err := s.Raster()
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, uint8(40), img.RGBAAt(0, 0).R)

	require.NoError(t, s.SetTheme(domain.ThemeBlack))
	img, err = s.Raster()
	require.NoError(t, err)
	assert.Equal(t, uint8(215), img.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(40), s.Frame().Raster.RGBAAt(0, 0).R, "presented frame untouched")
}

func TestSession_ToggleControls(t *testing.T) {
	s, _ := newTestSession(t, 1, Deps{})

	visible, err := s.ToggleControls()
	require.NoError(t, err)
	assert.False(t, visible)

	require.NoError(t, s.SetControlsVisible(true))
	v, err := s.View()
	require.NoError(t, err)
	assert.True(t, v.ControlsVisible)
}

func TestSession_TriggerDownloadCompletesOnceOnFailure(t *testing.T) {
	var completed, notified int
	var mu sync.Mutex
	s, _ := newTestSession(t, 1, Deps{
		OnDownloadComplete: func() { mu.Lock(); completed++; mu.Unlock() },
		Notifier:           export.NotifierFunc(func(error) { mu.Lock(); notified++; mu.Unlock() }),
	})
	openDefault(t, s, domain.InitialState{})

	started, err := s.TriggerDownload(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = s.TriggerDownload(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, started, "same trigger value")

	started, err = s.TriggerDownload(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, started)

	require.NoError(t, s.WaitIdle())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, notified, "no saver configured")
}

func TestSession_DownloadWritesHighlightedCopy(t *testing.T) {
	saver := &export.MemorySaver{}
	var completed int
	s, _ := newTestSession(t, 1, Deps{Saver: saver, OnDownloadComplete: func() { completed++ }})
	openDefault(t, s, domain.InitialState{})

	_, err := s.AddHighlight(1, "yellow", []domain.Rect{{Top: 72, Left: 72, Width: 100, Height: 14}})
	require.NoError(t, err)

	name, err := s.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "novel-highlighted.pdf", name)
	assert.Equal(t, 1, completed)

	got, data := saver.Last()
	assert.Equal(t, name, got)
	assert.NoError(t, document.ValidateBytes(data))
}

func TestSession_ReopenRestoresState(t *testing.T) {
	ctx := context.Background()
	handle := storage.NewHandle(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "reader.db"), JournalMode: "WAL"},
	}, nil)
	store := storage.NewStore(handle, "current-book", nil)
	require.NoError(t, store.Import(ctx, "novel.pdf", testpdf.Build(testpdf.Letter(), testpdf.Letter(), testpdf.Letter(), testpdf.Letter(), testpdf.Letter(), testpdf.Letter())))

	save := func(st domain.ViewportState) { assert.NoError(t, store.Save(ctx, st)) }
	first, _ := newTestSession(t, 6, Deps{OnStateChange: save})

	initial, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.Open(ctx, store.Source(initial.Filename), initial))
	require.NoError(t, first.GoTo(5))
	require.NoError(t, first.ZoomIn())
	require.NoError(t, first.ZoomIn())
	require.NoError(t, first.WaitIdle())
	_, err = first.AddHighlight(5, "pink", []domain.Rect{{Top: 10, Left: 10, Width: 50, Height: 12}})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	for i := 0; i < 2; i++ {
		second, _ := newTestSession(t, 6, Deps{})
		initial, ok, err = store.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, second.Open(ctx, store.Source(initial.Filename), initial))
		require.NoError(t, second.WaitIdle())

		st, err := second.State()
		require.NoError(t, err)
		assert.Equal(t, 5, st.PageNumber)
		assert.Equal(t, 2.0, st.Scale)
		require.Len(t, st.Highlights.ForPage(5), 1)
		assert.Equal(t, highlight.Palette[highlight.Pink], st.Highlights.ForPage(5)[0].Color)
		require.NoError(t, second.Close())
	}
}

func TestSession_ClearClosesDocument(t *testing.T) {
	openFn, opened := openFake(2)
	s, _ := newTestSession(t, 2, Deps{Open: openFn})
	openDefault(t, s, domain.InitialState{})
	openDefault(t, s, domain.InitialState{})

	require.NoError(t, s.Clear())
	require.NoError(t, s.WaitIdle())

	require.Len(t, *opened, 2)
	for _, h := range *opened {
		assert.Equal(t, int32(1), h.closed.Load())
	}
	v, err := s.View()
	require.NoError(t, err)
	assert.False(t, v.Open)
	assert.Nil(t, s.Frame().Raster)
}
