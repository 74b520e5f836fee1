package render

import (
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// Frame is one committed render of a page.
type Frame struct {
	Seq    uint64
	Page   int
	Scale  float64
	Factor float64
	// Logical is the viewport size at Scale; Raster is Logical*Factor pixels.
	Logical domain.Size
	Raster  *image.RGBA
	Layer   *TextLayer
}

// Empty reports whether no raster has been committed.
func (f Frame) Empty() bool { return f.Raster == nil }

// Surface holds the presented frame and a snapshot buffer that covers the
// surface while a zoom re-render is pending.
type Surface struct {
	mu        sync.RWMutex
	presented Frame
	snapshot  *image.RGBA
}

// NewSurface returns an empty surface.
func NewSurface() *Surface {
	return &Surface{}
}

// Present commits a frame and drops any snapshot.
func (s *Surface) Present(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented = f
	s.snapshot = nil
}

// Presented returns the last committed frame.
func (s *Surface) Presented() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presented
}

// Snapshot copies the presented raster into the backing buffer. It returns
// false when nothing has been presented yet.
func (s *Surface) Snapshot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presented.Raster == nil {
		return false
	}
	src := s.presented.Raster
	if s.snapshot == nil || s.snapshot.Bounds() != src.Bounds() {
		s.snapshot = image.NewRGBA(src.Bounds())
	}
	draw.Draw(s.snapshot, src.Bounds(), src, src.Bounds().Min, draw.Src)
	return true
}

// SnapshotActive reports whether the backing buffer is covering the surface.
func (s *Surface) SnapshotActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot != nil
}

// Visible returns the pixels currently on screen: the snapshot while one is
// active, otherwise the presented raster.
func (s *Surface) Visible() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot != nil {
		return s.snapshot
	}
	return s.presented.Raster
}

// Reset clears everything, e.g. when the document changes.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented = Frame{}
	s.snapshot = nil
}

// DiscardSnapshot drops the backing buffer without presenting, e.g. after a
// failed zoom re-render.
func (s *Surface) DiscardSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
}
