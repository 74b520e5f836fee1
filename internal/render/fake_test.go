package render

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// fakeHandle is a document whose pages are solid colours. Pages listed in
// gates block until their channel is closed, ignoring cancellation, to model
// a render that completes after it was superseded.
type fakeHandle struct {
	pages   int
	gates   map[int]chan struct{}
	renders atomic.Int32
	started chan int
	mu      sync.Mutex
	failOn  map[int]error
}

func newFakeHandle(pages int) *fakeHandle {
	return &fakeHandle{pages: pages, gates: map[int]chan struct{}{}, failOn: map[int]error{}, started: make(chan int, 16)}
}

func (f *fakeHandle) PageCount() int { return f.pages }

func (f *fakeHandle) Fingerprint() string { return "fake" }

func (f *fakeHandle) Close() error { return nil }

func (f *fakeHandle) PageGeometry(page int) (document.Geometry, error) {
	if page < 1 || page > f.pages {
		return document.Geometry{}, domain.ValidationError("page out of range", nil)
	}
	return document.Geometry{Width: 100, Height: 200}, nil
}

func (f *fakeHandle) RenderPage(ctx context.Context, page int, scale float64) (*image.RGBA, error) {
	f.renders.Add(1)
	select {
	case f.started <- page:
	default:
	}

	f.mu.Lock()
	gate := f.gates[page]
	failure := f.failOn[page]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failure != nil {
		return nil, failure
	}
	w, h := int(100*scale), int(200*scale)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: uint8(page * 40), G: 10, B: 10, A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

func (f *fakeHandle) TextContent(_ context.Context, page int) ([]document.TextRun, error) {
	return []document.TextRun{{Text: "page", Left: 10, Top: 20, Width: 40, Height: 10, FontSize: 10}}, nil
}
