package viewer

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// fakeHandle is a document of identical 100x200pt pages, each filled with a
// page-specific grey and carrying the single word "page".
type fakeHandle struct {
	pages  int
	closed atomic.Int32

	mu   sync.Mutex
	gate chan struct{}
}

// hold makes renders block until the returned release is called.
func (f *fakeHandle) hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeHandle) PageCount() int { return f.pages }

func (f *fakeHandle) Fingerprint() string { return "fake-fingerprint" }

func (f *fakeHandle) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeHandle) PageGeometry(page int) (document.Geometry, error) {
	if page < 1 || page > f.pages {
		return document.Geometry{}, domain.ValidationError("page out of range", nil)
	}
	return document.Geometry{Width: 100, Height: 200}, nil
}

func (f *fakeHandle) RenderPage(ctx context.Context, page int, scale float64) (*image.RGBA, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.CancelledError("render cancelled", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, int(100*scale), int(200*scale)))
	shade := uint8(page * 40)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = shade, shade, shade, 255
	}
	return img, nil
}

func (f *fakeHandle) TextContent(_ context.Context, _ int) ([]document.TextRun, error) {
	return []document.TextRun{{Text: "page", Left: 10, Top: 20, Width: 40, Height: 10, FontSize: 10}}, nil
}

func openFake(pages int) (OpenFunc, *[]*fakeHandle) {
	var opened []*fakeHandle
	return func(_ context.Context, _ document.ByteSource) (document.Handle, error) {
		h := &fakeHandle{pages: pages}
		opened = append(opened, h)
		return h, nil
	}, &opened
}

func failingOpen(_ context.Context, _ document.ByteSource) (document.Handle, error) {
	return nil, domain.LoadError("corrupt document", errors.New("no xref"))
}
