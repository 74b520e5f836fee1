// Package document loads PDF bytes and exposes page geometry, rasters and
// positioned text.
package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

// Geometry is a page's unrotated box at scale 1.0 in PDF points, its
// lower-left corner, and the clockwise /Rotate applied when it is displayed.
type Geometry struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	OriginX  float64 `json:"originX"`
	OriginY  float64 `json:"originY"`
	Rotation int     `json:"rotation,omitempty"`
}

// Size returns the page as displayed, scaled by s.
func (g Geometry) Size(s float64) domain.Size {
	if g.Rotation == 90 || g.Rotation == 270 {
		return domain.Size{Width: g.Height * s, Height: g.Width * s}
	}
	return domain.Size{Width: g.Width * s, Height: g.Height * s}
}

// Handle is a loaded, read-only document. Pages are 1-based.
type Handle interface {
	PageCount() int
	PageGeometry(page int) (Geometry, error)
	// RenderPage rasterizes a page at scale, where scale 1.0 is 72 dpi.
	RenderPage(ctx context.Context, page int, scale float64) (*image.RGBA, error)
	TextContent(ctx context.Context, page int) ([]TextRun, error)
	Fingerprint() string
	Close() error
}

// pdfHandle rasterizes with MuPDF and reads text with a pure Go parser.
type pdfHandle struct {
	raster *fitz.Document
	text   *pdf.Reader

	fingerprint string
	pageCount   int

	mu       sync.Mutex
	inflight sync.WaitGroup
	closed   bool
	geometry map[int]Geometry
}

// Open reads src and parses it. The returned handle must be closed.
func Open(ctx context.Context, src ByteSource) (Handle, error) {
	data, err := src.Bytes(ctx)
	if err != nil {
		if domain.IsCancelled(err) {
			return nil, domain.CancelledError("load superseded", err)
		}
		return nil, domain.LoadError(fmt.Sprintf("fetch %s", src.Name()), err)
	}
	return OpenBytes(data)
}

// OpenBytes parses an in-memory document.
func OpenBytes(data []byte) (Handle, error) {
	if err := ValidateBytes(data); err != nil {
		return nil, err
	}

	raster, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.LoadError("failed to open PDF", err)
	}

	count := raster.NumPage()
	if count == 0 {
		raster.Close()
		return nil, domain.LoadError("PDF has no pages", nil)
	}

	// Text extraction is best effort; a document MuPDF can draw stays usable
	// without a text layer.
	text, _ := pdf.NewReader(bytes.NewReader(data), int64(len(data)))

	sum := sha256.Sum256(data)
	return &pdfHandle{
		raster:      raster,
		text:        text,
		fingerprint: hex.EncodeToString(sum[:8]),
		pageCount:   count,
		geometry:    make(map[int]Geometry),
	}, nil
}

func (h *pdfHandle) PageCount() int { return h.pageCount }

func (h *pdfHandle) Fingerprint() string { return h.fingerprint }

func (h *pdfHandle) PageGeometry(page int) (Geometry, error) {
	if err := h.checkPage(page); err != nil {
		return Geometry{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Geometry{}, domain.LoadError("document is closed", nil)
	}
	if g, ok := h.geometry[page]; ok {
		return g, nil
	}

	g, err := h.readGeometry(page)
	if err != nil {
		return Geometry{}, err
	}
	h.geometry[page] = g
	return g, nil
}

// readGeometry prefers the parsed page box; MuPDF bounds are whole points
// and already rotated.
func (h *pdfHandle) readGeometry(page int) (g Geometry, err error) {
	if h.text != nil && page <= h.text.NumPage() {
		if llx, lly, urx, ury, rotate, ok := safePageBox(h.text, page); ok && urx > llx && ury > lly {
			return Geometry{Width: urx - llx, Height: ury - lly, OriginX: llx, OriginY: lly, Rotation: rotate}, nil
		}
	}
	bounds, err := h.raster.Bound(page - 1)
	if err != nil {
		return Geometry{}, domain.LoadError(fmt.Sprintf("read bounds of page %d", page), err)
	}
	return Geometry{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}, nil
}

func safePageBox(r *pdf.Reader, page int) (llx, lly, urx, ury float64, rotate int, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	p := r.Page(page)
	if p.V.IsNull() {
		return 0, 0, 0, 0, 0, false
	}
	llx, lly, urx, ury, ok = pageBox(p)
	return llx, lly, urx, ury, pageRotation(p), ok
}

type rasterResult struct {
	img *image.RGBA
	err error
}

func (h *pdfHandle) RenderPage(ctx context.Context, page int, scale float64) (*image.RGBA, error) {
	if err := h.checkPage(page); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, domain.ValidationError(fmt.Sprintf("scale must be positive, got %.3f", scale), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.CancelledError(fmt.Sprintf("render page %d", page), err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, domain.LoadError("document is closed", nil)
	}
	h.inflight.Add(1)
	h.mu.Unlock()

	done := make(chan rasterResult, 1)
	go func() {
		defer h.inflight.Done()
		// MuPDF contexts are not safe for concurrent drawing.
		h.mu.Lock()
		img, err := h.raster.ImageDPI(page-1, 72*scale)
		h.mu.Unlock()
		done <- rasterResult{img: img, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, domain.CancelledError(fmt.Sprintf("render page %d", page), ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, domain.RenderError(fmt.Sprintf("render page %d", page), res.err)
		}
		return res.img, nil
	}
}

func (h *pdfHandle) TextContent(ctx context.Context, page int) ([]TextRun, error) {
	if err := h.checkPage(page); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.CancelledError(fmt.Sprintf("text of page %d", page), err)
	}
	if h.text == nil || page > h.text.NumPage() {
		return nil, nil
	}

	g, err := h.PageGeometry(page)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	glyphs, ok := readPageGlyphs(h.text, page)
	h.mu.Unlock()
	if !ok {
		return nil, domain.RenderError(fmt.Sprintf("parse text of page %d", page), nil)
	}
	return groupRuns(glyphs, g), nil
}

func readPageGlyphs(r *pdf.Reader, page int) (glyphs []glyph, ok bool) {
	defer func() {
		if recover() != nil {
			glyphs, ok = nil, false
		}
	}()
	p := r.Page(page)
	if p.V.IsNull() {
		return nil, true
	}
	return pageGlyphs(p)
}

// Close waits for in-flight rasterization and releases MuPDF resources.
func (h *pdfHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.inflight.Wait()
	return h.raster.Close()
}

func (h *pdfHandle) checkPage(page int) error {
	if page < 1 || page > h.pageCount {
		return domain.ValidationError(fmt.Sprintf("page %d out of range [1, %d]", page, h.pageCount), nil)
	}
	return nil
}
