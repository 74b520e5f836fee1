package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

// ViewerHandler exposes the reading session.
type ViewerHandler struct {
	logger  *observability.Logger
	session *viewer.Session
}

// NewViewerHandler creates a new viewer handler.
func NewViewerHandler(logger *observability.Logger, session *viewer.Session) *ViewerHandler {
	return &ViewerHandler{logger: logger, session: session}
}

// PointDTO is a position in pixels.
type PointDTO struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p PointDTO) point() domain.Point { return domain.Point{X: p.X, Y: p.Y} }

// PageRequestDTO turns pages.
type PageRequestDTO struct {
	Action string `json:"action"` // next, prev or goto
	Page   int    `json:"page,omitempty"`
}

// EdgeClickRequestDTO is a click in the page container.
type EdgeClickRequestDTO struct {
	X float64 `json:"x"`
}

// ZoomRequestDTO steps the zoom.
type ZoomRequestDTO struct {
	Action string `json:"action"` // in or out
}

// WheelRequestDTO is one wheel event.
type WheelRequestDTO struct {
	DeltaY   float64  `json:"deltaY"`
	Pointer  PointDTO `json:"pointer"`
	Modifier bool     `json:"modifier"`
}

// PinchRequestDTO is one phase of a two-finger gesture.
type PinchRequestDTO struct {
	Phase string   `json:"phase"` // start, move or end
	A     PointDTO `json:"a"`
	B     PointDTO `json:"b"`
}

// SizeDTO is a width and height in pixels.
type SizeDTO struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SelectionRequestDTO describes a finished selection drag. Either From/To
// in layer pixels or an explicit Range is given.
type SelectionRequestDTO struct {
	From      *PointDTO         `json:"from,omitempty"`
	To        *PointDTO         `json:"to,omitempty"`
	Range     *render.Selection `json:"range,omitempty"`
	Layer     PointDTO          `json:"layer"`
	Container PointDTO          `json:"container"`
}

// HighlightRequestDTO applies the selection, or adds rects when Rects is set.
type HighlightRequestDTO struct {
	Color string        `json:"color"`
	Page  int           `json:"page,omitempty"`
	Rects []domain.Rect `json:"rects,omitempty"`
}

// ControlsRequestDTO sets overlay visibility.
type ControlsRequestDTO struct {
	Visible bool `json:"visible"`
}

// ThemeRequestDTO switches the theme.
type ThemeRequestDTO struct {
	Theme string `json:"theme"`
}

// DownloadRequestDTO carries the download trigger value.
type DownloadRequestDTO struct {
	Trigger int `json:"trigger"`
}

// View handles GET /view.
func (h *ViewerHandler) View(w http.ResponseWriter, r *http.Request) {
	h.respondView(w)
}

func (h *ViewerHandler) respondView(w http.ResponseWriter) {
	v, err := h.session.View()
	if err != nil {
		fail(w, h.logger, "view unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Raster handles GET /view/raster.png.
func (h *ViewerHandler) Raster(w http.ResponseWriter, r *http.Request) {
	img, err := h.session.Raster()
	if err != nil {
		fail(w, h.logger, "raster unavailable", err)
		return
	}
	if img == nil {
		writeError(w, http.StatusNotFound, "nothing rendered yet", "")
		return
	}
	data, err := render.EncodePNG(img)
	if err != nil {
		fail(w, h.logger, "encode raster", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// TextLayer handles GET /view/text-layer.
func (h *ViewerHandler) TextLayer(w http.ResponseWriter, r *http.Request) {
	layer, err := h.session.TextLayer()
	if err != nil {
		fail(w, h.logger, "text layer unavailable", err)
		return
	}
	if layer == nil {
		writeError(w, http.StatusNotFound, "nothing rendered yet", "")
		return
	}
	writeJSON(w, http.StatusOK, layer)
}

// Overlay handles GET /view/overlay.
func (h *ViewerHandler) Overlay(w http.ResponseWriter, r *http.Request) {
	groups, err := h.session.Overlay()
	if err != nil {
		fail(w, h.logger, "overlay unavailable", err)
		return
	}
	if groups == nil {
		groups = []highlight.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

// Page handles POST /view/page.
func (h *ViewerHandler) Page(w http.ResponseWriter, r *http.Request) {
	var req PageRequestDTO
	if !decode(w, r, &req) {
		return
	}
	var err error
	switch req.Action {
	case "next":
		_, err = h.session.NextPage()
	case "prev":
		_, err = h.session.PrevPage()
	case "goto":
		err = h.session.GoTo(req.Page)
	default:
		writeError(w, http.StatusBadRequest, "action must be next, prev or goto", "")
		return
	}
	if err != nil {
		fail(w, h.logger, "page change failed", err)
		return
	}
	h.respondView(w)
}

// EdgeClick handles POST /view/edge-click.
func (h *ViewerHandler) EdgeClick(w http.ResponseWriter, r *http.Request) {
	var req EdgeClickRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.session.EdgeClick(req.X); err != nil {
		fail(w, h.logger, "edge click failed", err)
		return
	}
	h.respondView(w)
}

// Zoom handles POST /view/zoom.
func (h *ViewerHandler) Zoom(w http.ResponseWriter, r *http.Request) {
	var req ZoomRequestDTO
	if !decode(w, r, &req) {
		return
	}
	var err error
	switch req.Action {
	case "in":
		err = h.session.ZoomIn()
	case "out":
		err = h.session.ZoomOut()
	default:
		writeError(w, http.StatusBadRequest, "action must be in or out", "")
		return
	}
	if err != nil {
		fail(w, h.logger, "zoom failed", err)
		return
	}
	h.respondView(w)
}

// Wheel handles POST /view/wheel.
func (h *ViewerHandler) Wheel(w http.ResponseWriter, r *http.Request) {
	var req WheelRequestDTO
	if !decode(w, r, &req) {
		return
	}
	consumed, err := h.session.Wheel(req.DeltaY, req.Pointer.point(), req.Modifier)
	if err != nil {
		fail(w, h.logger, "wheel failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consumed": consumed})
}

// Pinch handles POST /view/pinch.
func (h *ViewerHandler) Pinch(w http.ResponseWriter, r *http.Request) {
	var req PinchRequestDTO
	if !decode(w, r, &req) {
		return
	}
	switch req.Phase {
	case "start":
		if err := h.session.PinchStart(req.A.point(), req.B.point()); err != nil {
			fail(w, h.logger, "pinch failed", err)
			return
		}
	case "move":
		h.session.PinchMove(req.A.point(), req.B.point())
	case "end":
		h.session.PinchEnd()
	default:
		writeError(w, http.StatusBadRequest, "phase must be start, move or end", "")
		return
	}
	h.respondView(w)
}

// Scroll handles PUT /view/scroll.
func (h *ViewerHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	var req PointDTO
	if !decode(w, r, &req) {
		return
	}
	h.session.SetScroll(req.point())
	w.WriteHeader(http.StatusNoContent)
}

// Viewport handles PUT /view/viewport.
func (h *ViewerHandler) Viewport(w http.ResponseWriter, r *http.Request) {
	var req SizeDTO
	if !decode(w, r, &req) {
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "viewport must have a positive size", "")
		return
	}
	if err := h.session.SetViewport(domain.Size{Width: req.Width, Height: req.Height}); err != nil {
		fail(w, h.logger, "viewport update failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /view/selection.
func (h *ViewerHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequestDTO
	if !decode(w, r, &req) {
		return
	}
	placement := highlight.Placement{Layer: req.Layer.point(), Container: req.Container.point()}

	var tb highlight.Toolbar
	var err error
	switch {
	case req.Range != nil:
		tb, err = h.session.PointerUp(*req.Range, placement)
	case req.From != nil && req.To != nil:
		tb, err = h.session.Select(req.From.point(), req.To.point(), placement)
	default:
		writeError(w, http.StatusBadRequest, "give from and to, or range", "")
		return
	}
	if err != nil {
		fail(w, h.logger, "selection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

// ClearSelection handles DELETE /view/selection.
func (h *ViewerHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := h.session.ClearSelection(); err != nil {
		fail(w, h.logger, "clear selection failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Copy handles POST /view/selection/copy.
func (h *ViewerHandler) Copy(w http.ResponseWriter, r *http.Request) {
	text, ok, err := h.session.Copy()
	if err != nil {
		fail(w, h.logger, "copy failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "nothing selected", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Highlights handles GET /view/highlights.
func (h *ViewerHandler) Highlights(w http.ResponseWriter, r *http.Request) {
	set, err := h.session.Highlights()
	if err != nil {
		fail(w, h.logger, "highlights unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"highlights": set})
}

// AddHighlight handles POST /view/highlights.
func (h *ViewerHandler) AddHighlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if req.Color == "" {
		req.Color = highlight.Yellow
	}

	if len(req.Rects) > 0 {
		hl, err := h.session.AddHighlight(req.Page, req.Color, req.Rects)
		if err != nil {
			fail(w, h.logger, "highlight failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, hl)
		return
	}

	hl, ok, err := h.session.ApplyHighlight(req.Color)
	if err != nil {
		fail(w, h.logger, "highlight failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "nothing selected", "")
		return
	}
	writeJSON(w, http.StatusCreated, hl)
}

// Controls handles PUT /view/controls.
func (h *ViewerHandler) Controls(w http.ResponseWriter, r *http.Request) {
	var req ControlsRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if err := h.session.SetControlsVisible(req.Visible); err != nil {
		fail(w, h.logger, "controls update failed", err)
		return
	}
	h.respondView(w)
}

// ToggleControls handles POST /view/controls/toggle.
func (h *ViewerHandler) ToggleControls(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.ToggleControls(); err != nil {
		fail(w, h.logger, "controls update failed", err)
		return
	}
	h.respondView(w)
}

// Theme handles PUT /view/theme.
func (h *ViewerHandler) Theme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequestDTO
	if !decode(w, r, &req) {
		return
	}
	switch domain.Theme(req.Theme) {
	case domain.ThemeWhite, domain.ThemeDim, domain.ThemeBlack:
	default:
		writeError(w, http.StatusBadRequest, "theme must be white, dim or black", "")
		return
	}
	if err := h.session.SetTheme(domain.Theme(req.Theme)); err != nil {
		fail(w, h.logger, "theme update failed", err)
		return
	}
	h.respondView(w)
}

// Download handles POST /view/download. The export runs in the background;
// clients poll or wait for the completion signal.
func (h *ViewerHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequestDTO
	if !decode(w, r, &req) {
		return
	}
	// The export outlives the request.
	started, err := h.session.TriggerDownload(context.WithoutCancel(r.Context()), req.Trigger)
	if err != nil {
		fail(w, h.logger, "download failed", err)
		return
	}
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]interface{}{"started": started, "trigger": req.Trigger})
}
