package handlers

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

// BookHandler manages the stored book.
type BookHandler struct {
	logger    *observability.Logger
	app       *app.App
	session   *viewer.Session
	maxUpload int64
}

// NewBookHandler creates a new book handler.
func NewBookHandler(logger *observability.Logger, a *app.App, session *viewer.Session, maxUpload int64) *BookHandler {
	return &BookHandler{logger: logger, app: a, session: session, maxUpload: maxUpload}
}

// Import handles PUT /book. The body is the raw PDF; the filename comes from
// the Content-Disposition header or the filename query parameter.
func (h *BookHandler) Import(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	filename = filepath.Base(filename)
	if filename == "." || filename == "/" {
		filename = ""
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or unreadable", err.Error())
		return
	}

	if err := h.app.Import(r.Context(), h.session, filename, data); err != nil {
		fail(w, h.logger, "import failed", err)
		return
	}
	if err := h.session.WaitIdle(); err != nil {
		fail(w, h.logger, "import failed", err)
		return
	}

	v, err := h.session.View()
	if err != nil {
		fail(w, h.logger, "import failed", err)
		return
	}
	h.logger.Info().Str("filename", v.Filename).Int("pages", v.PageCount).Msg("book imported")
	writeJSON(w, http.StatusCreated, v)
}

// Clear handles DELETE /book.
func (h *BookHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Clear(r.Context(), h.session); err != nil {
		fail(w, h.logger, "clear failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET /exports/{name}.
func (h *BookHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "name"))
	if name == "." || name == "/" || filepath.Ext(name) != ".pdf" {
		writeError(w, http.StatusNotFound, "export not found", "")
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, filepath.Join(h.app.Config.Export.OutputDir, name))
}
