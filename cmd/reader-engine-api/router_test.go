package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/reader-engine/cmd/reader-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/testpdf"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	cfg.Database.SQLite.Path = filepath.Join(dir, "reader.db")
	cfg.Export.OutputDir = dir
	cfg.Render.MinRasterWidth = 0
	cfg.Render.MinOversample = 1
	cfg.Render.MaxOversample = 1

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	s := NewServer(a.Logger, a)
	t.Cleanup(func() {
		_ = s.Session.Close()
		_ = a.Close()
	})
	return s
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func importBook(t *testing.T, s *Server) viewer.View {
	t.Helper()
	pdf := testpdf.Build(
		testpdf.Letter(testpdf.Line{X: 72, Y: 700, FontSize: 12, Text: "Chapter one"}),
		testpdf.Letter(testpdf.Line{X: 72, Y: 700, FontSize: 12, Text: "Chapter two"}),
	)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/book?filename=novel.pdf", bytes.NewReader(pdf))
	req.Header.Set("Content-Type", "application/pdf")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var v viewer.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) viewer.View {
	t.Helper()
	var v viewer.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = do(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestViewer_NoBook(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/view", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeView(t, rec).Open)

	rec = do(t, s, http.MethodGet, "/api/v1/view/raster.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/view/page", map[string]string{"action": "next"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestBook_ImportRejectsNonPDF(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/book?filename=notes.txt", strings.NewReader("plain text"))
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViewer_ReadingFlow(t *testing.T) {
	s := newTestServer(t)
	v := importBook(t, s)
	assert.Equal(t, "novel.pdf", v.Filename)
	assert.Equal(t, 2, v.PageCount)
	assert.Equal(t, 1, v.PageNumber)

	rec := do(t, s, http.MethodGet, "/api/v1/view/raster.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = do(t, s, http.MethodPost, "/api/v1/view/page", map[string]string{"action": "next"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeView(t, rec).PageNumber)

	rec = do(t, s, http.MethodPost, "/api/v1/view/page", map[string]interface{}{"action": "goto", "page": 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/view/zoom", map[string]string{"action": "in"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, s.Session.WaitIdle())
	rec = do(t, s, http.MethodGet, "/api/v1/view", nil)
	assert.Equal(t, 1.75, decodeView(t, rec).Scale)

	rec = do(t, s, http.MethodPut, "/api/v1/view/theme", map[string]string{"theme": "sepia"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodPut, "/api/v1/view/theme", map[string]string{"theme": "dim"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dim", string(decodeView(t, rec).Theme))

	rec = do(t, s, http.MethodPost, "/api/v1/view/controls/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeView(t, rec).ControlsVisible)
}

func TestViewer_HighlightAndDownload(t *testing.T) {
	s := newTestServer(t)
	importBook(t, s)

	rec := do(t, s, http.MethodPost, "/api/v1/view/highlights", map[string]interface{}{
		"color": "blue",
		"page":  1,
		"rects": []map[string]float64{{"top": 80, "left": 72, "width": 120, "height": 14}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/view/highlights", map[string]string{"color": "blue"})
	assert.Equal(t, http.StatusConflict, rec.Code, "no selection to apply")

	rec = do(t, s, http.MethodGet, "/api/v1/view/overlay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overlay struct {
		Groups []struct {
			Color string `json:"color"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overlay))
	require.Len(t, overlay.Groups, 1)

	rec = do(t, s, http.MethodPost, "/api/v1/view/download", map[string]int{"trigger": 1})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/v1/view/download", map[string]int{"trigger": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, s.Session.WaitIdle())

	rec = do(t, s, http.MethodGet, "/api/v1/view/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status handlers.DownloadStatusDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Completed)
	assert.Equal(t, 0, status.Failed)

	rec = do(t, s, http.MethodGet, "/api/v1/exports/novel-highlighted.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = do(t, s, http.MethodGet, "/api/v1/exports/reader.db", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewer_SelectCopyAndHighlight(t *testing.T) {
	s := newTestServer(t)
	importBook(t, s)

	rec := do(t, s, http.MethodGet, "/api/v1/view/text-layer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var layer struct {
		Spans []struct {
			Text string `json:"text"`
			Rect struct {
				Top    float64 `json:"top"`
				Left   float64 `json:"left"`
				Width  float64 `json:"width"`
				Height float64 `json:"height"`
			} `json:"rect"`
		} `json:"spans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &layer))
	require.NotEmpty(t, layer.Spans)
	span := layer.Spans[0]
	midY := span.Rect.Top + span.Rect.Height/2

	selection := map[string]interface{}{
		"from": map[string]float64{"x": span.Rect.Left, "y": midY},
		"to":   map[string]float64{"x": span.Rect.Left + span.Rect.Width, "y": midY},
	}
	rec = do(t, s, http.MethodPost, "/api/v1/view/selection", selection)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"visible":true`)

	rec = do(t, s, http.MethodPost, "/api/v1/view/selection/copy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Chapter")

	rec = do(t, s, http.MethodPost, "/api/v1/view/selection", selection)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/v1/view/highlights", map[string]string{"color": "pink"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/view", nil)
	assert.Equal(t, 1, decodeView(t, rec).HighlightCount)
}
