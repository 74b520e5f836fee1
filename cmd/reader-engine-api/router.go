// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/reader-engine/cmd/reader-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/reader-engine/cmd/reader-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

// Server bundles the router with the session it serves.
type Server struct {
	Handler   http.Handler
	Session   *viewer.Session
	Downloads *handlers.DownloadStatus
}

// NewServer builds the session and the router around it.
func NewServer(logger *observability.Logger, a *app.App) *Server {
	downloads := &handlers.DownloadStatus{}
	session := a.NewSession(viewer.Deps{
		OnDownloadComplete: downloads.Complete,
		Notifier:           downloads,
	})
	return &Server{
		Handler:   NewRouter(logger, a, session, downloads),
		Session:   session,
		Downloads: downloads,
	}
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, a *app.App, session *viewer.Session, downloads *handlers.DownloadStatus) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(a.Config.Server.WriteTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"reader-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ping(r.Context(), a); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	bookHandler := handlers.NewBookHandler(logger, a, session, a.Config.Server.MaxUploadBytes)
	viewerHandler := handlers.NewViewerHandler(logger, session)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/book", func(r chi.Router) {
			r.Put("/", bookHandler.Import)
			r.Delete("/", bookHandler.Clear)
		})

		r.Get("/exports/{name}", bookHandler.Download)

		r.Route("/view", func(r chi.Router) {
			r.Get("/", viewerHandler.View)
			r.Get("/raster.png", viewerHandler.Raster)
			r.Get("/text-layer", viewerHandler.TextLayer)
			r.Get("/overlay", viewerHandler.Overlay)

			r.Post("/page", viewerHandler.Page)
			r.Post("/edge-click", viewerHandler.EdgeClick)
			r.Post("/zoom", viewerHandler.Zoom)
			r.Post("/wheel", viewerHandler.Wheel)
			r.Post("/pinch", viewerHandler.Pinch)
			r.Put("/scroll", viewerHandler.Scroll)
			r.Put("/viewport", viewerHandler.Viewport)

			r.Route("/selection", func(r chi.Router) {
				r.Post("/", viewerHandler.Select)
				r.Delete("/", viewerHandler.ClearSelection)
				r.Post("/copy", viewerHandler.Copy)
			})

			r.Get("/highlights", viewerHandler.Highlights)
			r.Post("/highlights", viewerHandler.AddHighlight)

			r.Put("/controls", viewerHandler.Controls)
			r.Post("/controls/toggle", viewerHandler.ToggleControls)
			r.Put("/theme", viewerHandler.Theme)

			r.Get("/download", downloads.Status)
			r.Post("/download", viewerHandler.Download)
		})
	})

	return r
}

// ping checks that the book store is reachable.
func ping(ctx context.Context, a *app.App) error {
	db, err := a.DB.Acquire(ctx)
	if err != nil {
		return err
	}
	defer a.DB.Release()
	return db.PingContext(ctx)
}
