// Package app wires configuration, storage, the raster cache and viewer
// sessions together for the command-line and HTTP entrypoints.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/export"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/zoom"
)

// saveTimeout bounds one debounced state write.
const saveTimeout = 5 * time.Second

// App holds the long-lived services shared by every session.
type App struct {
	Config *config.Config
	Logger *observability.Logger
	DB     *storage.Handle
	Store  *storage.Store
	Cache  cache.Client

	holdOnce sync.Once
	held     bool
}

// New builds the services described by cfg. Nothing connects until first use.
func New(cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	var rasters cache.Client
	if cfg.Render.CacheRasters {
		c, err := cache.New(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("create raster cache: %w", err)
		}
		rasters = c
	}

	db := storage.NewHandle(cfg.Database, logger)
	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Store:  storage.NewStore(db, cfg.Viewer.BookID, logger),
		Cache:  rasters,
	}, nil
}

// Close releases the database reference held for sessions and the cache.
func (a *App) Close() error {
	if a.held {
		if err := a.DB.Release(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close database")
		}
		a.held = false
	}
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

// SessionOptions maps configuration onto viewer options.
func (a *App) SessionOptions() viewer.Options {
	cfg := a.Config
	return viewer.Options{
		Render: render.Options{
			DevicePixelRatio: cfg.Render.DevicePixelRatio,
			MinRasterWidth:   cfg.Render.MinRasterWidth,
			MinOversample:    cfg.Render.MinOversample,
			MaxOversample:    cfg.Render.MaxOversample,
		},
		Zoom: zoom.Settings{
			WheelSensitivity: cfg.Zoom.WheelSensitivity,
			WheelSettle:      cfg.Zoom.WheelSettle,
			PinchSettle:      cfg.Zoom.PinchSettle,
			ButtonStep:       cfg.Zoom.ButtonStep,
		},
		SaveDebounce: cfg.Viewer.SaveDebounce,
		Theme:        domain.ParseTheme(cfg.Viewer.Theme),
		Viewport:     domain.Size{Width: cfg.Viewer.ViewportWidth, Height: cfg.Viewer.ViewportHeight},
		CacheTTL:     cfg.Cache.TTL,
	}
}

// NewSession starts a session persisting into the store. Unset deps get the
// app's cache, logger and an export saver writing to the configured
// directory.
func (a *App) NewSession(deps viewer.Deps) *viewer.Session {
	if deps.Logger == nil {
		deps.Logger = a.Logger
	}
	if deps.Cache == nil && a.Cache != nil {
		deps.Cache = a.Cache
	}
	if deps.Saver == nil {
		deps.Saver = export.DirSaver{Dir: a.Config.Export.OutputDir}
	}
	if deps.OnStateChange == nil {
		deps.OnStateChange = a.saveState
		a.holdDatabase()
	}
	return viewer.NewSession(a.SessionOptions(), deps)
}

// holdDatabase keeps the database open until Close so debounced saves do not
// reopen and re-migrate it. A failure here is not fatal: each operation
// opens the database on its own.
func (a *App) holdDatabase() {
	a.holdOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if _, err := a.DB.Acquire(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("database unavailable, opening per operation")
			return
		}
		a.held = true
	})
}

func (a *App) saveState(state domain.ViewportState) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := a.Store.Save(ctx, state); err != nil {
		a.Logger.Error().Err(err).Msg("failed to persist viewer state")
	}
}

// Resume opens the stored book in s with its saved state. It reports false
// when nothing is stored.
func (a *App) Resume(ctx context.Context, s *viewer.Session) (bool, error) {
	state, ok, err := a.Store.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := s.Open(ctx, a.Store.Source(state.Filename), state); err != nil {
		return false, err
	}
	return true, nil
}

// Import stores data as the current book and opens it in s, if given. s is
// detached from the old book first so none of its pending saves reach the
// new one.
func (a *App) Import(ctx context.Context, s *viewer.Session, filename string, data []byte) error {
	if err := document.ValidateBytes(data); err != nil {
		return err
	}
	if s != nil {
		if err := s.Clear(); err != nil {
			return err
		}
		if err := s.WaitIdle(); err != nil {
			return err
		}
	}
	if err := a.Store.Import(ctx, filename, data); err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	_, err := a.Resume(ctx, s)
	return err
}

// Clear forgets the stored book, drops its cached rasters and empties s, if
// given.
func (a *App) Clear(ctx context.Context, s *viewer.Session) error {
	if s != nil {
		if v, err := s.View(); err == nil && v.Fingerprint != "" && a.Cache != nil {
			if err := a.Cache.DeleteByPrefix(ctx, cache.DocumentPrefix(v.Fingerprint)); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to drop cached rasters")
			}
		}
		if err := s.Clear(); err != nil {
			return err
		}
	}
	return a.Store.Clear(ctx)
}
