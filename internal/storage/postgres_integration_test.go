//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

func TestStore_Postgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("reader"),
		postgres.WithUsername("reader"),
		postgres.WithPassword("reader"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	h := NewHandle(config.DatabaseConfig{Driver: "postgres", Postgres: config.PostgresConfig{DSN: dsn, MaxOpenConns: 4}}, nil)
	store := NewStore(h, "current-book", nil)

	require.NoError(t, store.Import(ctx, "novel.pdf", samplePDF))
	set := domain.HighlightSet{1: {{ID: "x", Color: "rgba(147, 197, 253, 0.5)", Rects: []domain.Rect{{Top: 1, Left: 1, Width: 1, Height: 1}}}}}
	require.NoError(t, store.Save(ctx, domain.ViewportState{PageNumber: 2, Scale: 1.75, Highlights: set}))

	state, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, state.PageNumber)
	assert.Equal(t, 1.75, state.Scale)
	assert.Equal(t, set, state.Highlights)

	data, err := store.Source("novel.pdf").Bytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, data)
}
