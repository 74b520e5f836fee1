package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
)

// Saver delivers an exported file to the user.
type Saver interface {
	Save(ctx context.Context, filename string, data []byte) error
}

// Notifier surfaces a failed export to the user.
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

// Notify calls f.
func (f NotifierFunc) Notify(err error) { f(err) }

// Job is one requested export.
type Job struct {
	Source     document.ByteSource
	Highlights domain.HighlightSet
	// Filename is the original document name; the output name derives from it.
	Filename string
	Exporter *Exporter
	Saver    Saver
	Notifier Notifier
	Progress Progress
	// OnComplete fires exactly once per Run, whether or not the export worked.
	OnComplete func()
	Logger     *observability.Logger
}

// Run fetches fresh bytes, exports, and saves. Failures are reported to the
// notifier and returned.
func (j Job) Run(ctx context.Context) (filename string, err error) {
	defer func() {
		if j.OnComplete != nil {
			j.OnComplete()
		}
	}()

	logger := j.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	defer func() {
		if err != nil {
			logger.Error().Err(err).Str("filename", filename).Msg("export failed")
			if j.Notifier != nil {
				j.Notifier.Notify(err)
			}
		}
	}()

	filename = OutputFilename(j.Filename)

	if j.Source == nil {
		return filename, domain.ExportError("no document to export", nil)
	}
	exporter := j.Exporter
	if exporter == nil {
		exporter = NewExporter(logger)
	}

	data, err := j.Source.Bytes(ctx)
	if err != nil {
		return filename, domain.ExportError("failed to fetch document", err)
	}

	out, err := exporter.Export(ctx, data, j.Highlights, j.Progress)
	if err != nil {
		return filename, err
	}

	if j.Saver == nil {
		return filename, domain.ExportError("no saver configured", nil)
	}
	if err := j.Saver.Save(ctx, filename, out); err != nil {
		return filename, domain.ExportError(fmt.Sprintf("failed to save %s", filename), err)
	}
	return filename, nil
}

// DirSaver writes exports into a directory.
type DirSaver struct {
	Dir string
}

// Save writes data to Dir/filename, creating Dir if needed.
func (s DirSaver) Save(_ context.Context, filename string, data []byte) error {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.IOError("create export directory", err)
	}
	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.IOError(fmt.Sprintf("write %s", path), err)
	}
	return nil
}

// MemorySaver keeps the last export in memory, for the HTTP surface and tests.
type MemorySaver struct {
	mu       sync.Mutex
	Filename string
	Data     []byte
}

// Save stores data.
func (s *MemorySaver) Save(_ context.Context, filename string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Filename = filename
	s.Data = append([]byte(nil), data...)
	return nil
}

// Last returns the stored export.
func (s *MemorySaver) Last() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filename, s.Data
}
