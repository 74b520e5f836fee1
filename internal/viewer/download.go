package viewer

import (
	"context"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/export"
)

// TriggerDownload requests an export for trigger value n. Only values above
// the last seen one start a job; it reports whether one started. The
// download-complete callback fires once per started job.
func (s *Session) TriggerDownload(ctx context.Context, n int) (bool, error) {
	var job *export.Job
	if err := s.do(func() {
		if n <= s.lastDownload {
			return
		}
		s.lastDownload = n
		job = &export.Job{
			Source:     s.src,
			Highlights: s.highlights.Set().Clone(),
			Filename:   s.filename,
			Exporter:   s.deps.Exporter,
			Saver:      s.deps.Saver,
			Notifier:   s.deps.Notifier,
			Progress:   s.deps.ExportProgress,
			OnComplete: s.deps.OnDownloadComplete,
			Logger:     s.deps.Logger,
		}
	}); err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	s.logger.Info().Int("trigger", n).Int("highlights", job.Highlights.Count()).Msg("export requested")
	s.async(func() {
		if filename, err := job.Run(ctx); err == nil {
			s.logger.Info().Str("filename", filename).Msg("export saved")
		}
	})
	return true, nil
}

// Download runs one export synchronously and returns the saved filename. It
// shares the trigger counter with TriggerDownload.
func (s *Session) Download(ctx context.Context) (string, error) {
	var job export.Job
	if err := s.do(func() {
		s.lastDownload++
		job = export.Job{
			Source:     s.src,
			Highlights: s.highlights.Set().Clone(),
			Filename:   s.filename,
			Exporter:   s.deps.Exporter,
			Saver:      s.deps.Saver,
			Notifier:   s.deps.Notifier,
			Progress:   s.deps.ExportProgress,
			OnComplete: s.deps.OnDownloadComplete,
			Logger:     s.deps.Logger,
		}
	}); err != nil {
		return "", err
	}
	return job.Run(ctx)
}
