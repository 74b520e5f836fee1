package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/export"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

func newExportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a copy of the book with highlights burned in",
		Long: `Export re-reads the stored PDF, draws every highlight onto its page as a
multiply-blended rectangle, and saves <name>-highlighted.pdf.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = cfg.Export.OutputDir
			}

			var bar *ProgressBar
			deps := viewer.Deps{
				Saver: export.DirSaver{Dir: outDir},
				ExportProgress: func(done, total int) {
					if bar == nil {
						bar = ui.ProgressBar(total, "Exporting")
					}
					bar.Set(done)
				},
				Notifier: export.NotifierFunc(func(err error) {
					ui.Error("Export failed: %v", err)
				}),
			}

			return withSession(cmd.Context(), deps, func(_ *app.App, s *viewer.Session) error {
				set, err := s.Highlights()
				if err != nil {
					return err
				}
				if set.Count() == 0 {
					ui.Warning("No highlights; the export will match the original")
				}

				filename, err := s.Download(cmd.Context())
				bar.Finish()
				if err != nil {
					return err
				}

				path := filepath.Join(outDir, filename)
				if outputJSON {
					printJSON(map[string]interface{}{"file": path, "highlights": set.Count()})
					return nil
				}
				ui.Success("Exported %d highlights to %s", set.Count(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: export.output_dir)")
	return cmd
}
