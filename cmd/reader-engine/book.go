package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

func newBookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the stored book",
	}
	cmd.AddCommand(newBookImportCmd())
	cmd.AddCommand(newBookShowCmd())
	cmd.AddCommand(newBookClearCmd())
	return cmd
}

func newBookImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.pdf>",
		Short: "Store a PDF as the current book, replacing any previous one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			src, err := document.NewFileSource(args[0])
			if err != nil {
				return err
			}
			data, err := src.Bytes(ctx)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			spin := ui.Spinner("Opening document...")
			spin.Start()
			session := a.NewSession(viewer.Deps{})
			defer session.Close()
			err = a.Import(ctx, session, filepath.Base(args[0]), data)
			if err == nil {
				err = session.WaitIdle()
			}
			spin.Stop()
			if err != nil {
				ui.Error("Import failed: %v", err)
				return err
			}

			v, err := session.View()
			if err != nil {
				return err
			}
			if outputJSON {
				printJSON(v)
				return nil
			}
			ui.Success("Imported %s (%d pages)", v.Filename, v.PageCount)
			return nil
		},
	}
}

func newBookShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored book and reading position",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			session := a.NewSession(viewer.Deps{})
			defer session.Close()
			ok, err := a.Resume(ctx, session)
			if err != nil {
				return err
			}
			if !ok {
				if outputJSON {
					printJSON(viewer.View{})
					return nil
				}
				ui.Warning("No book stored. Run: reader-engine book import <file.pdf>")
				return nil
			}

			v, err := session.View()
			if err != nil {
				return err
			}
			if outputJSON {
				printJSON(v)
				return nil
			}
			ui.Table([]string{"Field", "Value"}, [][]string{
				{"Book", a.Store.BookID()},
				{"File", v.Filename},
				{"Page", fmt.Sprintf("%d / %d", v.PageNumber, v.PageCount)},
				{"Scale", fmt.Sprintf("%.2f", v.Scale)},
				{"Highlights", fmt.Sprintf("%d", v.HighlightCount)},
				{"Fingerprint", v.Fingerprint},
			})
			return nil
		},
	}
}

func newBookClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored book and its highlights",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ui.Warning("This deletes the stored book and every highlight. Re-run with --yes to confirm.")
				return nil
			}
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			session := a.NewSession(viewer.Deps{})
			defer session.Close()
			if _, err := a.Resume(ctx, session); err != nil {
				logger.Warn().Err(err).Msg("stored book could not be opened, clearing anyway")
			}
			if err := a.Clear(ctx, session); err != nil {
				ui.Error("Clear failed: %v", err)
				return err
			}
			ui.Success("Book cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
