package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

// withSession resumes the stored book, runs fn, and closes the session so
// the reading position is persisted.
func withSession(ctx context.Context, deps viewer.Deps, fn func(a *app.App, s *viewer.Session) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.NewSession(deps)
	ok, err := a.Resume(ctx, s)
	if err != nil {
		_ = s.Close()
		return err
	}
	if !ok {
		_ = s.Close()
		return fmt.Errorf("no book stored, run: reader-engine book import <file.pdf>")
	}
	if err := fn(a, s); err != nil {
		_ = s.Close()
		return err
	}
	if err := s.WaitIdle(); err != nil {
		return err
	}
	return s.Close()
}

func reportPosition(s *viewer.Session) error {
	v, err := s.View()
	if err != nil {
		return err
	}
	if outputJSON {
		printJSON(v)
		return nil
	}
	ui.Success("Page %d of %d at %.0f%%", v.PageNumber, v.PageCount, v.Scale*100)
	return nil
}

func newPageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page <next|prev|number>",
		Short: "Turn to another page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), viewer.Deps{}, func(_ *app.App, s *viewer.Session) error {
				switch args[0] {
				case "next":
					moved, err := s.NextPage()
					if err != nil {
						return err
					}
					if !moved {
						ui.Info("Already on the last page")
					}
				case "prev":
					moved, err := s.PrevPage()
					if err != nil {
						return err
					}
					if !moved {
						ui.Info("Already on the first page")
					}
				default:
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("page must be next, prev or a number: %q", args[0])
					}
					if err := s.GoTo(n); err != nil {
						return err
					}
				}
				return reportPosition(s)
			})
		},
	}
}

func newZoomCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "zoom <in|out>",
		Short: "Step the zoom level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), viewer.Deps{}, func(_ *app.App, s *viewer.Session) error {
				step := s.ZoomIn
				switch args[0] {
				case "in":
				case "out":
					step = s.ZoomOut
				default:
					return fmt.Errorf("zoom direction must be in or out: %q", args[0])
				}
				for i := 0; i < steps; i++ {
					if err := step(); err != nil {
						return err
					}
				}
				if err := s.WaitIdle(); err != nil {
					return err
				}
				return reportPosition(s)
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of zoom steps")
	return cmd
}
