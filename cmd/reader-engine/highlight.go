package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

func newHighlightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "highlight",
		Short: "Add and list highlights",
	}
	cmd.AddCommand(newHighlightAddCmd())
	cmd.AddCommand(newHighlightListCmd())
	return cmd
}

func newHighlightAddCmd() *cobra.Command {
	var (
		page  int
		color string
		rects []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Highlight rectangles on a page",
		Long: `Add records a highlight from rectangles in page points at scale 1.0,
measured from the page's top-left corner as top,left,width,height.

Colours: yellow, green, blue, pink, grey, or any rgb()/rgba() value.`,
		Example: `  reader-engine highlight add --page 3 --color green --rect 120,72,200,14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]domain.Rect, 0, len(rects))
			for _, r := range rects {
				rect, err := parseRect(r)
				if err != nil {
					return err
				}
				parsed = append(parsed, rect)
			}

			return withSession(cmd.Context(), viewer.Deps{}, func(_ *app.App, s *viewer.Session) error {
				if page == 0 {
					v, err := s.View()
					if err != nil {
						return err
					}
					page = v.PageNumber
				}
				h, err := s.AddHighlight(page, color, parsed)
				if err != nil {
					return err
				}
				if outputJSON {
					printJSON(h)
					return nil
				}
				ui.Success("Added highlight %s on page %d", h.ID, page)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 0, "page number (default: current page)")
	cmd.Flags().StringVar(&color, "color", highlight.Yellow, "palette name or rgba() colour")
	cmd.Flags().StringArrayVarP(&rects, "rect", "r", nil, "rectangle as top,left,width,height (repeatable)")
	_ = cmd.MarkFlagRequired("rect")
	return cmd
}

func newHighlightListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored highlights",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			state, ok, err := a.Store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				ui.Warning("No book stored")
				return nil
			}
			if outputJSON {
				printJSON(state.Highlights)
				return nil
			}
			if state.Highlights.Count() == 0 {
				ui.Info("No highlights yet")
				return nil
			}

			var rows [][]string
			for _, p := range state.Highlights.Pages() {
				for _, h := range state.Highlights.ForPage(p) {
					rows = append(rows, []string{strconv.Itoa(p), h.ID, colorName(h.Color), strconv.Itoa(len(h.Rects))})
				}
			}
			ui.Table([]string{"Page", "ID", "Colour", "Rects"}, rows)
			return nil
		},
	}
}

// parseRect reads "top,left,width,height".
func parseRect(s string) (domain.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Rect{}, fmt.Errorf("rect %q must be top,left,width,height", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Rect{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = f
	}
	r := domain.Rect{Top: v[0], Left: v[1], Width: v[2], Height: v[3]}
	if r.Empty() {
		return domain.Rect{}, fmt.Errorf("rect %q has no area", s)
	}
	return r, nil
}

// colorName maps palette values back to their names.
func colorName(value string) string {
	for _, name := range highlight.PaletteOrder {
		if highlight.Palette[name] == value {
			return name
		}
	}
	return value
}
