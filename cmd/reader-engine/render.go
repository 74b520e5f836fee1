package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/render"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/viewer"
)

func newRenderCmd() *cobra.Command {
	var (
		pages       string
		scale       float64
		theme       string
		outDir      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render pages of the stored book to PNG",
		Long: `Render rasterizes pages of the stored book at the saved or given scale,
applies the theme and draws the page's highlights, and writes one PNG per page.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			state, ok, err := a.Store.Load(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no book stored, run: reader-engine book import <file.pdf>")
			}
			if scale > 0 {
				state.Scale = domain.ClampScale(scale)
			}
			if theme == "" {
				theme = cfg.Viewer.Theme
			}
			th := domain.ParseTheme(theme)

			handle, err := document.Open(ctx, a.Store.Source(state.Filename))
			if err != nil {
				ui.Error("Failed to load document: %v", err)
				return err
			}
			defer handle.Close()

			selected, err := parsePages(pages, state.PageNumber, handle.PageCount())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			opts := a.SessionOptions()
			base := strings.TrimSuffix(filepath.Base(state.Filename), filepath.Ext(state.Filename))
			bar := ui.ProgressBar(len(selected), "Rendering")
			written := make([]string, len(selected))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)
			for i, page := range selected {
				g.Go(func() error {
					rendererOpts := []render.RendererOption{render.WithLogger(logger)}
					if a.Cache != nil {
						rendererOpts = append(rendererOpts, render.WithCache(a.Cache, opts.CacheTTL))
					}
					r := render.NewRenderer(handle, render.NewSurface(), opts.Render, rendererOpts...)
					frame, err := r.Render(gctx, page, state.Scale)
					if err != nil {
						return fmt.Errorf("render page %d: %w", page, err)
					}
					data, err := render.EncodePNG(viewer.Compose(frame.Raster, frame, state.Highlights, th))
					if err != nil {
						return fmt.Errorf("encode page %d: %w", page, err)
					}
					path := filepath.Join(outDir, fmt.Sprintf("%s-p%03d.png", base, page))
					if err := os.WriteFile(path, data, 0o644); err != nil {
						return fmt.Errorf("write %s: %w", path, err)
					}
					written[i] = path
					bar.Add(1)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				ui.Error("%v", err)
				return err
			}
			bar.Finish()

			if outputJSON {
				printJSON(map[string]interface{}{"files": written, "scale": state.Scale, "theme": th})
				return nil
			}
			for _, p := range written {
				ui.Success("Wrote %s", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pages, "pages", "p", "", `pages to render, e.g. "1,3-5" or "all" (default: current page)`)
	cmd.Flags().Float64VarP(&scale, "scale", "s", 0, "render scale (default: saved scale)")
	cmd.Flags().StringVar(&theme, "theme", "", "page theme: white, dim or black")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "pages rendered in parallel")
	return cmd
}

// parsePages expands a page list like "1,3-5" into sorted unique pages. An
// empty list selects current; "all" selects every page.
func parsePages(list string, current, pageCount int) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return []int{domain.ClampPage(current, pageCount)}, nil
	}
	if list == "all" {
		out := make([]int, pageCount)
		for i := range out {
			out[i] = i + 1
		}
		return out, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		if first < 1 || last > pageCount || first > last {
			return nil, fmt.Errorf("page range %q outside 1-%d", part, pageCount)
		}
		for p := first; p <= last; p++ {
			seen[p] = true
		}
	}

	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out, nil
}
