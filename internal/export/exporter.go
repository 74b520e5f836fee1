package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
)

func init() {
	// Keep pdfcpu from creating a config directory under the user's home.
	model.ConfigPath = "disable"
}

// Progress reports pages processed out of total.
type Progress func(done, total int)

// Exporter writes highlighted copies of PDFs.
type Exporter struct {
	logger *observability.Logger
}

// NewExporter creates an exporter.
func NewExporter(logger *observability.Logger) *Exporter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Exporter{logger: logger.WithOperation("export")}
}

// Export returns original with every highlight rect drawn as a filled,
// multiply-blended rectangle. Pages without highlights are left untouched.
func (e *Exporter) Export(ctx context.Context, original []byte, set domain.HighlightSet, progress Progress) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdf, err := api.ReadContext(bytes.NewReader(original), conf)
	if err != nil {
		return nil, domain.ExportError("failed to parse PDF", err)
	}
	if err := api.ValidateContext(pdf); err != nil {
		return nil, domain.ExportError("failed to validate PDF", err)
	}

	pages := set.Pages()
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, domain.CancelledError("export aborted", err)
		}
		if page > pdf.PageCount {
			e.logger.Warn().Int("page", page).Int("page_count", pdf.PageCount).Msg("skipping highlights beyond last page")
			continue
		}
		if err := stampPage(pdf, page, set.ForPage(page)); err != nil {
			return nil, domain.ExportError(fmt.Sprintf("failed to draw highlights on page %d", page), err)
		}
		if progress != nil {
			progress(i+1, len(pages))
		}
	}

	var out bytes.Buffer
	if err := api.WriteContext(pdf, &out); err != nil {
		return nil, domain.ExportError("failed to write PDF", err)
	}

	e.logger.Info().
		Int("pages", len(pages)).
		Int("highlights", set.Count()).
		Int("bytes", out.Len()).
		Msg("export complete")
	return out.Bytes(), nil
}

func stampPage(pdf *model.Context, page int, highlights []domain.Highlight) error {
	pageDict, _, inh, err := pdf.PageDict(page, true)
	if err != nil {
		return err
	}
	if pageDict == nil || inh == nil {
		return fmt.Errorf("page %d not found", page)
	}

	rect := inh.CropBox
	if rect == nil {
		rect = inh.MediaBox
	}
	if rect == nil {
		return fmt.Errorf("page %d has no media box", page)
	}
	box := Box{LLX: rect.LL.X, LLY: rect.LL.Y, Width: rect.Width(), Height: rect.Height(), Rotate: inh.Rotate}

	resources, err := pageResources(pdf, pageDict, inh)
	if err != nil {
		return err
	}
	states, err := subDict(pdf, resources, "ExtGState")
	if err != nil {
		return err
	}

	stateNames := make(map[float64]string)
	var content strings.Builder
	content.WriteString("q\n")
	for _, h := range highlights {
		fill := highlight.ParseColorOrBlack(h.Color)
		name, ok := stateNames[fill.A]
		if !ok {
			name = freeName(states, "GSHighlight", len(stateNames))
			states.Insert(name, types.Dict(map[string]types.Object{
				"Type": types.Name("ExtGState"),
				"ca":   types.Float(fill.A),
				"CA":   types.Float(fill.A),
				"BM":   types.Name("Multiply"),
			}))
			stateNames[fill.A] = name
		}
		fmt.Fprintf(&content, "/%s gs\n%s %s %s rg\n", name, num(fill.R), num(fill.G), num(fill.B))
		for _, r := range h.Rects {
			x, y, w, hh := PDFRect(r, box)
			fmt.Fprintf(&content, "%s %s %s %s re f\n", num(x), num(y), num(w), num(hh))
		}
	}
	content.WriteString("Q\n")

	return wrapContents(pdf, pageDict, []byte(content.String()))
}

// wrapContents isolates the original content in q ... Q and appends overlay.
func wrapContents(pdf *model.Context, pageDict types.Dict, overlay []byte) error {
	var original types.Array
	if obj, found := pageDict.Find("Contents"); found {
		switch v := obj.(type) {
		case types.IndirectRef:
			resolved, err := pdf.Dereference(v)
			if err != nil {
				return err
			}
			if arr, ok := resolved.(types.Array); ok {
				original = append(original, arr...)
			} else {
				original = append(original, v)
			}
		case types.Array:
			original = append(original, v...)
		default:
			return fmt.Errorf("unsupported contents entry %T", obj)
		}
	}

	push, err := newStream(pdf, []byte("q\n"))
	if err != nil {
		return err
	}
	pop, err := newStream(pdf, append([]byte("Q\n"), overlay...))
	if err != nil {
		return err
	}

	contents := make(types.Array, 0, len(original)+2)
	contents = append(contents, *push)
	contents = append(contents, original...)
	contents = append(contents, *pop)
	pageDict.Update("Contents", contents)
	return nil
}

func newStream(pdf *model.Context, buf []byte) (*types.IndirectRef, error) {
	sd, err := pdf.NewStreamDictForBuf(buf)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return pdf.IndRefForNewObject(*sd)
}

// pageResources returns the page's own resource dict, materializing an
// inherited one on the page so additions stay local to it.
func pageResources(pdf *model.Context, pageDict types.Dict, inh *model.InheritedPageAttrs) (types.Dict, error) {
	if obj, found := pageDict.Find("Resources"); found && obj != nil {
		return pdf.DereferenceDict(obj)
	}
	res := types.Dict{}
	if inh.Resources != nil {
		if cloned, ok := inh.Resources.Clone().(types.Dict); ok {
			res = cloned
		}
	}
	pageDict.Insert("Resources", res)
	return res, nil
}

func subDict(pdf *model.Context, parent types.Dict, key string) (types.Dict, error) {
	if obj, found := parent.Find(key); found && obj != nil {
		d, err := pdf.DereferenceDict(obj)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}
	}
	d := types.Dict{}
	parent.Update(key, d)
	return d, nil
}

func freeName(d types.Dict, prefix string, start int) string {
	for i := start; ; i++ {
		name := prefix + strconv.Itoa(i)
		if _, taken := d.Find(name); !taken {
			return name
		}
	}
}

func num(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
