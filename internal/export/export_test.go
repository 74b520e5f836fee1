package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/highlight"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/testpdf"
)

func TestPDFRect_FlipsY(t *testing.T) {
	x, y, w, h := PDFRect(domain.Rect{Top: 10, Left: 20, Width: 100, Height: 30}, Box{Width: 600, Height: 800})
	assert.Equal(t, 20.0, x)
	assert.Equal(t, 760.0, y)
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 30.0, h)

	x, y, _, _ = PDFRect(domain.Rect{Top: 10, Left: 20, Width: 100, Height: 30}, Box{LLX: 5, LLY: 40, Width: 600, Height: 800})
	assert.Equal(t, 25.0, x)
	assert.Equal(t, 800.0, y)
}

func TestPDFRect_UndoesPageRotation(t *testing.T) {
	// A 600x800 page rotated 90 degrees is displayed 800 wide and 600 high.
	shown := domain.Rect{Top: 20, Left: 700, Width: 30, Height: 100}
	x, y, w, h := PDFRect(shown, Box{Width: 600, Height: 800, Rotate: 90})
	assert.Equal(t, 20.0, x)
	assert.Equal(t, 700.0, y)
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 30.0, h)
}

func TestOutputFilename(t *testing.T) {
	tests := map[string]string{
		"novel.pdf":      "novel-highlighted.pdf",
		"Report.PDF":     "Report-highlighted.pdf",
		"notes":          "notes-highlighted.pdf",
		"":               "book-highlighted.pdf",
		"a.pdf.pdf":      "a.pdf-highlighted.pdf",
		"pdf-guide.epub": "pdf-guide.epub-highlighted.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, OutputFilename(in), in)
	}
}

func TestNum(t *testing.T) {
	assert.Equal(t, "0", num(0))
	assert.Equal(t, "760", num(760))
	assert.Equal(t, "0.4", num(0.4))
	assert.Equal(t, "0.5255", num(134.0/255))
}

func sampleSet() domain.HighlightSet {
	return domain.HighlightSet{
		1: {
			{ID: "a", Color: highlight.Palette[highlight.Yellow], Rects: []domain.Rect{{Top: 100, Left: 100, Width: 200, Height: 50}}},
			{ID: "b", Color: highlight.Palette[highlight.Green], Rects: []domain.Rect{{Top: 300, Left: 100, Width: 100, Height: 20}}},
		},
		7: {{ID: "ghost", Color: highlight.Palette[highlight.Blue], Rects: []domain.Rect{{Width: 1, Height: 1}}}},
	}
}

func TestExport_DrawsMultipliedRects(t *testing.T) {
	original := testpdf.Build(
		testpdf.Letter(testpdf.Line{X: 72, Y: 720, FontSize: 12, Text: "Chapter One"}),
		testpdf.Letter(),
	)

	var progress [][2]int
	out, err := NewExporter(nil).Export(context.Background(), original, sampleSet(), func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 2}}, progress)

	doc, err := fitz.NewFromMemory(out)
	require.NoError(t, err)
	defer doc.Close()
	require.Equal(t, 2, doc.NumPage())

	img, err := doc.ImageDPI(0, 72)
	require.NoError(t, err)

	inside := img.RGBAAt(200, 125)
	assert.Greater(t, inside.R, uint8(240))
	assert.Less(t, inside.B, uint8(200), "yellow multiplied over white")

	outside := img.RGBAAt(500, 600)
	assert.Greater(t, outside.B, uint8(240))

	// Page 2 had no highlights and stays blank.
	blank, err := doc.ImageDPI(1, 72)
	require.NoError(t, err)
	assert.Greater(t, blank.RGBAAt(200, 125).B, uint8(240))
}

func TestExport_WritesExtGStatePerOpacity(t *testing.T) {
	out, err := NewExporter(nil).Export(context.Background(), testpdf.Build(testpdf.Letter()), sampleSet(), nil)
	require.NoError(t, err)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(out), conf)
	require.NoError(t, err)

	pageDict, _, _, err := ctx.PageDict(1, false)
	require.NoError(t, err)
	resObj, found := pageDict.Find("Resources")
	require.True(t, found)
	res, err := ctx.DereferenceDict(resObj)
	require.NoError(t, err)
	gsObj, found := res.Find("ExtGState")
	require.True(t, found)
	states, err := ctx.DereferenceDict(gsObj)
	require.NoError(t, err)

	assert.Len(t, states, 2, "yellow 0.4 and green 0.5")
	for _, obj := range states {
		st, err := ctx.DereferenceDict(obj)
		require.NoError(t, err)
		bm, _ := st.Find("BM")
		assert.Equal(t, types.Name("Multiply"), bm)
	}

	contents, found := pageDict.Find("Contents")
	require.True(t, found)
	arr, ok := contents.(types.Array)
	require.True(t, ok)
	assert.Len(t, arr, 3)
}

func pageContent(t *testing.T, data []byte, page int) ([]byte, types.Object) {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	require.NoError(t, err)
	pageDict, _, _, err := ctx.PageDict(page, false)
	require.NoError(t, err)
	content, err := ctx.PageContent(pageDict)
	require.NoError(t, err)
	contents, _ := pageDict.Find("Contents")
	return content, contents
}

func TestExport_LeavesUnhighlightedPagesAlone(t *testing.T) {
	original := testpdf.Build(
		testpdf.Letter(testpdf.Line{X: 72, Y: 720, FontSize: 12, Text: "Chapter One"}),
		testpdf.Letter(testpdf.Line{X: 72, Y: 720, FontSize: 12, Text: "Chapter Two"}),
	)
	set := domain.HighlightSet{1: sampleSet()[1]}

	out, err := NewExporter(nil).Export(context.Background(), original, set, nil)
	require.NoError(t, err)

	before, _ := pageContent(t, original, 2)
	after, contents := pageContent(t, out, 2)
	assert.Equal(t, before, after)
	_, wrapped := contents.(types.Array)
	assert.False(t, wrapped, "unhighlighted page keeps its single content stream")

	_, contents = pageContent(t, out, 1)
	_, wrapped = contents.(types.Array)
	assert.True(t, wrapped)
}

func TestExport_RejectsGarbage(t *testing.T) {
	_, err := NewExporter(nil).Export(context.Background(), []byte("nope"), sampleSet(), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeExport))
}

type failingSource struct{}

func (failingSource) Bytes(context.Context) ([]byte, error) { return nil, errors.New("gone") }
func (failingSource) Name() string                          { return "x.pdf" }

func TestJob_CompletesExactlyOnceOnFailure(t *testing.T) {
	completed := 0
	var notified error
	_, err := Job{
		Source:     failingSource{},
		Filename:   "x.pdf",
		Saver:      &MemorySaver{},
		Notifier:   NotifierFunc(func(err error) { notified = err }),
		OnComplete: func() { completed++ },
	}.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, err, notified)
}

func TestJob_SavesWithDerivedName(t *testing.T) {
	dir := t.TempDir()
	completed := 0
	name, err := Job{
		Source:     &document.MemorySource{Filename: "Novel.PDF", Data: testpdf.Build(testpdf.Letter())},
		Highlights: sampleSet(),
		Filename:   "Novel.PDF",
		Saver:      DirSaver{Dir: dir},
		OnComplete: func() { completed++ },
	}.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Novel-highlighted.pdf", name)
	assert.Equal(t, 1, completed)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}
