package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/document"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/domain"
)

func sampleLayer() *TextLayer {
	return BuildTextLayer(1, 2, document.Geometry{Width: 300, Height: 400}, []document.TextRun{
		{Text: "hello", Left: 10, Top: 10, Width: 50, Height: 10, FontSize: 10},
		{Text: "world", Left: 70, Top: 10, Width: 50, Height: 10, FontSize: 10},
		{Text: "next", Left: 10, Top: 30, Width: 40, Height: 10, FontSize: 10},
	})
}

func TestBuildTextLayer_ScalesSpans(t *testing.T) {
	l := sampleLayer()
	assert.Equal(t, domain.Size{Width: 600, Height: 800}, l.Size)
	assert.Equal(t, domain.Rect{Top: 20, Left: 20, Width: 100, Height: 20}, l.Spans[0].Rect)
	assert.Equal(t, 20.0, l.Spans[0].FontSize)
}

func TestTextLayer_ClientRects(t *testing.T) {
	l := sampleLayer()
	sel := Selection{StartSpan: 0, StartOffset: 1, EndSpan: 1, EndOffset: 2}

	rects := l.ClientRects(sel, domain.Point{X: 100, Y: 50})
	require.Len(t, rects, 2)
	assert.Equal(t, domain.Rect{Top: 70, Left: 140, Width: 80, Height: 20}, rects[0])
	assert.Equal(t, domain.Rect{Top: 70, Left: 240, Width: 40, Height: 20}, rects[1])

	assert.Empty(t, l.ClientRects(Selection{StartSpan: 1, StartOffset: 2, EndSpan: 1, EndOffset: 2}, domain.Point{}))
	assert.Empty(t, l.ClientRects(Selection{StartSpan: 0, EndSpan: 7}, domain.Point{}))
}

func TestTextLayer_Text(t *testing.T) {
	l := sampleLayer()
	assert.Equal(t, "ello wo", l.Text(Selection{StartSpan: 0, StartOffset: 1, EndSpan: 1, EndOffset: 2}))
	assert.Equal(t, "world\nne", l.Text(Selection{StartSpan: 2, StartOffset: 2, EndSpan: 1, EndOffset: 0}))
}

func TestTextLayer_SelectBetween(t *testing.T) {
	l := sampleLayer()
	sel, ok := l.SelectBetween(domain.Point{X: 200, Y: 25}, domain.Point{X: 40, Y: 25})
	require.True(t, ok)
	assert.Equal(t, Selection{StartSpan: 0, StartOffset: 1, EndSpan: 1, EndOffset: 3}, sel)

	_, ok = (&TextLayer{}).SelectBetween(domain.Point{}, domain.Point{})
	assert.False(t, ok)
}
