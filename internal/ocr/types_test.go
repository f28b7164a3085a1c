package ocr

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuadBounds(t *testing.T) {
	q := Quad{{X: 5, Y: 2}, {X: 1, Y: 8}, {X: 9, Y: 4}, {X: 3, Y: 0}}
	assert.Equal(t, Rect{MinX: 1, MinY: 0, MaxX: 9, MaxY: 8}, q.Bounds())
}

func TestRectQuadOrdersCorners(t *testing.T) {
	q := RectQuad(10, 20, 0, 5)
	assert.Equal(t, Point{X: 0, Y: 5}, q[0])
	assert.Equal(t, Point{X: 10, Y: 5}, q[1])
	assert.Equal(t, Point{X: 10, Y: 20}, q[2])
	assert.Equal(t, Point{X: 0, Y: 20}, q[3])
	assert.Equal(t, q, QuadFromRectangle(image.Rect(0, 5, 10, 20)))
}

func TestRectIoU(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	assert.InDelta(t, 1.0, a.IoU(a), 1e-9)
	assert.InDelta(t, 0.0, a.IoU(NewRect(20, 20, 30, 30)), 1e-9)
	assert.InDelta(t, 25.0/175.0, a.IoU(NewRect(5, 5, 15, 15)), 1e-9)
	assert.Zero(t, Rect{}.IoU(Rect{}))
}

func TestRecognitionResultSummary(t *testing.T) {
	r := RecognitionResult{Lines: []TextLine{
		{Text: "A", Confidence: 0.8},
		{Text: "B", Confidence: 0.6},
	}}
	assert.InDelta(t, 0.7, r.MeanConfidence(), 1e-9)
	assert.Equal(t, []string{"A", "B"}, r.Texts())
	assert.Zero(t, RecognitionResult{}.MeanConfidence())
}

func TestFrameSize(t *testing.T) {
	w, h := Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 3))}.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 3, h)
	w, h = Frame{}.Size()
	assert.Zero(t, w+h)
}
