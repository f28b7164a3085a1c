// Package ocr holds the data model shared by the engine pool, the
// consolidator, the capture loop and the exporter.
package ocr

import (
	"image"
	"math"
	"time"
)

// Point is a position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Quad is a four-corner region. Axis-aligned quads are stored clockwise
// starting at the top-left corner.
type Quad [4]Point

// Rect is an axis-aligned bounding rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// RectQuad builds an axis-aligned quad from two opposite corners.
func RectQuad(x0, y0, x1, y1 float64) Quad {
	return NewRect(x0, y0, x1, y1).Quad()
}

// QuadFromRectangle converts an integer image rectangle.
func QuadFromRectangle(r image.Rectangle) Quad {
	return RectQuad(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
}

// NewRect constructs a Rect from min/max coordinates ensuring ordering.
func NewRect(x0, y0, x1, y1 float64) Rect {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Rect{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1}
}

// Bounds returns the axis-aligned envelope of the quad.
func (q Quad) Bounds() Rect {
	r := Rect{MinX: q[0].X, MinY: q[0].Y, MaxX: q[0].X, MaxY: q[0].Y}
	for _, p := range q[1:] {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

// Quad returns the rectangle as a clockwise quad from the top-left corner.
func (r Rect) Quad() Quad {
	return Quad{
		{X: r.MinX, Y: r.MinY},
		{X: r.MaxX, Y: r.MinY},
		{X: r.MaxX, Y: r.MaxY},
		{X: r.MinX, Y: r.MaxY},
	}
}

func (r Rect) Width() float64   { return r.MaxX - r.MinX }
func (r Rect) Height() float64  { return r.MaxY - r.MinY }
func (r Rect) CenterY() float64 { return (r.MinY + r.MaxY) / 2 }
func (r Rect) Area() float64    { return math.Max(0, r.Width()) * math.Max(0, r.Height()) }

// Union returns the smallest rectangle covering both.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// IoU returns intersection over union, 0 when either area is empty.
func (r Rect) IoU(o Rect) float64 {
	ix := math.Min(r.MaxX, o.MaxX) - math.Max(r.MinX, o.MinX)
	iy := math.Min(r.MaxY, o.MaxY) - math.Max(r.MinY, o.MinY)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Frame is one captured image together with its capture metadata.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
	Source     string
	Index      int64
}

// Size returns the frame dimensions, zero for an empty frame.
func (f Frame) Size() (int, int) {
	if f.Image == nil {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// RawDetection is a single unit reported by the engine before consolidation.
type RawDetection struct {
	Box        Quad
	Text       string
	Confidence float64
	Language   string
}

// TextLine is a consolidated line of text. Box is the axis-aligned envelope
// of its members and Confidence is the minimum member confidence.
type TextLine struct {
	Box        Quad    `json:"box" yaml:"box"`
	Text       string  `json:"text" yaml:"text"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Language   string  `json:"language,omitempty" yaml:"language,omitempty"`
	Members    int     `json:"-" yaml:"-"`
}

// RecognitionResult is the outcome of one processing cycle. Lines are in
// reading order.
type RecognitionResult struct {
	ID         string
	Sequence   int64
	CapturedAt time.Time
	Width      int
	Height     int
	Languages  []string
	Sharpness  float64
	Lines      []TextLine
}

// MeanConfidence averages the line confidences, 0 for an empty result.
func (r RecognitionResult) MeanConfidence() float64 {
	if len(r.Lines) == 0 {
		return 0
	}
	var sum float64
	for _, l := range r.Lines {
		sum += l.Confidence
	}
	return sum / float64(len(r.Lines))
}

// Texts returns the line texts in reading order.
func (r RecognitionResult) Texts() []string {
	out := make([]string, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = l.Text
	}
	return out
}
