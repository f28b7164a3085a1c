package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/utils"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Style controls how lines are drawn on the annotated image.
type Style struct {
	Thickness  int
	LabelColor color.Color
	Face       font.Face
}

// DefaultStyle draws 2px outlines with white labels.
func DefaultStyle() Style {
	return Style{Thickness: 2, LabelColor: color.White, Face: basicfont.Face7x13}
}

// ParseColor parses a #RGB or #RRGGBB hex color.
func ParseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("parse color %q: %w", hex, err)
	}
	return c, nil
}

// Palette returns n visually distinct colors. The sequence is deterministic
// so the same line index always gets the same color.
func Palette(n int) []color.Color {
	out := make([]color.Color, n)
	for i := range n {
		hue := math.Mod(float64(i)*67.0, 360)
		out[i] = colorful.Hcl(hue, 0.9, 0.6).Clamped()
	}
	return out
}

// Annotate returns a copy of img with each line outlined in its own color and
// labelled "<n>. <text>" near its top-left corner.
func Annotate(img image.Image, result ocr.RecognitionResult, style Style) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	if style.Face == nil {
		style.Face = basicfont.Face7x13
	}
	if style.LabelColor == nil {
		style.LabelColor = color.White
	}

	colors := Palette(len(result.Lines))
	for i, line := range result.Lines {
		pts := make([]utils.Point, len(line.Box))
		for j, p := range line.Box {
			pts[j] = utils.Point{X: p.X, Y: p.Y}
		}
		utils.DrawPolygon(dst, pts, colors[i], style.Thickness)
		drawLabel(dst, line.Box.Bounds(), fmt.Sprintf("%d. %s", i+1, line.Text), colors[i], style)
	}
	return dst
}

// drawLabel renders text on a filled tab above the box, or below it when
// there is no room at the top of the frame.
func drawLabel(dst *image.RGBA, box ocr.Rect, text string, bg color.Color, style Style) {
	metrics := style.Face.Metrics()
	height := metrics.Height.Ceil()
	width := font.MeasureString(style.Face, text).Ceil()

	x := int(math.Round(box.MinX))
	top := int(math.Round(box.MinY)) - height - 2
	if top < 0 {
		top = int(math.Round(box.MaxY)) + 2
	}
	tab := image.Rect(x, top, x+width+4, top+height+2).Intersect(dst.Bounds())
	if tab.Empty() {
		return
	}
	draw.Draw(dst, tab, image.NewUniform(bg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(style.LabelColor),
		Face: style.Face,
		Dot:  fixed.P(x+2, top+1+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
