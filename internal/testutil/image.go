// Package testutil provides synthetic label images for tests.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelLine is one text line drawn by CreateLabelImage with its pixel box.
type LabelLine struct {
	Text string
	Box  image.Rectangle
}

// CreateTestImage creates a solid image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// CreateLabelImage draws black text lines on a white background, left
// aligned with a margin, and returns the boxes the lines occupy.
func CreateLabelImage(width, height int, lines ...string) (*image.RGBA, []LabelLine) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	m := face.Metrics()
	lineHeight := m.Height.Ceil() + 6
	d := &font.Drawer{Dst: img, Src: image.Black, Face: face}

	out := make([]LabelLine, 0, len(lines))
	const margin = 10
	for i, text := range lines {
		top := margin + i*lineHeight
		d.Dot = fixed.P(margin, top+m.Ascent.Ceil())
		d.DrawString(text)
		w := font.MeasureString(face, text).Ceil()
		out = append(out, LabelLine{Text: text, Box: image.Rect(margin, top, margin+w, top+m.Height.Ceil())})
	}
	return img, out
}

// SaveImage encodes img at path, choosing the format from the extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
}

// LoadImage decodes the image at path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to open image file %s", path)
	return img
}
