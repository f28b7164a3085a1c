package capture

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// Normalize fits img into width x height keeping its aspect ratio. Images
// that already fit are copied unchanged. A non-positive bound disables
// resizing.
func Normalize(img image.Image, width, height int) *image.NRGBA {
	if width <= 0 || height <= 0 {
		return imaging.Clone(img)
	}
	return imaging.Fit(img, width, height, imaging.Lanczos)
}

// Sharpness is the variance of the 4-neighbour Laplacian of the grayscale
// image. Blurry frames score low; frames smaller than 3x3 score 0.
func Sharpness(img image.Image) float64 {
	gray := effect.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	px := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x])
	}

	var sum, sumSq float64
	n := float64((w - 2) * (h - 2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1) - 4*px(x, y)
			sum += lap
			sumSq += lap * lap
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}
