package capture

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/testutil"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
)

func checkerboard(w, h, cell int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestNormalize(t *testing.T) {
	big := testutil.CreateTestImage(1920, 1200, color.White)
	out := Normalize(big, 960, 540)
	assert.Equal(t, 864, out.Bounds().Dx())
	assert.Equal(t, 540, out.Bounds().Dy())

	small := testutil.CreateTestImage(100, 50, color.White)
	assert.Equal(t, image.Rect(0, 0, 100, 50), Normalize(small, 960, 540).Bounds())
	assert.Equal(t, image.Rect(0, 0, 1920, 1200), Normalize(big, 0, 0).Bounds())
}

func TestSharpness(t *testing.T) {
	flat := testutil.CreateTestImage(64, 64, color.White)
	assert.InDelta(t, 0, Sharpness(flat), 1e-9)

	fine := Sharpness(checkerboard(64, 64, 1))
	coarse := Sharpness(checkerboard(64, 64, 8))
	assert.Greater(t, fine, coarse)
	assert.Greater(t, coarse, 0.0)

	assert.Zero(t, Sharpness(testutil.CreateTestImage(2, 2, color.Black)))
}

func TestSharpnessDropsWhenBlurred(t *testing.T) {
	label, _ := testutil.CreateLabelImage(240, 80, "LOT 24-117", "EXP 2024.12.31")
	crisp := Sharpness(label)
	blurred := Sharpness(imaging.Blur(label, 2))
	assert.Greater(t, crisp, 200.0)
	assert.Less(t, blurred, crisp/4)
}

func TestAssess(t *testing.T) {
	th := QualityThresholds{Definition: 200, Confidence: 0.8}
	line := func(c float64) ocr.TextLine { return ocr.TextLine{Text: "x", Confidence: c, Members: 1} }

	tests := []struct {
		name   string
		result ocr.RecognitionResult
		want   Verdict
	}{
		{"blurry", ocr.RecognitionResult{Sharpness: 50, Lines: []ocr.TextLine{line(0.9)}}, VerdictBlurry},
		{"blurry and empty", ocr.RecognitionResult{Sharpness: 50}, VerdictBlurry},
		{"empty", ocr.RecognitionResult{Sharpness: 500}, VerdictEmpty},
		{"low confidence", ocr.RecognitionResult{Sharpness: 500, Lines: []ocr.TextLine{line(0.9), line(0.6)}}, VerdictLowConfidence},
		{"ok", ocr.RecognitionResult{Sharpness: 500, Lines: []ocr.TextLine{line(0.9), line(0.85)}}, VerdictOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Assess(tt.result, th)
			assert.Equal(t, tt.want, v)
			assert.NotEmpty(t, v.Advice())
		})
	}
}
