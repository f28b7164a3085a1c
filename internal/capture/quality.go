package capture

import "github.com/MeKo-Tech/labelocr/internal/ocr"

// Verdict summarizes whether a capture is worth keeping.
type Verdict string

// Verdicts, in the order they are checked.
const (
	VerdictBlurry        Verdict = "blurry"
	VerdictEmpty         Verdict = "empty"
	VerdictLowConfidence Verdict = "low_confidence"
	VerdictOK            Verdict = "ok"
)

// QualityThresholds holds the limits used by Assess.
type QualityThresholds struct {
	Definition float64
	Confidence float64
}

// Assess grades a result: blurry when the frame sharpness is below the
// definition threshold, empty when no line survived, low_confidence when
// the mean line confidence is below the confidence threshold.
func Assess(r ocr.RecognitionResult, t QualityThresholds) Verdict {
	switch {
	case r.Sharpness < t.Definition:
		return VerdictBlurry
	case len(r.Lines) == 0:
		return VerdictEmpty
	case r.MeanConfidence() < t.Confidence:
		return VerdictLowConfidence
	default:
		return VerdictOK
	}
}

// Advice is the hint shown to the operator for a verdict.
func (v Verdict) Advice() string {
	switch v {
	case VerdictBlurry:
		return "image is blurry, hold the label still and retake"
	case VerdictEmpty:
		return "no text found, move the label into view and retake"
	case VerdictLowConfidence:
		return "recognition confidence is low, improve lighting and retake"
	default:
		return "capture looks good"
	}
}
