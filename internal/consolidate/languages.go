package consolidate

import "github.com/MeKo-Tech/labelocr/internal/ocr"

// DefaultLanguageIoU is the envelope overlap above which lines recognized
// under different languages are treated as the same region.
const DefaultLanguageIoU = 0.5

// MergeLanguages unions per-language results into one reading-ordered list.
//
// Languages are visited in order. A line whose envelope overlaps an already
// accepted line by at least iou replaces it only when strictly more
// confident, so ties go to the earlier language. With iou <= 0 every line is
// kept.
func MergeLanguages(byLang map[string][]ocr.TextLine, order []string, iou float64) []ocr.TextLine {
	accepted := make([]ocr.TextLine, 0)
	for _, lang := range order {
		for _, line := range byLang[lang] {
			if iou <= 0 {
				accepted = append(accepted, line)
				continue
			}
			accepted = admit(accepted, line, iou)
		}
	}
	SortReadingOrder(accepted)
	return accepted
}

func admit(accepted []ocr.TextLine, line ocr.TextLine, iou float64) []ocr.TextLine {
	r := line.Box.Bounds()
	var overlapping []int
	for i, a := range accepted {
		if a.Box.Bounds().IoU(r) >= iou {
			overlapping = append(overlapping, i)
		}
	}
	if len(overlapping) == 0 {
		return append(accepted, line)
	}
	for _, i := range overlapping {
		if line.Confidence <= accepted[i].Confidence {
			return accepted
		}
	}

	out := make([]ocr.TextLine, 0, len(accepted))
	skip := make(map[int]bool, len(overlapping))
	for _, i := range overlapping {
		skip[i] = true
	}
	for i, a := range accepted {
		if !skip[i] {
			out = append(out, a)
		}
	}
	return append(out, line)
}
