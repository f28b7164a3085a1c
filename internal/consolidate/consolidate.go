// Package consolidate turns raw engine detections into text lines.
//
// The pipeline is filter, dedupe, merge, order and sort. It is pure and
// deterministic: the same detections and parameters always produce the same
// lines in the same order, and running it again on its own output (each line
// treated as one detection) changes nothing.
package consolidate

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
)

// Params are the geometric merge constants.
type Params struct {
	// MinVerticalOverlap is the fraction of the shorter box's height that two
	// boxes must share vertically to be on the same line.
	MinVerticalOverlap float64
	// MaxHorizontalGap is the largest horizontal gap, in pixels, between two
	// boxes on the same line.
	MaxHorizontalGap float64
	// JoinGap: members closer than this are concatenated without a space.
	JoinGap float64
}

// DefaultParams returns the merge constants used when nothing is configured.
func DefaultParams() Params {
	return Params{
		MinVerticalOverlap: 0.5,
		MaxHorizontalGap:   30,
		JoinGap:            2,
	}
}

type item struct {
	det  ocr.RawDetection
	rect ocr.Rect
}

// Consolidate filters detections below threshold, removes exact duplicates,
// merges the rest into lines and returns them in reading order. Detections
// are only merged with detections of the same language. The result is never
// nil.
func Consolidate(dets []ocr.RawDetection, threshold float64, p Params) []ocr.TextLine {
	items := dedupe(filter(dets, threshold))
	if len(items) == 0 {
		return []ocr.TextLine{}
	}

	groups := group(items, p)
	lines := make([]ocr.TextLine, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, buildLine(g, p))
	}
	SortReadingOrder(lines)
	return lines
}

func filter(dets []ocr.RawDetection, threshold float64) []item {
	out := make([]item, 0, len(dets))
	for _, d := range dets {
		if math.IsNaN(d.Confidence) || d.Confidence < threshold {
			continue
		}
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		out = append(out, item{det: d, rect: d.Box.Bounds()})
	}
	return out
}

type dupKey struct {
	box  ocr.Quad
	text string
	lang string
}

// dedupe drops exact box+text+language repeats, keeping the most confident
// copy at the position of the first occurrence.
func dedupe(items []item) []item {
	seen := make(map[dupKey]int, len(items))
	out := make([]item, 0, len(items))
	for _, it := range items {
		k := dupKey{box: it.det.Box, text: it.det.Text, lang: it.det.Language}
		if i, ok := seen[k]; ok {
			if it.det.Confidence > out[i].det.Confidence {
				out[i] = it
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, it)
	}
	return out
}

// sameLine is the pairwise merge rule.
func sameLine(a, b ocr.Rect, p Params) bool {
	minH := math.Min(a.Height(), b.Height())
	if minH <= 0 {
		return false
	}
	overlap := math.Min(a.MaxY, b.MaxY) - math.Max(a.MinY, b.MinY)
	if overlap/minH < p.MinVerticalOverlap {
		return false
	}
	return horizontalGap(a, b) <= p.MaxHorizontalGap
}

// horizontalGap is negative when the boxes overlap horizontally.
func horizontalGap(a, b ocr.Rect) float64 {
	return math.Max(a.MinX, b.MinX) - math.Min(a.MaxX, b.MaxX)
}

// group partitions items into lines. Pairwise matches are joined
// transitively, then groups whose envelopes satisfy the rule are joined until
// nothing changes, so no two resulting lines could merge with each other.
func group(items []item, p Params) [][]item {
	uf := newUnionFind(len(items))
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if items[i].det.Language == items[j].det.Language && sameLine(items[i].rect, items[j].rect, p) {
				uf.union(i, j)
			}
		}
	}

	for {
		roots, envelopes := uf.envelopes(items)
		merged := false
		for a := 0; a < len(roots) && !merged; a++ {
			for b := a + 1; b < len(roots); b++ {
				la := items[roots[a]].det.Language
				lb := items[roots[b]].det.Language
				if la == lb && sameLine(envelopes[a], envelopes[b], p) {
					uf.union(roots[a], roots[b])
					merged = true
					break
				}
			}
		}
		if !merged {
			break
		}
	}

	byRoot := make(map[int][]item)
	order := make([]int, 0)
	for i, it := range items {
		r := uf.find(i)
		if _, ok := byRoot[r]; !ok {
			order = append(order, r)
		}
		byRoot[r] = append(byRoot[r], it)
	}
	out := make([][]item, 0, len(order))
	for _, r := range order {
		out = append(out, byRoot[r])
	}
	return out
}

func buildLine(members []item, p Params) ocr.TextLine {
	slices.SortStableFunc(members, func(a, b item) int {
		return cmp.Or(
			cmp.Compare(a.rect.MinX, b.rect.MinX),
			cmp.Compare(a.rect.MinY, b.rect.MinY),
			strings.Compare(a.det.Text, b.det.Text),
		)
	})

	var sb strings.Builder
	env := members[0].rect
	conf := members[0].det.Confidence
	sb.WriteString(members[0].det.Text)
	for i := 1; i < len(members); i++ {
		m := members[i]
		if m.rect.MinX-members[i-1].rect.MaxX >= p.JoinGap {
			sb.WriteByte(' ')
		}
		sb.WriteString(m.det.Text)
		env = env.Union(m.rect)
		conf = math.Min(conf, m.det.Confidence)
	}

	return ocr.TextLine{
		Box:        env.Quad(),
		Text:       sb.String(),
		Confidence: conf,
		Language:   members[0].det.Language,
		Members:    len(members),
	}
}

// SortReadingOrder sorts lines top-to-bottom by vertical center, then
// left-to-right by horizontal start. Remaining ties are broken by text,
// confidence and language so the order is total.
func SortReadingOrder(lines []ocr.TextLine) {
	slices.SortStableFunc(lines, compareReading)
}

func compareReading(a, b ocr.TextLine) int {
	ra, rb := a.Box.Bounds(), b.Box.Bounds()
	return cmp.Or(
		cmp.Compare(ra.CenterY(), rb.CenterY()),
		cmp.Compare(ra.MinX, rb.MinX),
		strings.Compare(a.Text, b.Text),
		cmp.Compare(a.Confidence, b.Confidence),
		strings.Compare(a.Language, b.Language),
	)
}

// AsDetections converts lines back into single detections.
func AsDetections(lines []ocr.TextLine) []ocr.RawDetection {
	out := make([]ocr.RawDetection, len(lines))
	for i, l := range lines {
		out[i] = ocr.RawDetection{Box: l.Box, Text: l.Text, Confidence: l.Confidence, Language: l.Language}
	}
	return out
}
