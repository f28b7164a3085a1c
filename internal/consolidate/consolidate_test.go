package consolidate

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(x0, y0, x1, y1 float64, text string, conf float64) ocr.RawDetection {
	return ocr.RawDetection{Box: ocr.RectQuad(x0, y0, x1, y1), Text: text, Confidence: conf, Language: "en"}
}

func TestConsolidate_HelloWorld(t *testing.T) {
	p := DefaultParams()
	p.MaxHorizontalGap = 10

	lines := Consolidate([]ocr.RawDetection{
		det(0, 0, 50, 20, "HELLO", 0.9),
		det(55, 0, 100, 20, "WORLD", 0.85),
	}, 0.5, p)

	require.Len(t, lines, 1)
	assert.Equal(t, "HELLO WORLD", lines[0].Text)
	assert.InDelta(t, 0.85, lines[0].Confidence, 1e-12)
	assert.Equal(t, ocr.RectQuad(0, 0, 100, 20), lines[0].Box)
	assert.Equal(t, 2, lines[0].Members)
	assert.Equal(t, "en", lines[0].Language)
}

func TestConsolidate_DiscardsBelowThreshold(t *testing.T) {
	lines := Consolidate([]ocr.RawDetection{
		det(0, 0, 40, 20, "KEEP", 0.5),
		det(0, 100, 40, 120, "DROP", 0.3),
	}, 0.5, DefaultParams())

	require.Len(t, lines, 1)
	assert.Equal(t, "KEEP", lines[0].Text)
	for _, l := range lines {
		assert.NotContains(t, l.Text, "DROP")
	}
}

func TestConsolidate_EmptyInputs(t *testing.T) {
	out := Consolidate(nil, 0.5, DefaultParams())
	assert.NotNil(t, out)
	assert.Empty(t, out)

	out = Consolidate([]ocr.RawDetection{det(0, 0, 10, 10, "x", 0.1)}, 0.5, DefaultParams())
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestConsolidate_DropsBlankAndNaN(t *testing.T) {
	out := Consolidate([]ocr.RawDetection{
		det(0, 0, 10, 10, "   ", 0.9),
		det(0, 50, 10, 60, "A", math.NaN()),
		det(0, 100, 10, 110, "B", 0.9),
	}, 0, DefaultParams())
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Text)
}

func TestConsolidate_TransitiveMerge(t *testing.T) {
	p := Params{MinVerticalOverlap: 0.5, MaxHorizontalGap: 10, JoinGap: 2}
	// A and C are 50px apart, but B bridges them.
	lines := Consolidate([]ocr.RawDetection{
		det(0, 0, 20, 20, "A", 0.9),
		det(60, 0, 80, 20, "C", 0.7),
		det(28, 0, 52, 20, "B", 0.8),
	}, 0, p)

	require.Len(t, lines, 1)
	assert.Equal(t, "A B C", lines[0].Text)
	assert.InDelta(t, 0.7, lines[0].Confidence, 1e-12)
}

func TestConsolidate_JoinGapSuppressesSpace(t *testing.T) {
	p := Params{MinVerticalOverlap: 0.5, MaxHorizontalGap: 10, JoinGap: 3}
	lines := Consolidate([]ocr.RawDetection{
		det(0, 0, 20, 20, "AB", 0.9),
		det(21, 0, 40, 20, "CD", 0.9),
		det(50, 0, 70, 20, "EF", 0.9),
	}, 0, p)

	require.Len(t, lines, 1)
	assert.Equal(t, "ABCD EF", lines[0].Text)
}

func TestConsolidate_VerticalOverlapRequired(t *testing.T) {
	p := Params{MinVerticalOverlap: 0.5, MaxHorizontalGap: 50, JoinGap: 2}
	lines := Consolidate([]ocr.RawDetection{
		det(0, 0, 20, 20, "TOP", 0.9),
		det(25, 15, 45, 35, "LOW", 0.9),
	}, 0, p)

	require.Len(t, lines, 2)
	assert.Equal(t, "TOP", lines[0].Text)
	assert.Equal(t, "LOW", lines[1].Text)
}

func TestConsolidate_LanguagesNotMixed(t *testing.T) {
	a := det(0, 0, 20, 20, "A", 0.9)
	b := det(22, 0, 40, 20, "B", 0.9)
	b.Language = "de"
	lines := Consolidate([]ocr.RawDetection{a, b}, 0, DefaultParams())
	assert.Len(t, lines, 2)
}

func TestConsolidate_ExactDuplicatesRemoved(t *testing.T) {
	lines := Consolidate([]ocr.RawDetection{
		det(0, 0, 20, 20, "LOT", 0.7),
		det(0, 0, 20, 20, "LOT", 0.9),
		det(0, 100, 20, 120, "LOT", 0.8),
	}, 0, DefaultParams())

	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Members)
	assert.InDelta(t, 0.9, lines[0].Confidence, 1e-12)
	assert.InDelta(t, 0.8, lines[1].Confidence, 1e-12)
}

func TestConsolidate_ReadingOrder(t *testing.T) {
	lines := Consolidate([]ocr.RawDetection{
		det(200, 100, 260, 120, "third", 0.9),
		det(0, 0, 60, 20, "first", 0.9),
		det(0, 100, 60, 120, "second", 0.9),
	}, 0, DefaultParams())

	require.Len(t, lines, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		ocr.RecognitionResult{Lines: lines}.Texts())
}

func TestConsolidate_Idempotent(t *testing.T) {
	p := Params{MinVerticalOverlap: 0.5, MaxHorizontalGap: 10, JoinGap: 2}
	first := Consolidate([]ocr.RawDetection{
		det(0, 0, 20, 20, "A", 0.9),
		det(25, 5, 45, 25, "B", 0.8),
		det(50, 10, 70, 30, "C", 0.7),
		det(0, 80, 20, 100, "D", 0.6),
	}, 0.5, p)
	second := Consolidate(AsDetections(first), 0.5, p)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Box, second[i].Box)
		assert.InDelta(t, first[i].Confidence, second[i].Confidence, 1e-12)
	}
}

func TestSortReadingOrder_TieBreakOnHorizontalStart(t *testing.T) {
	lines := []ocr.TextLine{
		{Box: ocr.RectQuad(50, 0, 60, 10), Text: "b"},
		{Box: ocr.RectQuad(0, 0, 10, 10), Text: "a"},
	}
	SortReadingOrder(lines)
	assert.Equal(t, "a", lines[0].Text)
}
