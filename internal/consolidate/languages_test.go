package consolidate

import (
	"testing"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(x0, y0, x1, y1 float64, text, lang string, conf float64) ocr.TextLine {
	return ocr.TextLine{Box: ocr.RectQuad(x0, y0, x1, y1), Text: text, Language: lang, Confidence: conf, Members: 1}
}

func TestMergeLanguages_DisjointRegionsUnion(t *testing.T) {
	out := MergeLanguages(map[string][]ocr.TextLine{
		"en": {line(0, 0, 50, 20, "LOT", "en", 0.9)},
		"de": {line(0, 40, 50, 60, "MENGE", "de", 0.8)},
	}, []string{"en", "de"}, DefaultLanguageIoU)

	require.Len(t, out, 2)
	assert.Equal(t, "LOT", out[0].Text)
	assert.Equal(t, "MENGE", out[1].Text)
}

func TestMergeLanguages_SameRegionHigherConfidenceWins(t *testing.T) {
	out := MergeLanguages(map[string][]ocr.TextLine{
		"en": {line(0, 0, 50, 20, "Grune", "en", 0.6)},
		"de": {line(1, 0, 50, 20, "Grüne", "de", 0.9)},
	}, []string{"en", "de"}, DefaultLanguageIoU)

	require.Len(t, out, 1)
	assert.Equal(t, "Grüne", out[0].Text)
	assert.Equal(t, "de", out[0].Language)
}

func TestMergeLanguages_TieGoesToEarlierLanguage(t *testing.T) {
	out := MergeLanguages(map[string][]ocr.TextLine{
		"en": {line(0, 0, 50, 20, "A", "en", 0.8)},
		"de": {line(0, 0, 50, 20, "Ä", "de", 0.8)},
	}, []string{"de", "en"}, DefaultLanguageIoU)

	require.Len(t, out, 1)
	assert.Equal(t, "de", out[0].Language)
}

func TestMergeLanguages_ZeroIoUKeepsEverything(t *testing.T) {
	out := MergeLanguages(map[string][]ocr.TextLine{
		"en": {line(0, 0, 50, 20, "A", "en", 0.8)},
		"de": {line(0, 0, 50, 20, "A", "de", 0.9)},
	}, []string{"en", "de"}, 0)
	assert.Len(t, out, 2)
}

func TestMergeLanguages_Empty(t *testing.T) {
	out := MergeLanguages(nil, []string{"en"}, DefaultLanguageIoU)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
