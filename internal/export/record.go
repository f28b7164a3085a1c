package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"gopkg.in/yaml.v3"
)

// Record formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Record is the persisted form of a RecognitionResult. Field names are part
// of the downstream contract and must not change.
type Record struct {
	ID             string       `json:"id" yaml:"id"`
	Sequence       int64        `json:"sequence" yaml:"sequence"`
	CapturedAt     time.Time    `json:"captured_at" yaml:"captured_at"`
	Width          int          `json:"width" yaml:"width"`
	Height         int          `json:"height" yaml:"height"`
	Languages      []string     `json:"languages" yaml:"languages"`
	Sharpness      float64      `json:"sharpness" yaml:"sharpness"`
	MeanConfidence float64      `json:"mean_confidence" yaml:"mean_confidence"`
	Lines          []RecordLine `json:"lines" yaml:"lines"`
}

// RecordLine is one persisted text line.
type RecordLine struct {
	Text       string       `json:"text" yaml:"text"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
	Language   string       `json:"language" yaml:"language"`
	Box        [4]ocr.Point `json:"box" yaml:"box"`
}

// NewRecord converts a result into its persisted form.
func NewRecord(r ocr.RecognitionResult) Record {
	lines := make([]RecordLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = RecordLine{Text: l.Text, Confidence: l.Confidence, Language: l.Language, Box: l.Box}
	}
	langs := r.Languages
	if langs == nil {
		langs = []string{}
	}
	return Record{
		ID:             r.ID,
		Sequence:       r.Sequence,
		CapturedAt:     r.CapturedAt,
		Width:          r.Width,
		Height:         r.Height,
		Languages:      langs,
		Sharpness:      r.Sharpness,
		MeanConfidence: r.MeanConfidence(),
		Lines:          lines,
	}
}

// Result converts the record back into a RecognitionResult. Member counts
// are not persisted and come back as 1.
func (rec Record) Result() ocr.RecognitionResult {
	lines := make([]ocr.TextLine, len(rec.Lines))
	for i, l := range rec.Lines {
		lines[i] = ocr.TextLine{Box: l.Box, Text: l.Text, Confidence: l.Confidence, Language: l.Language, Members: 1}
	}
	return ocr.RecognitionResult{
		ID:         rec.ID,
		Sequence:   rec.Sequence,
		CapturedAt: rec.CapturedAt,
		Width:      rec.Width,
		Height:     rec.Height,
		Languages:  rec.Languages,
		Sharpness:  rec.Sharpness,
		Lines:      lines,
	}
}

// Marshal encodes the record in the given format.
func (rec Record) Marshal(format string) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(rec)
	default:
		return nil, fmt.Errorf("unsupported record format: %s", format)
	}
}

// UnmarshalRecord decodes a record in the given format.
func UnmarshalRecord(data []byte, format string) (Record, error) {
	var rec Record
	var err error
	switch format {
	case FormatJSON, "":
		err = json.Unmarshal(data, &rec)
	case FormatYAML:
		err = yaml.Unmarshal(data, &rec)
	default:
		err = fmt.Errorf("unsupported record format: %s", format)
	}
	return rec, err
}

// ReadRecord loads a record file, choosing the format from its extension.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading a record path chosen by the user
	if err != nil {
		return Record{}, err
	}
	return UnmarshalRecord(data, formatFromExt(path))
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func recordExt(format string) string {
	if format == FormatYAML {
		return ".yaml"
	}
	return ".json"
}
