package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/capture"
	"github.com/MeKo-Tech/labelocr/internal/consolidate"
	"github.com/MeKo-Tech/labelocr/internal/engine/tesseract"
	"github.com/MeKo-Tech/labelocr/internal/export"
	"github.com/MeKo-Tech/labelocr/internal/export/sinks"
	"github.com/MeKo-Tech/labelocr/internal/models"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
)

// Config represents the complete configuration for the labelocr application.
// It is loaded once per run from configuration files, environment variables
// and command-line flags, and is never modified afterwards.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Camera      CameraConfig      `mapstructure:"camera" yaml:"camera" json:"camera"`
	OCR         OCRConfig         `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Consolidate ConsolidateConfig `mapstructure:"consolidate" yaml:"consolidate" json:"consolidate"`
	Quality     QualityConfig     `mapstructure:"quality" yaml:"quality" json:"quality"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output" json:"output"`
	Sinks       SinksConfig       `mapstructure:"sinks" yaml:"sinks" json:"sinks"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// CameraConfig contains frame acquisition settings.
type CameraConfig struct {
	Index       int    `mapstructure:"index" yaml:"index" json:"index"`
	AutoDetect  bool   `mapstructure:"auto_detect" yaml:"auto_detect" json:"auto_detect"`
	ScanMax     int    `mapstructure:"scan_max" yaml:"scan_max" json:"scan_max"`
	Width       int    `mapstructure:"width" yaml:"width" json:"width"`
	Height      int    `mapstructure:"height" yaml:"height" json:"height"`
	Preview     bool   `mapstructure:"preview" yaml:"preview" json:"preview"`
	WindowTitle string `mapstructure:"window_title" yaml:"window_title" json:"window_title"`
}

// OCRConfig contains recognition settings.
type OCRConfig struct {
	Languages           []string      `mapstructure:"languages" yaml:"languages" json:"languages"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	Engine              string        `mapstructure:"engine" yaml:"engine" json:"engine"`
	TessdataDir         string        `mapstructure:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
	PageSegMode         int           `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
	Level               string        `mapstructure:"level" yaml:"level" json:"level"`
	EagerLoad           bool          `mapstructure:"eager_load" yaml:"eager_load" json:"eager_load"`
	RecognizeTimeout    time.Duration `mapstructure:"recognize_timeout" yaml:"recognize_timeout" json:"recognize_timeout"`
}

// ConsolidateConfig contains the line merge constants.
type ConsolidateConfig struct {
	MinVerticalOverlap float64 `mapstructure:"min_vertical_overlap" yaml:"min_vertical_overlap" json:"min_vertical_overlap"`
	MaxHorizontalGap   float64 `mapstructure:"max_horizontal_gap" yaml:"max_horizontal_gap" json:"max_horizontal_gap"`
	JoinGap            float64 `mapstructure:"join_gap" yaml:"join_gap" json:"join_gap"`
	LanguageIoU        float64 `mapstructure:"language_iou" yaml:"language_iou" json:"language_iou"`
}

// QualityConfig contains the capture quality verdict settings.
type QualityConfig struct {
	DefinitionThreshold float64 `mapstructure:"definition_threshold" yaml:"definition_threshold" json:"definition_threshold"`
	// ConfidenceThreshold is the mean line confidence below which a frame is
	// reported as low_confidence. It is independent of ocr.confidence_threshold,
	// which already drops detections before lines are formed.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
}

// OutputConfig contains result persistence settings.
type OutputConfig struct {
	ImagesDir    string `mapstructure:"images_dir" yaml:"images_dir" json:"images_dir"`
	OriginDir    string `mapstructure:"origin_dir" yaml:"origin_dir" json:"origin_dir"`
	RecordsDir   string `mapstructure:"records_dir" yaml:"records_dir" json:"records_dir"`
	RecordFormat string `mapstructure:"record_format" yaml:"record_format" json:"record_format"`
	ImageFormat  string `mapstructure:"image_format" yaml:"image_format" json:"image_format"`
	Annotate     bool   `mapstructure:"annotate" yaml:"annotate" json:"annotate"`
	LabelColor   string `mapstructure:"label_color" yaml:"label_color" json:"label_color"`
}

// SinksConfig contains optional downstream publishers.
type SinksConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn" yaml:"postgres_dsn" json:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table" yaml:"postgres_table" json:"postgres_table"`
	RedisURL      string `mapstructure:"redis_url" yaml:"redis_url" json:"redis_url"`
	RedisChannel  string `mapstructure:"redis_channel" yaml:"redis_channel" json:"redis_channel"`
}

// MetricsConfig contains the metrics textfile destination.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile" json:"textfile"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	params := consolidate.DefaultParams()
	tess := tesseract.DefaultOptions()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Camera: CameraConfig{
			Index:       0,
			AutoDetect:  true,
			ScanMax:     10,
			Width:       960,
			Height:      540,
			Preview:     true,
			WindowTitle: "labelocr",
		},
		OCR: OCRConfig{
			Languages:           []string{"en"},
			ConfidenceThreshold: 0.5,
			Engine:              "tesseract",
			PageSegMode:         tess.PageSegMode,
			Level:               tess.Level,
			EagerLoad:           false,
		},
		Consolidate: ConsolidateConfig{
			MinVerticalOverlap: params.MinVerticalOverlap,
			MaxHorizontalGap:   params.MaxHorizontalGap,
			JoinGap:            params.JoinGap,
			LanguageIoU:        consolidate.DefaultLanguageIoU,
		},
		Quality: QualityConfig{
			DefinitionThreshold: 200,
			ConfidenceThreshold: 0.7,
		},
		Output: OutputConfig{
			ImagesDir:    "outputs/images",
			OriginDir:    "outputs/images_origin",
			RecordsDir:   "outputs/json",
			RecordFormat: export.FormatJSON,
			ImageFormat:  export.ImagePNG,
			Annotate:     true,
			LabelColor:   "#FFFFFF",
		},
		Sinks: SinksConfig{
			PostgresTable: "recognition_results",
			RedisChannel:  "labelocr:results",
		},
	}
}

// Validate validates the configuration. Every failure is a ConfigInvalid
// error naming the offending key.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return ocrerr.New(ocrerr.ConfigInvalid, "validate", err)
	}
	return nil
}

func (c *Config) validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Camera.Index < 0 {
		return fmt.Errorf("invalid camera index: %d (must be >= 0)", c.Camera.Index)
	}
	if c.Camera.AutoDetect && c.Camera.ScanMax < 0 {
		return fmt.Errorf("invalid camera scan_max: %d (must be >= 0)", c.Camera.ScanMax)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid frame size: %dx%d (must be positive)", c.Camera.Width, c.Camera.Height)
	}

	if err := c.validateLanguages(); err != nil {
		return err
	}
	if err := validateThreshold(c.OCR.ConfidenceThreshold, "ocr.confidence_threshold"); err != nil {
		return err
	}
	if c.OCR.Engine != "tesseract" {
		return fmt.Errorf("invalid ocr engine: %s (must be tesseract)", c.OCR.Engine)
	}
	validLevels := []string{tesseract.LevelWord, tesseract.LevelTextline}
	if !contains(validLevels, c.OCR.Level) {
		return fmt.Errorf("invalid ocr level: %s (must be one of: %s)", c.OCR.Level, strings.Join(validLevels, ", "))
	}
	if c.OCR.PageSegMode < 0 || c.OCR.PageSegMode > 13 {
		return fmt.Errorf("invalid page_seg_mode: %d (must be between 0 and 13)", c.OCR.PageSegMode)
	}
	if c.OCR.RecognizeTimeout < 0 {
		return fmt.Errorf("invalid recognize_timeout: %s (must not be negative)", c.OCR.RecognizeTimeout)
	}

	if err := validateThreshold(c.Consolidate.MinVerticalOverlap, "consolidate.min_vertical_overlap"); err != nil {
		return err
	}
	if err := validateThreshold(c.Consolidate.LanguageIoU, "consolidate.language_iou"); err != nil {
		return err
	}
	if err := validateNonNegative(c.Consolidate.MaxHorizontalGap, "consolidate.max_horizontal_gap"); err != nil {
		return err
	}
	if err := validateNonNegative(c.Consolidate.JoinGap, "consolidate.join_gap"); err != nil {
		return err
	}
	if err := validateNonNegative(c.Quality.DefinitionThreshold, "quality.definition_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Quality.ConfidenceThreshold, "quality.confidence_threshold"); err != nil {
		return err
	}

	if c.Output.RecordsDir == "" {
		return errors.New("output.records_dir must be set")
	}
	if c.Output.Annotate && c.Output.ImagesDir == "" {
		return errors.New("output.images_dir must be set when annotation is enabled")
	}
	if c.Output.Annotate && c.Output.OriginDir != "" && filepath.Clean(c.Output.OriginDir) == filepath.Clean(c.Output.ImagesDir) {
		return errors.New("output.origin_dir must differ from output.images_dir")
	}
	validRecordFormats := []string{export.FormatJSON, export.FormatYAML}
	if !contains(validRecordFormats, c.Output.RecordFormat) {
		return fmt.Errorf("invalid record format: %s (must be one of: %s)", c.Output.RecordFormat, strings.Join(validRecordFormats, ", "))
	}
	validImageFormats := []string{export.ImagePNG, export.ImageJPEG}
	if !contains(validImageFormats, c.Output.ImageFormat) {
		return fmt.Errorf("invalid image format: %s (must be one of: %s)", c.Output.ImageFormat, strings.Join(validImageFormats, ", "))
	}
	if _, err := export.ParseColor(c.Output.LabelColor); err != nil {
		return fmt.Errorf("invalid output.label_color: %w", err)
	}

	if c.Sinks.PostgresDSN != "" && c.Sinks.PostgresTable == "" {
		return errors.New("sinks.postgres_table must be set when postgres_dsn is set")
	}
	if c.Sinks.RedisURL != "" && c.Sinks.RedisChannel == "" {
		return errors.New("sinks.redis_channel must be set when redis_url is set")
	}
	return nil
}

func (c *Config) validateLanguages() error {
	if len(c.OCR.Languages) == 0 {
		return errors.New("ocr.languages must not be empty")
	}
	seen := make(map[string]string, len(c.OCR.Languages))
	for _, lang := range c.OCR.Languages {
		info, ok := models.LookupLanguage(lang)
		if !ok {
			return fmt.Errorf("unknown language code: %q", lang)
		}
		if prev, dup := seen[info.Code]; dup {
			return fmt.Errorf("duplicate language code: %q (same language as %q)", lang, prev)
		}
		seen[info.Code] = lang
	}
	return nil
}

// ConsolidateParams converts the merge settings.
func (c *Config) ConsolidateParams() consolidate.Params {
	return consolidate.Params{
		MinVerticalOverlap: c.Consolidate.MinVerticalOverlap,
		MaxHorizontalGap:   c.Consolidate.MaxHorizontalGap,
		JoinGap:            c.Consolidate.JoinGap,
	}
}

// TesseractOptions converts the engine settings.
func (c *Config) TesseractOptions() tesseract.Options {
	opts := tesseract.DefaultOptions()
	opts.TessdataDir = c.OCR.TessdataDir
	opts.PageSegMode = c.OCR.PageSegMode
	opts.Level = c.OCR.Level
	return opts
}

// ExportOptions converts the output settings.
func (c *Config) ExportOptions() export.Options {
	return export.Options{
		ImagesDir:    c.Output.ImagesDir,
		OriginDir:    c.Output.OriginDir,
		RecordsDir:   c.Output.RecordsDir,
		RecordFormat: c.Output.RecordFormat,
		ImageFormat:  c.Output.ImageFormat,
		Annotate:     c.Output.Annotate,
		LabelColor:   c.Output.LabelColor,
	}
}

// LoopSettings converts the per-cycle processing settings.
func (c *Config) LoopSettings() capture.Settings {
	return capture.Settings{
		Languages:   append([]string(nil), c.OCR.Languages...),
		Threshold:   c.OCR.ConfidenceThreshold,
		Params:      c.ConsolidateParams(),
		LanguageIoU: c.Consolidate.LanguageIoU,
		Width:       c.Camera.Width,
		Height:      c.Camera.Height,
		Quality: capture.QualityThresholds{
			Definition: c.Quality.DefinitionThreshold,
			Confidence: c.Quality.ConfidenceThreshold,
		},
	}
}

// SinkConfig converts the downstream sink settings.
func (c *Config) SinkConfig() sinks.Config {
	return sinks.Config{
		PostgresDSN:   c.Sinks.PostgresDSN,
		PostgresTable: c.Sinks.PostgresTable,
		RedisURL:      c.Sinks.RedisURL,
		RedisChannel:  c.Sinks.RedisChannel,
	}
}

// validateThreshold checks that a value is within [0.0, 1.0]. NaN fails.
func validateThreshold(value float64, name string) error {
	if math.IsNaN(value) || value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// validateNonNegative checks that a value is finite and >= 0.
func validateNonNegative(value float64, name string) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("invalid %s: %f (must be a finite value >= 0)", name, value)
	}
	return nil
}

// contains checks if a slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
