package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "labelocr"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LABELOCR"

	// DotEnvFile is loaded from the working directory before the environment
	// is consulted. Variables already set are not overridden.
	DotEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the CLI are visible.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewIsolatedLoader creates a loader with its own viper instance.
func NewIsolatedLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load loads configuration from the default search paths, .env, environment
// variables and defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()

	if err := l.prepare(); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env vars still apply.
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, invalid("read", fmt.Errorf("error reading config file: %w", err))
		}
	}

	return l.decode(true)
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, invalid("read", fmt.Errorf("config file does not exist: %s", configFile))
	}

	l.v.SetConfigFile(configFile)
	if err := l.prepare(); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, invalid("read", fmt.Errorf("error reading config file %s: %w", configFile, err))
	}

	return l.decode(true)
}

// LoadWithoutValidation is Load without the final validation step, used by
// `config show` to display broken configurations.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	if err := l.prepare(); err != nil {
		return nil, err
	}
	if err := l.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, invalid("read", fmt.Errorf("error reading config file: %w", err))
		}
	}
	return l.decode(false)
}

func (l *Loader) prepare() error {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return invalid("dotenv", err)
	}
	l.setupEnvironmentVariables()
	l.setDefaults()
	return nil
}

func (l *Loader) decode(validate bool) (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, invalid("unmarshal", fmt.Errorf("error unmarshaling config: %w", err))
	}
	// Env vars arrive as a single comma-separated string.
	config.OCR.Languages = splitList(config.OCR.Languages)

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// loadDotEnv loads path if it exists.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func invalid(op string, err error) error {
	return ocrerr.New(ocrerr.ConfigInvalid, op, err)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options. Every key
// needs a default for AutomaticEnv to pick up its variable on Unmarshal.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("camera.index", defaults.Camera.Index)
	l.v.SetDefault("camera.auto_detect", defaults.Camera.AutoDetect)
	l.v.SetDefault("camera.scan_max", defaults.Camera.ScanMax)
	l.v.SetDefault("camera.width", defaults.Camera.Width)
	l.v.SetDefault("camera.height", defaults.Camera.Height)
	l.v.SetDefault("camera.preview", defaults.Camera.Preview)
	l.v.SetDefault("camera.window_title", defaults.Camera.WindowTitle)

	l.v.SetDefault("ocr.languages", defaults.OCR.Languages)
	l.v.SetDefault("ocr.confidence_threshold", defaults.OCR.ConfidenceThreshold)
	l.v.SetDefault("ocr.engine", defaults.OCR.Engine)
	l.v.SetDefault("ocr.tessdata_dir", defaults.OCR.TessdataDir)
	l.v.SetDefault("ocr.page_seg_mode", defaults.OCR.PageSegMode)
	l.v.SetDefault("ocr.level", defaults.OCR.Level)
	l.v.SetDefault("ocr.eager_load", defaults.OCR.EagerLoad)
	l.v.SetDefault("ocr.recognize_timeout", defaults.OCR.RecognizeTimeout)

	l.v.SetDefault("consolidate.min_vertical_overlap", defaults.Consolidate.MinVerticalOverlap)
	l.v.SetDefault("consolidate.max_horizontal_gap", defaults.Consolidate.MaxHorizontalGap)
	l.v.SetDefault("consolidate.join_gap", defaults.Consolidate.JoinGap)
	l.v.SetDefault("consolidate.language_iou", defaults.Consolidate.LanguageIoU)

	l.v.SetDefault("quality.definition_threshold", defaults.Quality.DefinitionThreshold)
	l.v.SetDefault("quality.confidence_threshold", defaults.Quality.ConfidenceThreshold)

	l.v.SetDefault("output.images_dir", defaults.Output.ImagesDir)
	l.v.SetDefault("output.origin_dir", defaults.Output.OriginDir)
	l.v.SetDefault("output.records_dir", defaults.Output.RecordsDir)
	l.v.SetDefault("output.record_format", defaults.Output.RecordFormat)
	l.v.SetDefault("output.image_format", defaults.Output.ImageFormat)
	l.v.SetDefault("output.annotate", defaults.Output.Annotate)
	l.v.SetDefault("output.label_color", defaults.Output.LabelColor)

	l.v.SetDefault("sinks.postgres_dsn", defaults.Sinks.PostgresDSN)
	l.v.SetDefault("sinks.postgres_table", defaults.Sinks.PostgresTable)
	l.v.SetDefault("sinks.redis_url", defaults.Sinks.RedisURL)
	l.v.SetDefault("sinks.redis_channel", defaults.Sinks.RedisChannel)

	l.v.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// GenerateDefaultConfigFile writes the default configuration as YAML.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewIsolatedLoader()
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.v.WriteConfigAs(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, "/etc/"+ConfigFileName)

	return paths
}
