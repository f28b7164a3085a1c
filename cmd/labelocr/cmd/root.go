package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/labelocr/internal/config"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/MeKo-Tech/labelocr/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// annotationNoConfig marks commands that must run even when the
// configuration is invalid.
const annotationNoConfig = "labelocr/no-config"

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Error from the last configuration load.
	configErr error
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "labelocr",
	Short: "Capture labels and recognize their text",
	Long: `labelocr captures a frame from a camera, a file or a remote frame stream,
recognizes the text on it with Tesseract, merges the detected words into
lines and stores the result as a record plus an annotated image.

This tool provides:
- Live camera capture with a sharpness preview (SPACE captures, q quits)
- Image and PDF input files
- A websocket frame stream client
- Multi-language recognition with one engine context per language
- JSON or YAML records, optional Postgres and Redis publishing

Examples:
  labelocr camera --languages en,ko
  labelocr file label.jpg --threshold 0.6
  labelocr stream ws://localhost:8080/frames`,
	SilenceUsage: true,
	Annotations:  map[string]string{annotationNoConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.PersistentFlags().GetBool("version")
		if v {
			printVersion(cmd)
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", ocrerr.LogAttrs(err)...)
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/labelocr, /etc/labelocr)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.StringSlice("languages", []string{"en"}, "recognition languages in priority order (e.g. en,ko)")
	pf.Float64("threshold", 0.5, "minimum line confidence between 0 and 1")
	pf.String("tessdata-dir", "", "directory containing Tesseract language data (also LABELOCR_TESSDATA_DIR)")
	pf.String("records-dir", "outputs/json", "directory for result records")
	pf.String("images-dir", "outputs/images", "directory for annotated images")
	pf.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.Bool("version", false, "print version information and exit")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("ocr.languages", pf.Lookup("languages"))
	_ = viper.BindPFlag("ocr.confidence_threshold", pf.Lookup("threshold"))
	_ = viper.BindPFlag("ocr.tessdata_dir", pf.Lookup("tessdata-dir"))
	_ = viper.BindPFlag("output.records_dir", pf.Lookup("records-dir"))
	_ = viper.BindPFlag("output.images_dir", pf.Lookup("images-dir"))
	_ = viper.BindPFlag("metrics.textfile", pf.Lookup("metrics-file"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if globalConfig == nil && configErr == nil {
			initConfig()
		}
		if configErr != nil && cmd.Annotations[annotationNoConfig] == "" {
			return configErr
		}

		level := slog.LevelInfo
		if globalConfig != nil {
			level = logLevel(globalConfig)
		}
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)
		return nil
	}
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	configLoader = config.NewLoader()
	if cfgFile != "" {
		globalConfig, configErr = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, configErr = configLoader.Load()
	}
}

// GetConfig returns the global configuration, loading it on first use.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil && configErr == nil {
		initConfig()
	}
	return globalConfig, configErr
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}

func printVersion(cmd *cobra.Command) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
}
