package cmd

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/labelocr/internal/camera"
	"github.com/MeKo-Tech/labelocr/internal/capture"
	"github.com/MeKo-Tech/labelocr/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cameraCmd represents the camera command.
var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Capture labels from a live camera",
	Long: `Open a camera and recognize the frame captured on each trigger.

With the preview window, SPACE captures the current frame and q quits. The
overlay shows the live sharpness score against the definition threshold.
Without the preview (--preview=false), an empty line on stdin captures and
"q" quits.

Examples:
  labelocr camera
  labelocr camera --device 1 --languages en,ko
  labelocr camera --preview=false < triggers.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		explicit := cmd.Flags().Changed("device")
		return runCapture(cmd, func(ctx context.Context, cfg *config.Config) (capture.Source, error) {
			opts := cameraOptions(cfg)
			if explicit {
				opts.AutoDetect = false
			}
			if !opts.Preview {
				opts.Triggers = stdinTriggers(ctx, in)
			}
			return camera.Open(opts, slog.Default())
		})
	},
}

func init() {
	rootCmd.AddCommand(cameraCmd)

	f := cameraCmd.Flags()
	f.Int("device", 0, "camera device index (disables auto-detection)")
	f.Bool("auto-detect", true, "use the first working camera")
	f.Bool("preview", true, "show the preview window")

	_ = viper.BindPFlag("camera.index", f.Lookup("device"))
	_ = viper.BindPFlag("camera.auto_detect", f.Lookup("auto-detect"))
	_ = viper.BindPFlag("camera.preview", f.Lookup("preview"))
}

func cameraOptions(cfg *config.Config) camera.Options {
	return camera.Options{
		Index:               cfg.Camera.Index,
		AutoDetect:          cfg.Camera.AutoDetect,
		ScanMax:             cfg.Camera.ScanMax,
		Width:               cfg.Camera.Width,
		Height:              cfg.Camera.Height,
		Preview:             cfg.Camera.Preview,
		WindowTitle:         cfg.Camera.WindowTitle,
		DefinitionThreshold: cfg.Quality.DefinitionThreshold,
	}
}

// stdinTriggers turns input lines into triggers: "q" quits, anything else
// captures. The channel is closed at end of input.
func stdinTriggers(ctx context.Context, in io.Reader) <-chan camera.Trigger {
	out := make(chan camera.Trigger)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			t := camera.TriggerCapture
			if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
				t = camera.TriggerQuit
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
			if t == camera.TriggerQuit {
				return
			}
		}
	}()
	return out
}
