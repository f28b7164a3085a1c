package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/labelocr/internal/capture"
	"github.com/MeKo-Tech/labelocr/internal/config"
	"github.com/spf13/cobra"
)

// streamReply is sent back to the frame producer after every cycle.
type streamReply struct {
	Sequence       int64    `json:"sequence"`
	ID             string   `json:"id,omitempty"`
	Texts          []string `json:"texts"`
	MeanConfidence float64  `json:"mean_confidence"`
	Verdict        string   `json:"verdict,omitempty"`
	Record         string   `json:"record,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func newStreamReply(c capture.Cycle) streamReply {
	r := streamReply{
		Sequence:       c.Sequence,
		ID:             c.Result.ID,
		Texts:          c.Result.Texts(),
		MeanConfidence: c.Result.MeanConfidence(),
		Verdict:        string(c.Verdict),
		Record:         c.Artifacts.RecordPath,
	}
	if c.Err != nil {
		r.Error = c.Err.Error()
	}
	return r
}

// streamCmd represents the stream command.
var streamCmd = &cobra.Command{
	Use:   "stream <ws-url>",
	Short: "Recognize frames pushed over a websocket",
	Long: `Connect to a websocket frame producer. Every binary message (JPEG or PNG)
is a capture trigger; the text message "quit" or a normal close ends the
session. A JSON summary is sent back after each frame.

Example:
  labelocr stream ws://camera-gateway:8080/frames`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return errors.New("stream url is empty")
		}
		var src *capture.WebSocketSource
		open := func(ctx context.Context, _ *config.Config) (capture.Source, error) {
			var err error
			src, err = capture.DialWebSocket(ctx, args[0], slog.Default())
			return src, err
		}
		reply := func(c capture.Cycle) {
			if src == nil {
				return
			}
			if err := src.Reply(newStreamReply(c)); err != nil {
				slog.Warn("Failed to send reply", "error", err, "sequence", c.Sequence)
			}
		}
		return runCapture(cmd, open, reply)
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)
}
