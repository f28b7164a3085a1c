package cmd

import (
	"context"
	"errors"

	"github.com/MeKo-Tech/labelocr/internal/capture"
	"github.com/MeKo-Tech/labelocr/internal/config"
	"github.com/spf13/cobra"
)

// fileCmd represents the file command.
var fileCmd = &cobra.Command{
	Use:   "file <path>...",
	Short: "Recognize label images or PDF files",
	Long: `Process one or more image files (JPEG, PNG, BMP) or PDF files. Every
image counts as one capture; for PDFs the first embedded image of each
selected page is used.

Examples:
  labelocr file label.jpg
  labelocr file scans/*.png --languages en,ko
  labelocr file labels.pdf --pages 1-3`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("no input files provided")
		}
		pages, _ := cmd.Flags().GetString("pages")
		return runCapture(cmd, func(context.Context, *config.Config) (capture.Source, error) {
			return capture.NewFileSource(args, capture.WithPages(pages))
		})
	},
}

func init() {
	rootCmd.AddCommand(fileCmd)
	fileCmd.Flags().String("pages", "", "PDF page range, e.g. 1-3 or 1,4 (default all pages)")
}
