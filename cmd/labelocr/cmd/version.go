package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/labelocr/internal/engine/tesseract"
	"github.com/MeKo-Tech/labelocr/internal/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, version.String())
		_, _ = fmt.Fprintf(out, "tesseract %s\n", tesseract.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
