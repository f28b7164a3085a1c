package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/MeKo-Tech/labelocr/internal/models"
	"github.com/spf13/cobra"
)

// languagesCmd represents the languages command.
var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported recognition languages",
	Long: `List the languages that can be configured and whether their Tesseract
language data is installed in the resolved tessdata directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		dir := models.GetTessdataDir(cfg.OCR.TessdataDir)
		if dir == "" {
			dir = "(engine default)"
		}
		_, _ = fmt.Fprintf(out, "Tessdata: %s\n\n", dir)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "CODE\tENGINE\tLANGUAGE\tALIASES\tINSTALLED")
		for _, l := range models.ListLanguages() {
			installed := "yes"
			if err := models.ValidateLanguageData(cfg.OCR.TessdataDir, l.EngineCode); err != nil {
				installed = "no"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				l.Code, l.EngineCode, l.Description, strings.Join(l.Aliases, ","), installed)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
