package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/MeKo-Tech/labelocr/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var noConfig = map[string]string{annotationNoConfig: "true"}

// configCmd groups the configuration helpers.
var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Inspect and create configuration files",
	Annotations: noConfig,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after merging defaults, the config file, .env,
LABELOCR_* environment variables and flags. Validation problems are reported
after the dump instead of aborting it.`,
	Args:        cobra.NoArgs,
	Annotations: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := GetConfigLoader()
		if cfgFile != "" {
			loader.GetViper().SetConfigFile(cfgFile)
		}
		cfg, err := loader.LoadWithoutValidation()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		out := cmd.OutOrStdout()
		if used := loader.GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(out, "# source: %s\n", used)
		}
		_, _ = out.Write(data)

		if err := cfg.Validate(); err != nil {
			_, _ = fmt.Fprintf(out, "\n# invalid: %v\n", err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a default configuration file",
	Long: `Write the default configuration as YAML, to labelocr.yaml in the current
directory unless a file is given. Existing files are kept unless --force is
set.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		if err := config.GenerateDefaultConfigFile(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configPathsCmd = &cobra.Command{
	Use:         "paths",
	Short:       "List the directories searched for labelocr.yaml",
	Args:        cobra.NoArgs,
	Annotations: noConfig,
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range config.GetConfigSearchPaths() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathsCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}
