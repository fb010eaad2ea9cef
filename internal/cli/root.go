// Package cli implements the termx command line: offline expansion and
// suggestion against a built index, index statistics, vector export and
// document publishing.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "termx",
	Short: "Query expansion over a built term index",
	Long: `termx proposes expansion terms for a query from the documents that
ranked highest for it (pseudo-relevance feedback), using tf-idf or the
Okapi term selection value, and suggests mixed-case spellings of short
lowercase terms.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
