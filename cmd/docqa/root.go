package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docqa/internal/cliutil"
	"github.com/jackzampolin/docqa/internal/config"
	"github.com/jackzampolin/docqa/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Citation-grounded question answering over a fixed PDF corpus",
	Long: `docqa answers questions against a fixed, pre-ingested corpus of PDFs,
grounding every non-refusal answer in inline [cN] citations back to the
retrieved chunks it was built from.

The pipeline includes:
  - BM25 and dense retrieval, fused with reciprocal rank fusion
  - A bounded agent control loop with retrieval, evidence assessment,
    query refinement, and citation-checked answering
  - A deterministic evaluation harness scoring retrieval and answer
    quality against a labeled question set`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.docqa/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "docqa home directory (default: ~/.docqa)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cliutil.SetFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(agentAskCmd)
	rootCmd.AddCommand(evalRunCmd)
}

// mustLoadConfig builds the config manager or exits 2 on a configuration
// error, per the documented exit code contract: configuration failures
// never reach the generic os.Exit(1) in main.
func mustLoadConfig() *config.Manager {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docqa: configuration error: %v\n", err)
		os.Exit(2)
	}
	return cm
}
