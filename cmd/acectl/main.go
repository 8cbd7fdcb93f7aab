package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/cmd/acectl/internal/commands"
)

var rootCmd = &cobra.Command{
	Use:   "acectl",
	Short: "Inspect and evolve an agentic context playbook",
	Long: `acectl manages a playbook of reusable agent knowledge: strategies,
insights, error patterns, and verification checks accumulated from task
executions.

The CLI provides:
- Playbook summaries and section listings
- Relevance-ranked retrieval for a query
- Applying delta files produced by reflection
- A read-only HTTP reporting server`,
	Version: "0.1.0",
}

func main() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")

	rootCmd.AddCommand(
		commands.NewSummaryCommand(),
		commands.NewRetrieveCommand(),
		commands.NewApplyCommand(),
		commands.NewReflectCommand(),
		commands.NewServeCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
