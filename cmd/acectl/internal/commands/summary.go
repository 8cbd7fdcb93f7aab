package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func NewSummaryCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the current state of the playbook",
		Long: `Display the playbook's size, section breakdown, item kinds, and
usefulness figures.`,
		Example: `  # Human-readable summary
  acectl summary

  # Machine-readable output
  acectl summary --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.close()

			summary := eng.playbook.Summary()
			if asJSON {
				data, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Playbook: %d/%d items, %d deltas applied\n",
				summary.Size, summary.MaxSize, summary.DeltasApplied)
			fmt.Printf("Deprecated: %d  Rated: %d  Avg helpfulness: %.2f\n",
				summary.DeprecatedItems, summary.RatedItems, summary.AverageHelpfulness)

			if len(summary.Sections) > 0 {
				fmt.Println("\nSections:")
				names := make([]string, 0, len(summary.Sections))
				for name := range summary.Sections {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("  %-24s %d\n", name, summary.Sections[name])
				}
			}

			if len(summary.Kinds) > 0 {
				fmt.Println("\nKinds:")
				kinds := make([]string, 0, len(summary.Kinds))
				for kind := range summary.Kinds {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					fmt.Printf("  %-24s %d\n", kind, summary.Kinds[kind])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}
