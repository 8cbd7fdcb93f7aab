package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

func NewRetrieveCommand() *cobra.Command {
	var (
		k      int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Retrieve the most relevant playbook items for a query",
		Long: `Rank playbook items by relevance to the query and print the top k.
Items are scored by embedding similarity when the embedding provider is
reachable and fall back to usefulness ordering when it is not.`,
		Example: `  acectl retrieve "how do I paginate the search API"

  # Limit to the top 3
  acectl retrieve -k 3 "flaky integration tests"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.close()

			query := strings.Join(args, " ")
			retriever := playbook.NewRetriever(eng.playbook, eng.embedder)
			hits, err := retriever.Retrieve(cmd.Context(), query, k)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(hits, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if len(hits) == 0 {
				fmt.Println("no items")
				return nil
			}
			for i, hit := range hits {
				fmt.Printf("%2d. [%.3f] (%s/%s) %s\n",
					i+1, hit.Score, hit.Item.Section, hit.Item.Kind, hit.Item.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", 0, "number of items to return (0 uses the configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
