package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

func NewApplyCommand() *cobra.Command {
	var reasoning string

	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply a delta of proposed operations to the playbook",
		Long: `Read a JSON array of proposed operations from a file (or stdin when no
file is given), validate it into a delta, apply it, and persist the
updated playbook.

Malformed operations are dropped with warnings; the rest of the delta
still applies.`,
		Example: `  # Apply operations from a reflection output file
  acectl apply delta.json

  # Pipe operations in
  echo '[{"type":"ADD","content":"...","kind":"insight"}]' | acectl apply`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			var ops []playbook.ProposedOperation
			if err := json.Unmarshal(data, &ops); err != nil {
				return fmt.Errorf("input is not a JSON array of operations: %w", err)
			}

			delta := playbook.BuildDelta(ops, reasoning)

			eng, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.close()

			merger := playbook.NewMerger(eng.playbook, eng.embedder)
			result, err := merger.Apply(cmd.Context(), delta)
			if err != nil {
				return err
			}

			if err := eng.save(cmd.Context()); err != nil {
				return err
			}

			fmt.Printf("delta %s applied: %d added, %d merged, %d reinforced, %d deprecated, %d evicted\n",
				result.DeltaID, len(result.Added), len(result.Merged),
				len(result.Reinforced), len(result.Deprecated), len(result.Evicted))
			for _, warning := range result.Warnings {
				fmt.Printf("warning: %s\n", warning)
			}
			for _, id := range result.Missing {
				fmt.Printf("warning: unknown item id %s\n", id)
			}
			fmt.Printf("playbook now holds %d items\n", eng.playbook.Size())
			return nil
		},
	}

	cmd.Flags().StringVar(&reasoning, "reasoning", "", "free-form note recorded with the delta")
	return cmd
}
