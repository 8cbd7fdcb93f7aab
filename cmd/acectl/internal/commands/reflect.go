package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/llms"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

func NewReflectCommand() *cobra.Command {
	var (
		question string
		answer   string
		feedback string
		retrieve bool
		apply    bool
	)

	cmd := &cobra.Command{
		Use:   "reflect",
		Short: "Derive playbook updates from one task execution",
		Long: `Send a completed task execution to the reflection model and print the
proposed operations. With --apply the resulting delta is applied and the
playbook persisted; otherwise the proposals are printed as JSON suitable
for 'acectl apply'.`,
		Example: `  acectl reflect --question "..." --answer "..." --feedback "wrong total" --apply`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if question == "" || answer == "" {
				return fmt.Errorf("--question and --answer are required")
			}

			eng, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.close()

			input := llms.ReflectionInput{
				Question: question,
				Answer:   answer,
				Feedback: feedback,
			}
			if retrieve {
				retriever := playbook.NewRetriever(eng.playbook, eng.embedder)
				hits, err := retriever.Retrieve(cmd.Context(), question, 0)
				if err != nil {
					return err
				}
				for _, hit := range hits {
					input.RetrievedItems = append(input.RetrievedItems, hit.Item)
				}
			}

			reflector, err := llms.NewReflector(eng.cfg.Reflection)
			if err != nil {
				return err
			}
			ops, err := reflector.Reflect(cmd.Context(), input)
			if err != nil {
				return err
			}

			if !apply {
				data, err := json.MarshalIndent(ops, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			delta := playbook.BuildDelta(ops, "reflection on: "+question)
			merger := playbook.NewMerger(eng.playbook, eng.embedder)
			result, err := merger.Apply(cmd.Context(), delta)
			if err != nil {
				return err
			}
			if err := eng.save(cmd.Context()); err != nil {
				return err
			}

			fmt.Printf("delta %s applied: %d added, %d merged, %d reinforced, %d deprecated\n",
				result.DeltaID, len(result.Added), len(result.Merged),
				len(result.Reinforced), len(result.Deprecated))
			return nil
		},
	}

	cmd.Flags().StringVar(&question, "question", "", "the task that was attempted")
	cmd.Flags().StringVar(&answer, "answer", "", "what the executor produced")
	cmd.Flags().StringVar(&feedback, "feedback", "", "ground truth or evaluator feedback")
	cmd.Flags().BoolVar(&retrieve, "with-items", true, "include retrieved items so the model can reinforce them")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the proposed delta instead of printing it")
	return cmd
}
