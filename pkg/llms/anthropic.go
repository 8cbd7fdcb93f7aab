package llms

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/ace-go/pkg/config"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Reflector turns execution feedback into proposed playbook operations
// using Anthropic's models. The proposals go through BuildDelta before
// they touch the playbook, so malformed model output degrades to warnings
// rather than corrupting state.
type Reflector struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int
	logger    *logging.Logger
}

// NewReflector creates a reflector from the reflection configuration
// section. The API key falls back to ANTHROPIC_API_KEY when unset.
func NewReflector(cfg config.ReflectionConfig) (*Reflector, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.ConfigurationError, "API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Reflector{
		client:    &client,
		model:     anthropic.Model(cfg.Model),
		maxTokens: maxTokens,
		logger:    logging.GetLogger(),
	}, nil
}

// ReflectionInput carries one completed task execution for analysis.
type ReflectionInput struct {
	// The task that was attempted
	Question string

	// What the executor produced
	Answer string

	// Ground truth or evaluator feedback, if any
	Feedback string

	// Items that were retrieved for the task, so the model can
	// reinforce or deprecate them by id
	RetrievedItems []playbook.KnowledgeItem
}

// Reflect asks the model what the playbook should learn from one
// execution and returns the proposed operations.
func (r *Reflector) Reflect(ctx context.Context, input ReflectionInput) ([]playbook.ProposedOperation, error) {
	prompt := buildReflectionPrompt(input)

	message, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: r.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens: int64(r.maxTokens),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if goerrors.As(err, &apiErr) {
			r.logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "reflection request failed"),
			errors.Fields{"model": string(r.model)},
		)
	}
	if message == nil || len(message.Content) == 0 {
		return nil, errors.New(errors.Unknown, "received empty response from Anthropic API")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	return parseProposedOperations(responseText)
}

func buildReflectionPrompt(input ReflectionInput) string {
	var sb strings.Builder

	sb.WriteString("You maintain a playbook of reusable knowledge for an AI agent.\n")
	sb.WriteString("Analyze the execution below and propose playbook updates.\n\n")

	sb.WriteString("Task:\n")
	sb.WriteString(input.Question)
	sb.WriteString("\n\nAgent answer:\n")
	sb.WriteString(input.Answer)
	if input.Feedback != "" {
		sb.WriteString("\n\nFeedback:\n")
		sb.WriteString(input.Feedback)
	}

	if len(input.RetrievedItems) > 0 {
		sb.WriteString("\n\nPlaybook items that were used (reference them by id):\n")
		for _, item := range input.RetrievedItems {
			fmt.Fprintf(&sb, "- [%s] (%s) %s\n", item.ID, item.Kind, item.Content)
		}
	}

	sb.WriteString(`
Respond with a JSON array of operations and nothing else. Each operation
is one of:
  {"type": "ADD", "content": "...", "kind": "strategy|insight|error_pattern|api_guideline|verification_check|formula|domain_knowledge", "section": "..."}
  {"type": "REINFORCE", "item_id": "...", "outcome": "helpful|harmful"}
  {"type": "DEPRECATE", "item_id": "..."}

Mark a used item helpful if it contributed to a correct answer and
harmful if it misled the agent. Add items only for insights that would
transfer to future tasks. Return [] if there is nothing to learn.`)

	return sb.String()
}

// parseProposedOperations extracts the JSON array from model output,
// tolerating surrounding prose and markdown fences.
func parseProposedOperations(text string) ([]playbook.ProposedOperation, error) {
	cleaned := strings.TrimSpace(text)
	if idx := strings.Index(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[idx+3:]
		cleaned = strings.TrimPrefix(cleaned, "json")
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	}
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end < start {
		return nil, errors.New(errors.InvalidOperation, "reflection output contains no JSON array")
	}

	var ops []playbook.ProposedOperation
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &ops); err != nil {
		return nil, errors.Wrap(err, errors.InvalidOperation, "reflection output is not valid JSON")
	}
	return ops, nil
}
