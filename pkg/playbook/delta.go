package playbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OpType identifies a delta operation.
type OpType string

const (
	OpAdd       OpType = "ADD"
	OpReinforce OpType = "REINFORCE"
	OpDeprecate OpType = "DEPRECATE"
)

// Outcome is the rating attached to a Reinforce operation.
type Outcome string

const (
	OutcomeHelpful Outcome = "helpful"
	OutcomeHarmful Outcome = "harmful"
)

// ProposedOperation is the loosely-typed shape produced by the external
// reasoning provider. It is validated and normalized by BuildDelta before
// anything touches the playbook.
type ProposedOperation struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Section string `json:"section,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// Operation is a validated delta operation.
type Operation struct {
	Type    OpType
	Content string
	Kind    Kind
	Section string
	ItemID  string
	Outcome Outcome
}

// Delta is an immutable batch of validated operations, consumed exactly
// once by a Merger. Reasoning is stored for audit and never parsed.
type Delta struct {
	ID         string
	Operations []Operation
	Reasoning  string

	// Warnings records proposed operations dropped during validation.
	Warnings []string

	CreatedAt time.Time
}

// BuildDelta validates proposed operations into a Delta. Malformed entries
// are dropped and recorded as warnings; one bad operation never poisons the
// rest. An empty result is a valid delta.
func BuildDelta(proposed []ProposedOperation, reasoning string) *Delta {
	delta := &Delta{
		ID:        uuid.NewString(),
		Reasoning: reasoning,
		CreatedAt: time.Now(),
	}

	for i, raw := range proposed {
		op, reason := validateOperation(raw)
		if reason != "" {
			delta.Warnings = append(delta.Warnings, fmt.Sprintf("operation %d dropped: %s", i, reason))
			continue
		}
		delta.Operations = append(delta.Operations, op)
	}

	return delta
}

func validateOperation(raw ProposedOperation) (Operation, string) {
	switch OpType(strings.ToUpper(strings.TrimSpace(raw.Type))) {
	case OpAdd:
		content := strings.TrimSpace(raw.Content)
		if content == "" {
			return Operation{}, "ADD without content"
		}

		kind := Kind(strings.TrimSpace(raw.Kind))
		if kind == "" {
			kind = classifyKind(content)
		} else if _, ok := ParseKind(string(kind)); !ok {
			return Operation{}, fmt.Sprintf("unknown kind %q", raw.Kind)
		}

		section := strings.TrimSpace(raw.Section)
		if section == "" {
			section = sectionForKind(kind)
		}

		return Operation{Type: OpAdd, Content: content, Kind: kind, Section: section}, ""

	case OpReinforce:
		if strings.TrimSpace(raw.ItemID) == "" {
			return Operation{}, "REINFORCE without item_id"
		}
		outcome := Outcome(strings.ToLower(strings.TrimSpace(raw.Outcome)))
		if outcome != OutcomeHelpful && outcome != OutcomeHarmful {
			return Operation{}, fmt.Sprintf("unknown outcome %q", raw.Outcome)
		}
		return Operation{Type: OpReinforce, ItemID: strings.TrimSpace(raw.ItemID), Outcome: outcome}, ""

	case OpDeprecate:
		if strings.TrimSpace(raw.ItemID) == "" {
			return Operation{}, "DEPRECATE without item_id"
		}
		return Operation{Type: OpDeprecate, ItemID: strings.TrimSpace(raw.ItemID)}, ""

	default:
		return Operation{}, fmt.Sprintf("unknown operation type %q", raw.Type)
	}
}

// classifyKind assigns a kind to an insight whose producer left it blank,
// using the keyword heuristic of the original framework.
func classifyKind(content string) Kind {
	lower := strings.ToLower(content)

	switch {
	case containsAny(lower, "error", "mistake", "wrong", "incorrect"):
		return KindErrorPattern
	case containsAny(lower, "strategy", "approach", "method", "technique"):
		return KindStrategy
	case containsAny(lower, "api", "function", "call", "interface"):
		return KindApiGuideline
	case containsAny(lower, "verify", "check", "validate", "test"):
		return KindVerificationCheck
	case containsAny(lower, "formula", "calculation", "compute", "math"):
		return KindFormula
	default:
		return KindInsight
	}
}

// sectionForKind gives the default grouping for a kind.
func sectionForKind(kind Kind) string {
	switch kind {
	case KindErrorPattern:
		return "error_patterns"
	case KindStrategy:
		return "strategies"
	case KindApiGuideline:
		return "api_guidelines"
	case KindVerificationCheck:
		return "verification_checklist"
	case KindFormula:
		return "formulas_and_calculations"
	case KindDomainKnowledge:
		return "domain_knowledge"
	default:
		return "general_insights"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
