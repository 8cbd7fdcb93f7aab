// Package playbook implements the evolving knowledge store that conditions
// an LLM-driven problem solver: typed knowledge items, deterministic semantic
// retrieval, delta-update application with deduplication, usefulness
// counters, and bounded eviction.
package playbook

import (
	"time"
)

// Kind classifies a knowledge item. The set is closed; unknown kinds are
// rejected during delta validation.
type Kind string

const (
	KindStrategy          Kind = "strategy"
	KindInsight           Kind = "insight"
	KindErrorPattern      Kind = "error_pattern"
	KindApiGuideline      Kind = "api_guideline"
	KindVerificationCheck Kind = "verification_check"
	KindFormula           Kind = "formula"
	KindDomainKnowledge   Kind = "domain_knowledge"
)

// Kinds lists every valid item kind.
func Kinds() []Kind {
	return []Kind{
		KindStrategy,
		KindInsight,
		KindErrorPattern,
		KindApiGuideline,
		KindVerificationCheck,
		KindFormula,
		KindDomainKnowledge,
	}
}

// ParseKind converts a string to a Kind. The second return value reports
// whether the input named a known kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindStrategy, KindInsight, KindErrorPattern, KindApiGuideline,
		KindVerificationCheck, KindFormula, KindDomainKnowledge:
		return Kind(s), true
	default:
		return "", false
	}
}

// KnowledgeItem is one atomic piece of stored knowledge. Content is
// immutable after creation; counters only ever increase. All mutation goes
// through the Merger.
type KnowledgeItem struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Kind         Kind      `json:"kind"`
	Section      string    `json:"section"`
	HelpfulCount int       `json:"helpful_count"`
	HarmfulCount int       `json:"harmful_count"`
	Deprecated   bool      `json:"deprecated,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Embedding is computed by the external embedding provider and cached
	// here. It is only valid for the current Content.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Score returns the usefulness signal used for eviction ordering.
func (k *KnowledgeItem) Score() int {
	return k.HelpfulCount - k.HarmfulCount
}

// TotalUses returns how many times this item has been rated.
func (k *KnowledgeItem) TotalUses() int {
	return k.HelpfulCount + k.HarmfulCount
}

// Ratio returns the helpful fraction of all ratings. An unrated item is
// neutral at 0.5.
func (k *KnowledgeItem) Ratio() float64 {
	total := k.TotalUses()
	if total == 0 {
		return 0.5
	}
	return float64(k.HelpfulCount) / float64(total)
}

// clone returns a deep copy safe to hand out to readers.
func (k *KnowledgeItem) clone() KnowledgeItem {
	out := *k
	if k.Embedding != nil {
		out.Embedding = make([]float32, len(k.Embedding))
		copy(out.Embedding, k.Embedding)
	}
	return out
}
