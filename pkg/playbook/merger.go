package playbook

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/text/unicode/norm"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// ApplyResult describes the changes one delta made to the playbook.
type ApplyResult struct {
	DeltaID string `json:"delta_id"`

	// Added holds ids of items created by this delta.
	Added []string `json:"added,omitempty"`
	// Merged holds ids of existing items reinforced instead of duplicated.
	Merged []string `json:"merged,omitempty"`
	// Reinforced holds ids whose counters were updated by Reinforce ops.
	Reinforced []string `json:"reinforced,omitempty"`
	// Deprecated holds ids marked for eviction preference.
	Deprecated []string `json:"deprecated,omitempty"`
	// Evicted holds ids physically removed by the size bound.
	Evicted []string `json:"evicted,omitempty"`
	// Missing holds ids referenced by Reinforce/Deprecate that no longer
	// exist; the operations were skipped.
	Missing []string `json:"missing,omitempty"`

	// Warnings carries the delta's validation audit trail.
	Warnings []string `json:"warnings,omitempty"`

	AppliedAt time.Time `json:"applied_at"`
}

// MergeObserver receives apply-time events, used to feed metrics without
// coupling the core to a metrics backend.
type MergeObserver interface {
	DeltaApplied(result *ApplyResult, playbookSize int)
}

// Merger applies deltas to a playbook: deduplication, counter updates,
// section placement, and eviction. Apply calls on the same playbook are
// serialized; readers never observe a half-applied delta.
type Merger struct {
	playbook *Playbook
	embedder Embedder
	logger   *logging.Logger
	observer MergeObserver

	historyMu sync.Mutex
	history   []*ApplyResult
}

// MergerOption customizes a Merger.
type MergerOption func(*Merger)

// WithObserver attaches a MergeObserver.
func WithObserver(o MergeObserver) MergerOption {
	return func(m *Merger) { m.observer = o }
}

// WithMergerLogger overrides the default logger.
func WithMergerLogger(l *logging.Logger) MergerOption {
	return func(m *Merger) { m.logger = l }
}

// NewMerger creates a merger for the given playbook. The embedder may be
// nil, in which case deduplication uses lexical matching only.
func NewMerger(pb *Playbook, embedder Embedder, opts ...MergerOption) *Merger {
	m := &Merger{
		playbook: pb,
		embedder: embedder,
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply incorporates a delta into the playbook as a single logical
// transaction. Embeddings for added contents are computed before the
// critical section; once the mutate phase starts it runs to completion, so
// cancellation is only honored at the embedding boundary.
func (m *Merger) Apply(ctx context.Context, delta *Delta) (*ApplyResult, error) {
	if delta == nil {
		return nil, errors.New(errors.InvalidOperation, "nil delta")
	}

	// Phase 1: external-collaborator boundary. The only suspension point.
	embeddings := m.embedAdds(ctx, delta.Operations)

	if err := errors.CheckContext(ctx, "apply delta"); err != nil {
		return nil, err
	}

	result := &ApplyResult{
		DeltaID:  delta.ID,
		Warnings: delta.Warnings,
	}

	// Phase 2: uninterruptible critical section.
	m.playbook.mu.Lock()
	now := time.Now()
	addedThisDelta := make(map[string]bool)

	for i, op := range delta.Operations {
		switch op.Type {
		case OpAdd:
			m.applyAdd(op, embeddings[i], now, addedThisDelta, result)
		case OpReinforce:
			m.applyReinforce(op, now, result)
		case OpDeprecate:
			m.applyDeprecate(op, now, result)
		}
	}

	result.Evicted = m.evictLocked(addedThisDelta)
	m.playbook.deltasApplied++
	result.AppliedAt = now
	size := len(m.playbook.items)
	m.playbook.mu.Unlock()

	m.historyMu.Lock()
	m.history = append(m.history, result)
	m.historyMu.Unlock()

	if m.observer != nil {
		m.observer.DeltaApplied(result, size)
	}

	m.logger.Debug(ctx, "applied delta %s: %d added, %d merged, %d evicted",
		delta.ID, len(result.Added), len(result.Merged), len(result.Evicted))

	return result, nil
}

// History returns the apply audit trail, oldest first.
func (m *Merger) History() []*ApplyResult {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	out := make([]*ApplyResult, len(m.history))
	copy(out, m.history)
	return out
}

// embedAdds computes embeddings for ADD contents. Provider failures are
// logged once and leave the slot nil; deduplication then falls back to
// lexical matching.
func (m *Merger) embedAdds(ctx context.Context, ops []Operation) [][]float32 {
	embeddings := make([][]float32, len(ops))
	if m.embedder == nil {
		return embeddings
	}

	warned := false
	for i, op := range ops {
		if op.Type != OpAdd {
			continue
		}
		vec, err := m.embedder.Embed(ctx, op.Content)
		if err != nil {
			if !warned {
				m.logger.Warn(ctx, "embedding unavailable, falling back to lexical dedup: %v", err)
				warned = true
			}
			continue
		}
		embeddings[i] = vec
	}
	return embeddings
}

func (m *Merger) applyAdd(op Operation, embedding []float32, now time.Time, addedThisDelta map[string]bool, result *ApplyResult) {
	p := m.playbook

	// Search the target section for a near-duplicate.
	if dup := m.findDuplicateLocked(op.Section, op.Content, embedding); dup != nil {
		dup.HelpfulCount++
		dup.UpdatedAt = now
		result.Merged = append(result.Merged, dup.ID)
		return
	}

	item := &KnowledgeItem{
		ID:        uuid.NewString(),
		Content:   op.Content,
		Kind:      op.Kind,
		Section:   op.Section,
		CreatedAt: now,
		UpdatedAt: now,
		Embedding: embedding,
	}
	p.insertLocked(item)
	addedThisDelta[item.ID] = true
	result.Added = append(result.Added, item.ID)
}

// findDuplicateLocked returns an item in the section whose content is
// similar to the candidate above the configured threshold. Semantic
// similarity is used when both embeddings exist; otherwise comparison
// degrades to normalized equality and token-set overlap.
func (m *Merger) findDuplicateLocked(section, content string, embedding []float32) *KnowledgeItem {
	p := m.playbook
	threshold := p.config.SimilarityThreshold

	normalized := normalizeContent(content)
	tokens := tokenize(content)

	for _, id := range p.sections[section] {
		existing := p.items[id]

		if embedding != nil && existing.Embedding != nil {
			if cosineSimilarity(embedding, existing.Embedding) >= threshold {
				return existing
			}
			continue
		}

		if normalizeContent(existing.Content) == normalized {
			return existing
		}
		if jaccardSimilarity(tokens, tokenize(existing.Content)) >= threshold {
			return existing
		}
	}
	return nil
}

func (m *Merger) applyReinforce(op Operation, now time.Time, result *ApplyResult) {
	item, ok := m.playbook.items[op.ItemID]
	if !ok {
		// The item may have been evicted between retrieval and
		// reflection. Record and continue.
		result.Missing = append(result.Missing, op.ItemID)
		m.logger.Warn(context.Background(), "reinforce skipped, item not found: %s", op.ItemID)
		return
	}

	switch op.Outcome {
	case OutcomeHelpful:
		item.HelpfulCount++
	case OutcomeHarmful:
		item.HarmfulCount++
	}
	item.UpdatedAt = now
	result.Reinforced = append(result.Reinforced, item.ID)
}

func (m *Merger) applyDeprecate(op Operation, now time.Time, result *ApplyResult) {
	item, ok := m.playbook.items[op.ItemID]
	if !ok {
		result.Missing = append(result.Missing, op.ItemID)
		m.logger.Warn(context.Background(), "deprecate skipped, item not found: %s", op.ItemID)
		return
	}

	item.Deprecated = true
	item.UpdatedAt = now
	result.Deprecated = append(result.Deprecated, item.ID)

	if m.playbook.config.HardDeprecate {
		m.playbook.removeLocked(item.ID)
	}
}

// evictLocked removes lowest-priority items until the playbook fits its
// size bound. Items added by the current delta are protected and removed
// only if the cap cannot be reached otherwise.
func (m *Merger) evictLocked(addedThisDelta map[string]bool) []string {
	p := m.playbook
	over := len(p.items) - p.config.MaxSize
	if over <= 0 {
		return nil
	}

	candidates := m.evictionOrderLocked(func(id string) bool { return !addedThisDelta[id] })
	if len(candidates) < over {
		// The cap is smaller than what this delta added. Protection
		// yields to the size bound for the remainder.
		protected := m.evictionOrderLocked(func(id string) bool { return addedThisDelta[id] })
		candidates = append(candidates, protected...)
	}

	var evicted []string
	for _, id := range candidates {
		if over <= 0 {
			break
		}
		p.removeLocked(id)
		evicted = append(evicted, id)
		over--
	}
	return evicted
}

// evictionOrderLocked returns ids matching the filter, lowest eviction
// priority first: deprecated items, then ascending helpful−harmful, then
// oldest updatedAt, then insertion order.
func (m *Merger) evictionOrderLocked(include func(id string) bool) []string {
	p := m.playbook

	ids := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if include(id) {
			ids = append(ids, id)
		}
	}

	sort.SliceStable(ids, func(i, j int) bool {
		a, b := p.items[ids[i]], p.items[ids[j]]
		if a.Deprecated != b.Deprecated {
			return a.Deprecated
		}
		if a.Score() != b.Score() {
			return a.Score() < b.Score()
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return p.orderIndexLocked(a.ID) < p.orderIndexLocked(b.ID)
	})
	return ids
}

// EnsureEmbeddings backfills missing item embeddings through the provider
// so un-embedded items become discoverable by semantic retrieval. Work is
// bounded by the configured concurrency. Returns the number of items
// embedded.
func (m *Merger) EnsureEmbeddings(ctx context.Context) (int, error) {
	if m.embedder == nil {
		return 0, errors.New(errors.EmbeddingUnavailable, "no embedder configured")
	}

	p := m.playbook
	p.mu.RLock()
	type pending struct {
		id      string
		content string
	}
	var todo []pending
	for _, id := range p.order {
		if p.items[id].Embedding == nil {
			todo = append(todo, pending{id: id, content: p.items[id].Content})
		}
	}
	concurrency := p.config.EmbedConcurrency
	p.mu.RUnlock()

	if len(todo) == 0 {
		return 0, nil
	}

	var resultMu sync.Mutex
	vectors := make(map[string][]float32, len(todo))
	failures := 0

	workers := pool.New().WithMaxGoroutines(concurrency)
	for _, item := range todo {
		workers.Go(func() {
			vec, err := m.embedder.Embed(ctx, item.content)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				failures++
				return
			}
			vectors[item.id] = vec
		})
	}
	workers.Wait()

	p.mu.Lock()
	updated := 0
	for id, vec := range vectors {
		item, ok := p.items[id]
		if !ok {
			// Evicted while we were embedding.
			continue
		}
		item.Embedding = vec
		updated++
	}
	p.mu.Unlock()

	if failures == len(todo) {
		return 0, errors.WithFields(
			errors.New(errors.EmbeddingUnavailable, "embedding provider failed for all pending items"),
			errors.Fields{"pending": len(todo)},
		)
	}
	if failures > 0 {
		m.logger.Warn(ctx, "embedding backfill incomplete: %d of %d failed", failures, len(todo))
	}
	return updated, nil
}

// normalizeContent converts text to a canonical form for duplicate
// comparison: NFKC fold, lower case, collapsed whitespace.
func normalizeContent(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		} else {
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return b.String()
}

// tokenize splits text into word tokens.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	s = strings.ToLower(norm.NFKC.String(s))

	var word strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word.WriteRune(r)
		} else if word.Len() > 0 {
			tokens[word.String()] = true
			word.Reset()
		}
	}
	if word.Len() > 0 {
		tokens[word.String()] = true
	}

	return tokens
}

// jaccardSimilarity computes the Jaccard index between two token sets.
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}
