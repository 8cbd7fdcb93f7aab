package playbook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aceerrors "github.com/XiaoConstantine/ace-go/pkg/errors"
)

// stubEmbedder returns canned vectors by exact text and can be flipped
// into failure mode.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, aceerrors.New(aceerrors.EmbeddingUnavailable, "provider down")
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	// Unknown text gets a vector orthogonal to everything canned.
	return []float32{0, 0, 0, 1}, nil
}

func newTestConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxSize = 100
	return cfg
}

func addOp(content, kind, section string) ProposedOperation {
	return ProposedOperation{Type: "ADD", Content: content, Kind: kind, Section: section}
}

func TestMergerAddCreatesItem(t *testing.T) {
	pb, err := New(newTestConfig())
	require.NoError(t, err)

	merger := NewMerger(pb, nil)
	delta := BuildDelta([]ProposedOperation{
		addOp("use pagination loop", "strategy", "api"),
	}, "first insight")

	result, err := merger.Apply(context.Background(), delta)
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Empty(t, result.Merged)
	assert.Equal(t, 1, pb.Size())

	item, err := pb.Get(result.Added[0])
	require.NoError(t, err)
	assert.Equal(t, "use pagination loop", item.Content)
	assert.Equal(t, KindStrategy, item.Kind)
	assert.Equal(t, "api", item.Section)
	assert.Equal(t, 0, item.HelpfulCount)
	assert.False(t, item.CreatedAt.IsZero())
	assert.Equal(t, item.CreatedAt, item.UpdatedAt)
}

func TestMergerSemanticDedup(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"use pagination loop":      {1, 0, 0, 0},
		"use a loop with paging":   {0.95, 0.1, 0, 0},
		"validate inputs up front": {0, 1, 0, 0},
	}}

	pb, err := New(newTestConfig())
	require.NoError(t, err)
	merger := NewMerger(pb, embedder)

	first, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
		addOp("use pagination loop", "strategy", "api"),
	}, ""))
	require.NoError(t, err)
	require.Len(t, first.Added, 1)
	id := first.Added[0]

	t.Run("scenario B: duplicate add reinforces", func(t *testing.T) {
		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("use pagination loop", "strategy", "api"),
		}, ""))
		require.NoError(t, err)
		assert.Empty(t, result.Added)
		assert.Equal(t, []string{id}, result.Merged)
		assert.Equal(t, 1, pb.Size())

		item, err := pb.Get(id)
		require.NoError(t, err)
		assert.Equal(t, 1, item.HelpfulCount)
	})

	t.Run("near-duplicate above threshold merges", func(t *testing.T) {
		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("use a loop with paging", "strategy", "api"),
		}, ""))
		require.NoError(t, err)
		assert.Empty(t, result.Added)
		assert.Equal(t, []string{id}, result.Merged)
	})

	t.Run("dissimilar content adds", func(t *testing.T) {
		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("validate inputs up front", "strategy", "api"),
		}, ""))
		require.NoError(t, err)
		assert.Len(t, result.Added, 1)
		assert.Equal(t, 2, pb.Size())
	})

	t.Run("same content in a different section adds", func(t *testing.T) {
		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("use pagination loop", "strategy", "crawling"),
		}, ""))
		require.NoError(t, err)
		assert.Len(t, result.Added, 1)
	})
}

func TestMergerIdempotentAdd(t *testing.T) {
	// Applying the same Add in two separate deltas yields one item whose
	// helpful count grew by exactly one.
	pb, err := New(newTestConfig())
	require.NoError(t, err)
	merger := NewMerger(pb, nil)

	op := []ProposedOperation{addOp("always close response bodies", "strategy", "http")}

	first, err := merger.Apply(context.Background(), BuildDelta(op, ""))
	require.NoError(t, err)
	require.Len(t, first.Added, 1)

	second, err := merger.Apply(context.Background(), BuildDelta(op, ""))
	require.NoError(t, err)
	assert.Empty(t, second.Added)

	assert.Equal(t, 1, pb.Size())
	item, err := pb.Get(first.Added[0])
	require.NoError(t, err)
	assert.Equal(t, 1, item.HelpfulCount)
}

func TestMergerLexicalFallback(t *testing.T) {
	t.Run("normalized equality", func(t *testing.T) {
		pb, err := New(newTestConfig())
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		_, err = merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("Check errors", "strategy", "general"),
		}, ""))
		require.NoError(t, err)

		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("  CHECK   ERRORS  ", "strategy", "general"),
		}, ""))
		require.NoError(t, err)
		assert.Empty(t, result.Added)
		assert.Len(t, result.Merged, 1)
	})

	t.Run("token overlap", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.SimilarityThreshold = 0.5
		pb, err := New(cfg)
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		_, err = merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("retry the request with backoff", "strategy", "http"),
		}, ""))
		require.NoError(t, err)

		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("retry request with exponential backoff", "strategy", "http"),
		}, ""))
		require.NoError(t, err)
		assert.Empty(t, result.Added)
		assert.Len(t, result.Merged, 1)
	})

	t.Run("provider failure degrades without blocking the add", func(t *testing.T) {
		pb, err := New(newTestConfig())
		require.NoError(t, err)
		merger := NewMerger(pb, &stubEmbedder{fail: true})

		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("prefer batch endpoints", "strategy", "api"),
		}, ""))
		require.NoError(t, err)
		assert.Len(t, result.Added, 1)
	})
}

func TestMergerDuplicateAddsWithinOneDelta(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"cache the auth token": {1, 0, 0, 0},
	}}
	pb, err := New(newTestConfig())
	require.NoError(t, err)
	merger := NewMerger(pb, embedder)

	result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
		addOp("cache the auth token", "strategy", "auth"),
		addOp("cache the auth token", "strategy", "auth"),
		addOp("cache the auth token", "strategy", "auth"),
	}, ""))
	require.NoError(t, err)

	// One item plus N-1 reinforcements.
	require.Len(t, result.Added, 1)
	assert.Len(t, result.Merged, 2)
	assert.Equal(t, 1, pb.Size())

	item, err := pb.Get(result.Added[0])
	require.NoError(t, err)
	assert.Equal(t, 2, item.HelpfulCount)
}

func TestMergerReinforce(t *testing.T) {
	pb, err := New(newTestConfig())
	require.NoError(t, err)
	merger := NewMerger(pb, nil)

	added, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
		addOp("verify totals after import", "verification_check", "checks"),
	}, ""))
	require.NoError(t, err)
	id := added.Added[0]

	t.Run("helpful and harmful increment", func(t *testing.T) {
		_, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			{Type: "REINFORCE", ItemID: id, Outcome: "helpful"},
			{Type: "REINFORCE", ItemID: id, Outcome: "helpful"},
			{Type: "REINFORCE", ItemID: id, Outcome: "harmful"},
		}, ""))
		require.NoError(t, err)

		item, err := pb.Get(id)
		require.NoError(t, err)
		assert.Equal(t, 2, item.HelpfulCount)
		assert.Equal(t, 1, item.HarmfulCount)
		assert.True(t, item.UpdatedAt.After(item.CreatedAt) || item.UpdatedAt.Equal(item.CreatedAt))
	})

	t.Run("scenario C: ghost id is recorded, not fatal", func(t *testing.T) {
		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			{Type: "REINFORCE", ItemID: "ghost-id", Outcome: "helpful"},
		}, ""))
		require.NoError(t, err)
		assert.Equal(t, []string{"ghost-id"}, result.Missing)
		assert.Empty(t, result.Reinforced)
	})

	t.Run("counters never decrease", func(t *testing.T) {
		before, err := pb.Get(id)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			_, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
				{Type: "REINFORCE", ItemID: id, Outcome: "harmful"},
			}, ""))
			require.NoError(t, err)

			after, err := pb.Get(id)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, after.HelpfulCount, before.HelpfulCount)
			assert.GreaterOrEqual(t, after.HarmfulCount, before.HarmfulCount)
			before = after
		}
	})
}

func TestMergerDeprecate(t *testing.T) {
	pb, err := New(newTestConfig())
	require.NoError(t, err)
	merger := NewMerger(pb, nil)

	added, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
		addOp("old advice", "insight", "general"),
	}, ""))
	require.NoError(t, err)
	id := added.Added[0]

	result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
		{Type: "DEPRECATE", ItemID: id},
	}, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, result.Deprecated)

	// Deprecation marks, it does not delete.
	item, err := pb.Get(id)
	require.NoError(t, err)
	assert.True(t, item.Deprecated)
	assert.Equal(t, 1, pb.Size())
}

func TestMergerHardDeprecate(t *testing.T) {
	cfg := newTestConfig()
	cfg.HardDeprecate = true
	pb, err := New(cfg)
	require.NoError(t, err)
	merger := NewMerger(pb, nil)

	added, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
		addOp("old advice", "insight", "general"),
	}, ""))
	require.NoError(t, err)
	id := added.Added[0]

	result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
		{Type: "DEPRECATE", ItemID: id},
	}, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, result.Deprecated)

	_, err = pb.Get(id)
	require.Error(t, err)
	assert.Equal(t, 0, pb.Size())
}

func TestMergerEviction(t *testing.T) {
	t.Run("scenario A", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.MaxSize = 3
		pb, err := New(cfg)
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		var ids []string
		for _, spec := range []struct{ content, section string }{
			{"first insight", "alpha"},
			{"second insight", "beta"},
			{"third insight", "gamma"},
		} {
			result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
				addOp(spec.content, "insight", spec.section),
			}, ""))
			require.NoError(t, err)
			require.Len(t, result.Added, 1)
			ids = append(ids, result.Added[0])
		}
		assert.Equal(t, 3, pb.Size())

		// Fourth add in a brand-new section: size stays 3 and the
		// lowest-priority original (oldest, all scores equal) goes.
		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("fourth insight", "insight", "delta"),
		}, ""))
		require.NoError(t, err)
		assert.Equal(t, 3, pb.Size())
		assert.Equal(t, []string{ids[0]}, result.Evicted)

		_, err = pb.Get(ids[0])
		assert.True(t, aceerrors.HasCode(err, aceerrors.NotFound))
	})

	t.Run("lowest score evicted first", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.MaxSize = 2
		now := time.Now()
		pb, err := Restore(cfg, []KnowledgeItem{
			{ID: "strong", Content: "strong item", Kind: KindInsight, Section: "s", HelpfulCount: 5, CreatedAt: now, UpdatedAt: now},
			{ID: "weak", Content: "weak item", Kind: KindInsight, Section: "s", HarmfulCount: 3, CreatedAt: now, UpdatedAt: now},
		})
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("new item", "insight", "t"),
		}, ""))
		require.NoError(t, err)
		assert.Equal(t, []string{"weak"}, result.Evicted)
		assert.Equal(t, 2, pb.Size())
	})

	t.Run("deprecated items evicted before low scores", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.MaxSize = 2
		now := time.Now()
		pb, err := Restore(cfg, []KnowledgeItem{
			{ID: "marked", Content: "marked item", Kind: KindInsight, Section: "s", HelpfulCount: 9, Deprecated: true, CreatedAt: now, UpdatedAt: now},
			{ID: "weak", Content: "weak item", Kind: KindInsight, Section: "s", HarmfulCount: 3, CreatedAt: now, UpdatedAt: now},
		})
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("new item", "insight", "t"),
		}, ""))
		require.NoError(t, err)
		assert.Equal(t, []string{"marked"}, result.Evicted)
	})

	t.Run("current delta additions are protected", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.MaxSize = 2
		now := time.Now()
		pb, err := Restore(cfg, []KnowledgeItem{
			{ID: "old-a", Content: "old a", Kind: KindInsight, Section: "s", HelpfulCount: 7, CreatedAt: now, UpdatedAt: now},
			{ID: "old-b", Content: "old b", Kind: KindInsight, Section: "s", HelpfulCount: 8, CreatedAt: now, UpdatedAt: now},
		})
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		result, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("fresh one", "insight", "t"),
			addOp("fresh two", "insight", "u"),
		}, ""))
		require.NoError(t, err)

		// Both pre-existing items go even though their scores dwarf the
		// new items' zero scores.
		assert.ElementsMatch(t, []string{"old-a", "old-b"}, result.Evicted)
		assert.Equal(t, 2, pb.Size())
		for _, id := range result.Added {
			_, err := pb.Get(id)
			assert.NoError(t, err)
		}
	})

	t.Run("size bound wins when a delta overfills the cap", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.MaxSize = 1
		pb, err := New(cfg)
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		_, err = merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
			addOp("one", "insight", "a"),
			addOp("two", "insight", "b"),
			addOp("three", "insight", "c"),
		}, ""))
		require.NoError(t, err)
		assert.Equal(t, 1, pb.Size())
	})

	t.Run("size bound holds after every apply", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.MaxSize = 5
		pb, err := New(cfg)
		require.NoError(t, err)
		merger := NewMerger(pb, nil)

		contents := []string{
			"alpha insight", "beta insight", "gamma insight", "delta insight",
			"epsilon insight", "zeta insight", "eta insight", "theta insight",
		}
		for i, content := range contents {
			_, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
				addOp(content, "insight", string(rune('a'+i))),
			}, ""))
			require.NoError(t, err)
			assert.LessOrEqual(t, pb.Size(), 5)
		}
	})
}

func TestMergerEmptyDeltaAdvancesAudit(t *testing.T) {
	pb, err := New(newTestConfig())
	require.NoError(t, err)
	merger := NewMerger(pb, nil)

	before := pb.DeltasApplied()
	result, err := merger.Apply(context.Background(), BuildDelta(nil, "nothing to do"))
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Equal(t, before+1, pb.DeltasApplied())
	assert.Len(t, merger.History(), 1)
}

func TestMergerNilDelta(t *testing.T) {
	pb, err := New(newTestConfig())
	require.NoError(t, err)
	merger := NewMerger(pb, nil)

	_, err = merger.Apply(context.Background(), nil)
	assert.True(t, aceerrors.HasCode(err, aceerrors.InvalidOperation))
}

func TestMergerConcurrentApplies(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxSize = 50
	pb, err := New(cfg)
	require.NoError(t, err)
	merger := NewMerger(pb, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				content := "insight " + string(rune('a'+n)) + string(rune('0'+j))
				_, err := merger.Apply(context.Background(), BuildDelta([]ProposedOperation{
					addOp(content, "insight", "concurrent"),
				}, ""))
				assert.NoError(t, err)
			}
		}(i)
	}

	// Concurrent readers against in-flight applies.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				items := pb.All()
				summary := pb.Summary()
				assert.Equal(t, len(items), summary.Size)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, pb.Size(), 50)
	assert.Equal(t, int64(50), pb.DeltasApplied())
}

func TestEnsureEmbeddings(t *testing.T) {
	now := time.Now()
	cfg := newTestConfig()
	pb, err := Restore(cfg, []KnowledgeItem{
		{ID: "a", Content: "first", Kind: KindInsight, Section: "s", CreatedAt: now, UpdatedAt: now},
		{ID: "b", Content: "second", Kind: KindInsight, Section: "s", CreatedAt: now, UpdatedAt: now},
		{ID: "c", Content: "third", Kind: KindInsight, Section: "s", CreatedAt: now, UpdatedAt: now, Embedding: []float32{1, 0, 0, 0}},
	})
	require.NoError(t, err)

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"first":  {0, 1, 0, 0},
		"second": {0, 0, 1, 0},
	}}
	merger := NewMerger(pb, embedder)

	updated, err := merger.EnsureEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	// Already-embedded items are not re-sent to the provider.
	assert.Equal(t, 2, embedder.calls)

	item, err := pb.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 0}, item.Embedding)
}

func TestEnsureEmbeddingsAllFail(t *testing.T) {
	now := time.Now()
	pb, err := Restore(newTestConfig(), []KnowledgeItem{
		{ID: "a", Content: "first", Kind: KindInsight, Section: "s", CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)

	merger := NewMerger(pb, &stubEmbedder{fail: true})
	_, err = merger.EnsureEmbeddings(context.Background())
	assert.True(t, aceerrors.HasCode(err, aceerrors.EmbeddingUnavailable))
}

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello world"},
		{"  spaces  ", "spaces"},
		{"multiple   spaces", "multiple spaces"},
		{"UPPER lower", "upper lower"},
		{"\ttabs\nand\nnewlines", "tabs and newlines"},
		{"ﬁxed width", "fixed width"}, // NFKC folds the ligature
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeContent(tt.input))
		})
	}
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Check nil after type assertion")
	expected := map[string]bool{
		"check": true, "nil": true, "after": true,
		"type": true, "assertion": true,
	}
	assert.Equal(t, expected, tokens)
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     map[string]bool
		expected float64
	}{
		{"identical", map[string]bool{"a": true, "b": true}, map[string]bool{"a": true, "b": true}, 1.0},
		{"disjoint", map[string]bool{"a": true}, map[string]bool{"b": true}, 0.0},
		{"half overlap", map[string]bool{"a": true, "b": true}, map[string]bool{"b": true, "c": true}, 1.0 / 3.0},
		{"empty both", map[string]bool{}, map[string]bool{}, 1.0},
		{"empty one", map[string]bool{"a": true}, map[string]bool{}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, jaccardSimilarity(tt.a, tt.b), 0.001)
		})
	}
}
