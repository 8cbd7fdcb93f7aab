package playbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aceerrors "github.com/XiaoConstantine/ace-go/pkg/errors"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Run("scenario D: zero similarity threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SimilarityThreshold = 0

		pb, err := New(cfg)
		assert.Nil(t, pb)
		assert.True(t, aceerrors.HasCode(err, aceerrors.ConfigurationError))
	})

	t.Run("negative threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SimilarityThreshold = -0.2

		_, err := New(cfg)
		assert.True(t, aceerrors.HasCode(err, aceerrors.ConfigurationError))
	})

	t.Run("threshold above one", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SimilarityThreshold = 1.5

		_, err := New(cfg)
		assert.True(t, aceerrors.HasCode(err, aceerrors.ConfigurationError))
	})

	t.Run("non-positive max size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxSize = 0

		_, err := New(cfg)
		assert.True(t, aceerrors.HasCode(err, aceerrors.ConfigurationError))
	})

	t.Run("valid config", func(t *testing.T) {
		pb, err := New(DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, 0, pb.Size())
	})
}

func testItems(now time.Time) []KnowledgeItem {
	return []KnowledgeItem{
		{ID: "a", Content: "first", Kind: KindStrategy, Section: "api", CreatedAt: now, UpdatedAt: now},
		{ID: "b", Content: "second", Kind: KindInsight, Section: "api", CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second)},
		{ID: "c", Content: "third", Kind: KindFormula, Section: "math", CreatedAt: now.Add(2 * time.Second), UpdatedAt: now.Add(2 * time.Second)},
	}
}

func TestRestore(t *testing.T) {
	now := time.Now()

	t.Run("rebuilds sections index", func(t *testing.T) {
		pb, err := Restore(DefaultConfig(), testItems(now))
		require.NoError(t, err)

		assert.Equal(t, 3, pb.Size())
		assert.Equal(t, []string{"api", "math"}, pb.Sections())
		assert.Len(t, pb.BySection("api"), 2)
		assert.Len(t, pb.BySection("math"), 1)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		items := testItems(now)
		items[2].ID = "a"

		_, err := Restore(DefaultConfig(), items)
		assert.True(t, aceerrors.HasCode(err, aceerrors.PersistenceCorruption))
	})

	t.Run("rejects missing content", func(t *testing.T) {
		items := testItems(now)
		items[1].Content = ""

		_, err := Restore(DefaultConfig(), items)
		assert.True(t, aceerrors.HasCode(err, aceerrors.PersistenceCorruption))
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		items := testItems(now)
		items[0].Kind = "wisdom"

		_, err := Restore(DefaultConfig(), items)
		assert.True(t, aceerrors.HasCode(err, aceerrors.PersistenceCorruption))
	})
}

func TestPlaybookReads(t *testing.T) {
	now := time.Now()
	pb, err := Restore(DefaultConfig(), testItems(now))
	require.NoError(t, err)

	t.Run("get", func(t *testing.T) {
		item, err := pb.Get("b")
		require.NoError(t, err)
		assert.Equal(t, "second", item.Content)

		_, err = pb.Get("nope")
		assert.True(t, aceerrors.HasCode(err, aceerrors.NotFound))
	})

	t.Run("all preserves insertion order", func(t *testing.T) {
		items := pb.All()
		require.Len(t, items, 3)
		assert.Equal(t, "a", items[0].ID)
		assert.Equal(t, "b", items[1].ID)
		assert.Equal(t, "c", items[2].ID)
	})

	t.Run("by section of unknown label is empty", func(t *testing.T) {
		assert.Empty(t, pb.BySection("nothing"))
	})

	t.Run("reads return copies", func(t *testing.T) {
		item, err := pb.Get("a")
		require.NoError(t, err)
		item.Content = "mutated"
		item.HelpfulCount = 99

		again, err := pb.Get("a")
		require.NoError(t, err)
		assert.Equal(t, "first", again.Content)
		assert.Equal(t, 0, again.HelpfulCount)
	})
}

func TestKnowledgeItemRatio(t *testing.T) {
	tests := []struct {
		name     string
		helpful  int
		harmful  int
		expected float64
	}{
		{"unrated is neutral", 0, 0, 0.5},
		{"all helpful", 4, 0, 1.0},
		{"all harmful", 0, 3, 0.0},
		{"mixed", 3, 1, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := KnowledgeItem{HelpfulCount: tt.helpful, HarmfulCount: tt.harmful}
			assert.InDelta(t, tt.expected, item.Ratio(), 0.001)
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, ok := ParseKind(string(kind))
		assert.True(t, ok)
		assert.Equal(t, kind, parsed)
	}

	_, ok := ParseKind("wisdom")
	assert.False(t, ok)
	_, ok = ParseKind("")
	assert.False(t, ok)
}

func TestSummary(t *testing.T) {
	now := time.Now()
	items := testItems(now)
	items[0].HelpfulCount = 3
	items[0].HarmfulCount = 1
	items[1].HelpfulCount = 1
	items[2].Deprecated = true

	pb, err := Restore(DefaultConfig(), items)
	require.NoError(t, err)

	s := pb.Summary()
	assert.Equal(t, 3, s.Size)
	assert.Equal(t, DefaultConfig().MaxSize, s.MaxSize)
	assert.Equal(t, map[string]int{"api": 2, "math": 1}, s.Sections)
	assert.Equal(t, map[string]int{"strategy": 1, "insight": 1, "formula": 1}, s.Kinds)
	assert.Equal(t, 2, s.RatedItems)
	assert.InDelta(t, (0.75+1.0)/2, s.AverageHelpfulness, 0.001)
	assert.Equal(t, 1, s.DeprecatedItems)
}
