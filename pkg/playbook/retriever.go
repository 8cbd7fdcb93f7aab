package playbook

import (
	"context"
	"sort"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// ScoredItem pairs a retrieved item with its relevance score.
type ScoredItem struct {
	Item  KnowledgeItem `json:"item"`
	Score float64       `json:"score"`
}

// Retriever selects the k most relevant items for a query. Retrieval never
// mutates the playbook and is deterministic for an unchanged playbook and
// query.
type Retriever struct {
	playbook *Playbook
	embedder Embedder
	logger   *logging.Logger
}

// NewRetriever creates a retriever. The embedder may be nil; retrieval then
// degrades to minimum-score ranking with the deterministic tie-break.
func NewRetriever(pb *Playbook, embedder Embedder) *Retriever {
	return &Retriever{
		playbook: pb,
		embedder: embedder,
		logger:   logging.GetLogger(),
	}
}

// Retrieve returns up to k items ranked by relevance to the query. If k is
// non-positive the configured default count is used. Items without a cached
// embedding score the configured minimum and are never excluded outright;
// deprecated items rank below everything else.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]ScoredItem, error) {
	if err := errors.CheckContext(ctx, "retrieve"); err != nil {
		return nil, err
	}

	cfg := r.playbook.Config()
	if k <= 0 {
		k = cfg.MaxRetrieved
	}

	var queryVec []float32
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, query)
		if err != nil {
			// Degrade to minimum-score ranking rather than failing
			// the retrieval.
			r.logger.Warn(ctx, "query embedding unavailable, using fallback ranking: %v", err)
		} else {
			queryVec = vec
		}
	}

	items := r.playbook.All()
	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		scored = append(scored, ScoredItem{
			Item:  item,
			Score: r.score(queryVec, &item, cfg.MinScore),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Item.Score() != b.Item.Score() {
			return a.Item.Score() > b.Item.Score()
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.Before(b.Item.CreatedAt)
		}
		return a.Item.ID < b.Item.ID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// score computes the relevance of one item. Deprecated items have their
// retrieval priority zeroed out below the minimum.
func (r *Retriever) score(queryVec []float32, item *KnowledgeItem, minScore float64) float64 {
	if item.Deprecated {
		return minScore - 1
	}
	if queryVec == nil || item.Embedding == nil {
		return minScore
	}
	return cosineSimilarity(queryVec, item.Embedding)
}
