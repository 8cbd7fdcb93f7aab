// Package playbook implements the evolving knowledge base ("playbook") at
// the heart of Agentic Context Engineering: an in-memory store of typed
// knowledge items that conditions an LLM-driven problem solver and improves
// it over repeated query cycles without retraining the model.
//
// # Architecture
//
// The engine is built from five components:
//
//   - KnowledgeItem: one atomic, typed piece of knowledge with usefulness
//     counters and an optional cached embedding
//   - Playbook: the sectioned, size-bounded store; reads always see a
//     consistent snapshot
//   - Retriever: deterministic top-k semantic retrieval over cached
//     embeddings
//   - DeltaBuilder: validates raw proposed operations from the reasoning
//     provider into an immutable Delta
//   - Merger: applies a Delta as one transaction covering deduplication,
//     counter updates, deprecation, and eviction
//
// # Basic Usage
//
//	cfg := playbook.DefaultConfig()
//	pb, err := playbook.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	merger := playbook.NewMerger(pb, embedder)
//	delta := playbook.BuildDelta(proposed, "reflection on query 42")
//	result, err := merger.Apply(ctx, delta)
//
//	retriever := playbook.NewRetriever(pb, embedder)
//	hits, err := retriever.Retrieve(ctx, "paginate the issues API", 10)
//
// # Deduplication
//
// Adding content that is already present in the target section reinforces
// the existing item instead of growing the playbook. Comparison is
// semantic (cosine similarity over embeddings) when both vectors exist,
// and degrades to normalized equality plus token-set similarity when the
// embedding provider is unavailable.
//
// # Concurrency
//
// Any number of retrievals and reads may run concurrently. Merger.Apply
// calls on the same playbook serialize on a single writer section; once a
// delta enters the mutate phase it runs to completion. Embedding and
// reasoning calls are the only suspension points.
//
// # Persistence
//
// Playbooks round-trip through JSON snapshots or a SQLite store. The
// sections index is derived on load; duplicate ids or missing fields abort
// the load with PersistenceCorruption.
package playbook
