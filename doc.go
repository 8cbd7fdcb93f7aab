// Package ace is a Go implementation of Agentic Context Engineering: an
// evolving playbook of typed knowledge items that conditions an LLM-driven
// problem solver and improves it over repeated query cycles without
// retraining the model.
//
// The engine turns trajectory feedback into incremental playbook updates.
// After each solved query, a reflection step proposes operations (add,
// reinforce, deprecate) which are validated into an immutable delta and
// merged into the playbook under deduplication, usefulness tracking, and a
// hard size bound. Retrieval is deterministic top-k semantic search over
// cached embeddings, degrading gracefully when the embedding provider is
// unavailable.
//
// Key Components:
//
//   - pkg/playbook: the core data model and engine. KnowledgeItem, the
//     sectioned Playbook store, DeltaBuilder, Merger, Retriever, usefulness
//     reporting, and JSON/SQLite persistence.
//
//   - pkg/llms: external collaborator clients. An Ollama embedding provider
//     and an Anthropic reflection client that turns feedback into proposed
//     operations, plus a caching embedder wrapper.
//
//   - pkg/config: multi-source configuration (defaults, YAML file,
//     environment) with validation.
//
//   - pkg/metrics: Prometheus collectors for playbook size and merge
//     activity, and evaluation helpers (exact match, token F1) that score
//     answers into reinforcement outcomes.
//
//   - pkg/reporting: a read-only HTTP surface exposing playbook summaries,
//     sections, item lookup, retrieval, and merge history.
//
//   - pkg/errors, pkg/logging: structured error codes and severity-based
//     logging used throughout.
//
// The acectl command under cmd/ wraps the library for operational use:
// inspecting a playbook, retrieving against it, applying operation files,
// running reflection, and serving the reporting API.
package ace
