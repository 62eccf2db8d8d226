// Package indexer ingests parsed screenplays into the search index.
//
// The pipeline is: validate -> upsert rows -> chunk bible notes ->
// generate embeddings. Screenplay parsing happens upstream; the indexer
// starts from a types.Script, usually loaded from the parser's JSON
// handoff via LoadScriptFile.
//
// Re-indexing a title replaces its scenes, lines, bible notes, and
// embeddings wholesale, so a re-run after script revisions never leaves
// stale rows behind.
//
// Embedding generation runs in batched errgroup workers. Provider
// failures are recorded in the run's Statistics but never abort the run:
// a partially embedded index still serves lexical search, and the
// searcher downgrades gracefully when vectors are missing.
//
// A process-wide IndexLock rejects concurrent runs with
// ErrIndexInProgress rather than queueing them.
package indexer
