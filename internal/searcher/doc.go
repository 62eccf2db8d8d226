// Package searcher orchestrates hybrid screenplay search.
//
// Every search runs the lexical SQL path. The semantic path joins in
// when the query mode asks for it (FUZZY always, AUTO for prose-like
// queries) and the index actually holds embeddings. The two result sets
// are fused with semantic matches first, in score order; rows only the
// SQL path found follow in scene order.
//
// # Graceful Downgrade
//
// The semantic path is best-effort. An unreachable embedding provider,
// a timeout, or an empty embedding table downgrades the search to
// lexical-only; the response reports which methods ran via
// SearchMethods, and the caller still gets results:
//
//	resp, err := s.Search(ctx, q)
//	if err != nil {
//	    // only lexical failures surface as errors
//	}
//	if !resp.UsedSemantic() {
//	    // served from SQL alone
//	}
//
// # Concurrency
//
// Each Search opens its own read-only SQLite connection, so searches
// run concurrently with each other and with the indexer. Responses are
// cached by query shape with a short TTL; InvalidateCache drops the
// cache after indexing.
package searcher
