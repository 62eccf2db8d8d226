// Package storage provides SQLite-backed persistence for indexed screenplay
// content and the parameterized SQL assembly used by search.
//
// # Build Modes
//
// Two SQLite drivers are supported via build tags:
//
//   - sqlite_vec (cgo): mattn/go-sqlite3 with the sqlite-vec extension,
//     enabling native cosine-distance search at the database layer.
//   - purego (default): modernc.org/sqlite, with vector similarity computed
//     in Go over decoded embedding blobs.
//
// # Query Building
//
// BuildSearchQuery and BuildCountQuery share one filter-assembly routine so
// the page query and the count query always agree on which rows qualify.
// Filters accumulate typed predicate+parameter pairs; user text is always
// bound, never interpolated into SQL.
//
// # Search Reads
//
// The search path opens short-lived read-only connections (OpenReadOnly)
// with query_only enforced and never writes. Writes happen only through the
// indexer using NewSQLiteStorage.
package storage
