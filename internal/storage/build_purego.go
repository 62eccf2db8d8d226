//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// This file is compiled when building without CGO or with the purego tag.
// It uses a pure Go SQLite implementation without the sqlite-vec extension.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// The pure Go implementation provides:
//   - No C compiler required
//   - Cross-platform compilation
//   - Vector similarity computed in Go over decoded blobs
//   - Suitable for development and smaller screenplay libraries
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// FTS5Available routes free-text scene filters through the scenes_fts
	// index. The pure Go build keeps the portable LIKE scan instead.
	FTS5Available = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
