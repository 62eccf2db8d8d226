//go:build sqlite_vec
// +build sqlite_vec

package storage

// This file is compiled when building with CGO and the sqlite_vec tag.
// It enables the sqlite-vec extension for fast vector similarity search.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec" ./...
//
// The cgo build provides:
//   - Native cosine distance computed at the database layer (sqlite-vec)
//   - FTS5 full-text search over scene text
//   - Fast C implementation for vector operations
//   - Recommended for production deployments
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// FTS5Available routes free-text scene filters through the scenes_fts
	// index instead of LIKE scans.
	FTS5Available = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
