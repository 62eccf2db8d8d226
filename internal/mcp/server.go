package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/scriptcontext-mcp/internal/embedder"
	"github.com/dshills/scriptcontext-mcp/internal/indexer"
	"github.com/dshills/scriptcontext-mcp/internal/searcher"
	"github.com/dshills/scriptcontext-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "scriptcontext-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// EnvDBPath overrides the database location
	EnvDBPath = "SCRIPTCONTEXT_DB_PATH"
)

// Server wraps the MCP server with application dependencies.
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *slog.Logger
	dbFile   string
}

// ResolveDBPath picks the database file location: explicit argument,
// then SCRIPTCONTEXT_DB_PATH, then ~/.scriptcontext/scripts.db.
func ResolveDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dbPath = os.Getenv(EnvDBPath)
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".scriptcontext", "scripts.db")
	}
	return dbPath, nil
}

// NewServer creates a new MCP server instance. An unavailable embedding
// provider is logged and disables the semantic path; it never blocks
// startup.
func NewServer(dbPath string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dbFile, err := ResolveDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Shared between indexer and searcher so embeddings cached during
	// indexing serve query embedding too.
	emb, err := embedder.NewFromEnv()
	if err != nil {
		logger.Warn("embedding provider unavailable, semantic search disabled", "error", err)
		emb = nil
	}

	srch, err := searcher.New(searcher.Config{
		DBPath:   dbFile,
		Embedder: emb,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		indexer:  indexer.New(store, emb, logger),
		searcher: srch,
		logger:   logger,
		dbFile:   dbFile,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.mcp.AddTool(indexScriptTool(), s.handleIndexScript)
	s.mcp.AddTool(searchScenesTool(), s.handleSearchScenes)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
