package storage

import (
	"context"
	"time"

	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/internal/vector"
	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying indexed
// screenplay data.
type Storage interface {
	// Script operations
	UpsertScript(ctx context.Context, script *types.Script) error
	GetScriptByTitle(ctx context.Context, title string) (*types.Script, error)
	ListScripts(ctx context.Context) ([]*types.Script, error)

	// Scene operations
	GetScene(ctx context.Context, sceneID int64) (*types.Scene, error)
	ListScenes(ctx context.Context, scriptID int64) ([]*types.Scene, error)

	// Bible operations
	InsertBibleChunks(ctx context.Context, chunks []types.BibleChunk) error
	GetBibleChunk(ctx context.Context, chunkID int64) (*types.BibleChunk, error)
	ListBibleChunks(ctx context.Context, scriptID int64) ([]*types.BibleChunk, error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, entityType types.EntityType, entityID int64, model string) (*Embedding, error)

	// Search operations
	SearchScenes(ctx context.Context, q *query.SearchQuery) ([]types.SearchResult, error)
	CountScenes(ctx context.Context, q *query.SearchQuery) (int, error)
	SearchBible(ctx context.Context, q *query.SearchQuery) ([]types.SearchResult, error)
	CountBible(ctx context.Context, q *query.SearchQuery) (int, error)
	FetchCandidates(ctx context.Context, q *query.SearchQuery, model string) ([]vector.Candidate, error)
	SearchVectorNative(ctx context.Context, q *query.SearchQuery, queryVector []float32, model string, limit int) ([]vector.SimilarityResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*IndexStatus, error)

	// Database operations
	Close() error
}

// Embedding represents a stored vector embedding for a scene or bible chunk.
// Vector holds the dimension-prefixed blob produced by the vector package.
type Embedding struct {
	ID         int64
	EntityType types.EntityType
	EntityID   int64
	Model      string
	Provider   string
	Vector     []byte
	Dimension  int
	CreatedAt  time.Time
}

// IndexStatus contains statistics about the indexed library
type IndexStatus struct {
	ScriptCount     int
	SceneCount      int
	LineCount       int
	BibleChunkCount int
	EmbeddingCount  int
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
}
