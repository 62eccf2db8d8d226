package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/scriptcontext-mcp/internal/embedder"
	"github.com/dshills/scriptcontext-mcp/internal/storage"
	"github.com/dshills/scriptcontext-mcp/internal/vector"
	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

// ErrIndexInProgress is returned when an index run is already active.
var ErrIndexInProgress = errors.New("indexing already in progress")

// Indexer coordinates the ingestion pipeline: upsert rows, chunk bible
// notes, generate embeddings. Parsing happens upstream; the indexer
// consumes an already-structured Script.
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder // nil skips embedding generation
	logger   *slog.Logger
	lock     IndexLock
}

// Config tunes one index run.
type Config struct {
	Workers        int  // Concurrent embedding batches (default: runtime.NumCPU())
	EmbedBatchSize int  // Texts per provider call (default: embedder.DefaultBatchSize)
	SkipEmbeddings bool // Index rows only, leave the embedding table untouched
}

// Statistics reports what one index run did.
type Statistics struct {
	ScenesIndexed     int
	LinesIndexed      int
	BibleChunks       int
	EmbeddingsCreated int
	EmbeddingsFailed  int
	Duration          time.Duration
	ErrorMessages     []string
}

// New creates an Indexer. The embedder may be nil for lexical-only
// indexes.
func New(store storage.Storage, emb embedder.Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		storage:  store,
		embedder: emb,
		logger:   logger,
	}
}

// IndexScript ingests one script: validates it, replaces its rows,
// chunks bible notes, and embeds scenes and chunks. Re-indexing the same
// title replaces prior content. Only one run may be active at a time.
func (idx *Indexer) IndexScript(ctx context.Context, script *types.Script, config *Config) (*Statistics, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.EmbedBatchSize <= 0 {
		config.EmbedBatchSize = embedder.DefaultBatchSize
	}

	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	stats := &Statistics{}

	if err := idx.storage.UpsertScript(ctx, script); err != nil {
		return nil, fmt.Errorf("upsert script: %w", err)
	}
	stats.ScenesIndexed = len(script.Scenes)
	for i := range script.Scenes {
		stats.LinesIndexed += len(script.Scenes[i].Lines)
	}

	chunks := ChunkBibleNotes(script)
	if len(chunks) > 0 {
		if err := idx.storage.InsertBibleChunks(ctx, chunks); err != nil {
			return nil, fmt.Errorf("insert bible chunks: %w", err)
		}
	}
	stats.BibleChunks = len(chunks)

	if idx.embedder != nil && !config.SkipEmbeddings {
		idx.embedAll(ctx, script, chunks, config, stats)
	}

	idx.logger.Info("script indexed",
		"title", script.Title,
		"scenes", stats.ScenesIndexed,
		"bible_chunks", stats.BibleChunks,
		"embeddings", stats.EmbeddingsCreated,
		"embedding_failures", stats.EmbeddingsFailed,
		"duration", time.Since(start))

	stats.Duration = time.Since(start)
	return stats, nil
}

// embedTarget pairs an entity with the text it embeds under.
type embedTarget struct {
	entityType types.EntityType
	entityID   int64
	text       string
}

// embedAll generates and stores embeddings for every scene and bible
// chunk. Failed batches are counted and logged, never fatal: a partially
// embedded index still serves lexical search.
func (idx *Indexer) embedAll(ctx context.Context, script *types.Script, chunks []types.BibleChunk, config *Config, stats *Statistics) {
	targets := make([]embedTarget, 0, len(script.Scenes)+len(chunks))
	for i := range script.Scenes {
		sc := &script.Scenes[i]
		targets = append(targets, embedTarget{
			entityType: types.EntityScene,
			entityID:   sc.ID,
			text:       sc.EmbeddingText(),
		})
	}
	for i := range chunks {
		targets = append(targets, embedTarget{
			entityType: types.EntityBibleChunk,
			entityID:   chunks[i].ID,
			text:       chunks[i].Title + "\n" + chunks[i].Content,
		})
	}

	var mu sync.Mutex // guards stats counters and ErrorMessages
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	for i := 0; i < len(targets); i += config.EmbedBatchSize {
		end := i + config.EmbedBatchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[i:end]

		g.Go(func() error {
			created, err := idx.embedBatch(gctx, batch)
			mu.Lock()
			defer mu.Unlock()
			stats.EmbeddingsCreated += created
			if err != nil {
				stats.EmbeddingsFailed += len(batch) - created
				stats.ErrorMessages = append(stats.ErrorMessages, err.Error())
				idx.logger.Warn("embedding batch failed", "error", err, "batch_size", len(batch))
			}
			return nil // embedding failures do not abort the run
		})
	}

	_ = g.Wait()
}

// embedBatch embeds one batch of targets and persists the vectors.
// Returns how many embeddings were stored.
func (idx *Indexer) embedBatch(ctx context.Context, batch []embedTarget) (int, error) {
	texts := make([]string, len(batch))
	for i, tgt := range batch {
		texts[i] = tgt.text
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return 0, fmt.Errorf("generate embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(batch) {
		return 0, fmt.Errorf("provider returned %d embeddings for %d texts", len(resp.Embeddings), len(batch))
	}

	created := 0
	for i, emb := range resp.Embeddings {
		row := &storage.Embedding{
			EntityType: batch[i].entityType,
			EntityID:   batch[i].entityID,
			Model:      resp.Model,
			Provider:   resp.Provider,
			Vector:     vector.Encode(emb.Vector),
			Dimension:  emb.Dimension,
		}
		if err := idx.storage.UpsertEmbedding(ctx, row); err != nil {
			return created, fmt.Errorf("store embedding for %s %d: %w", batch[i].entityType, batch[i].entityID, err)
		}
		created++
	}
	return created, nil
}
