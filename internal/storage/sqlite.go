package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrDatabaseNotFound is returned when the database file is missing.
	// No partial result is possible without the store, so this is fatal
	// for the call.
	ErrDatabaseNotFound = errors.New("database not found: run the indexer (scriptctl index) to create it")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db       *sql.DB
	readOnly bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a read-write SQLite storage instance, applying
// pending migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// OpenReadOnly opens an existing database for the duration of a single
// search call. The connection is opened in read-only URI mode with
// query_only enforced; the search path never writes. A missing file is
// ErrDatabaseNotFound.
func OpenReadOnly(dbPath string) (*SQLiteStorage, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w (looked in %s)", ErrDatabaseNotFound, dbPath)
	}

	db, err := sql.Open(DriverName, "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database read-only: %w", err)
	}

	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enforce query_only: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStorage{db: db, readOnly: true}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Script operations

// UpsertScript writes a script and all of its scenes, character lines,
// bible notes, and bible chunks in one transaction. Entity IDs are filled
// in on the passed structure.
func (s *SQLiteStorage) UpsertScript(ctx context.Context, script *types.Script) error {
	if err := script.Validate(); err != nil {
		return fmt.Errorf("invalid script: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO scripts (title, author, season, episode, metadata, total_scenes, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			author = excluded.author,
			season = excluded.season,
			episode = excluded.episode,
			metadata = excluded.metadata,
			total_scenes = excluded.total_scenes,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
	`, script.Title, script.Author, script.Season, script.Episode,
		script.Metadata, len(script.Scenes), now, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert script: %w", err)
	}

	// LastInsertId is unreliable after ON CONFLICT UPDATE; read it back.
	if script.ID, err = res.LastInsertId(); err != nil || script.ID == 0 {
		if err := tx.QueryRowContext(ctx, "SELECT id FROM scripts WHERE title = ?", script.Title).Scan(&script.ID); err != nil {
			return fmt.Errorf("failed to resolve script id: %w", err)
		}
	}

	// Re-indexing replaces the script's scenes and bible notes wholesale.
	// Embeddings have no FK on their entities, so clear them first.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings WHERE
			(entity_type = 'scene' AND entity_id IN (SELECT id FROM scenes WHERE script_id = ?)) OR
			(entity_type = 'bible_chunk' AND entity_id IN (SELECT id FROM bible_chunks WHERE script_id = ?))
	`, script.ID, script.ID); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM scenes WHERE script_id = ?", script.ID); err != nil {
		return fmt.Errorf("failed to clear scenes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM bible_notes WHERE script_id = ?", script.ID); err != nil {
		return fmt.Errorf("failed to clear bible notes: %w", err)
	}

	for i := range script.Scenes {
		scene := &script.Scenes[i]
		scene.ScriptID = script.ID
		hash := scene.ContentHash()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO scenes (script_id, scene_number, heading, location, time_of_day, content, content_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, scene.ScriptID, scene.SceneNumber, scene.Heading, scene.Location,
			scene.TimeOfDay, scene.Content, hash[:], now, now)
		if err != nil {
			return fmt.Errorf("failed to insert scene %d: %w", scene.SceneNumber, err)
		}
		if scene.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for j := range scene.Lines {
			line := &scene.Lines[j]
			line.SceneID = scene.ID
			res, err := tx.ExecContext(ctx, `
				INSERT INTO character_lines (scene_id, character, dialogue, parenthetical, line_order, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, line.SceneID, line.Character, line.Dialogue, line.Parenthetical, j, now)
			if err != nil {
				return fmt.Errorf("failed to insert line for scene %d: %w", scene.SceneNumber, err)
			}
			if line.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			line.LineOrder = j
		}
	}

	for i := range script.BibleNotes {
		note := &script.BibleNotes[i]
		note.ScriptID = script.ID
		res, err := tx.ExecContext(ctx, `
			INSERT INTO bible_notes (script_id, title, content, created_at)
			VALUES (?, ?, ?, ?)
		`, note.ScriptID, note.Title, note.Content, now)
		if err != nil {
			return fmt.Errorf("failed to insert bible note %q: %w", note.Title, err)
		}
		if note.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// InsertBibleChunks writes the chunked form of a bible note.
func (s *SQLiteStorage) InsertBibleChunks(ctx context.Context, chunks []types.BibleChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for i := range chunks {
		c := &chunks[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO bible_chunks (note_id, script_id, title, content, chunk_order, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.NoteID, c.ScriptID, c.Title, c.Content, c.ChunkOrder, now)
		if err != nil {
			return fmt.Errorf("failed to insert bible chunk: %w", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) GetScriptByTitle(ctx context.Context, title string) (*types.Script, error) {
	var script types.Script
	var lastIndexed sql.NullTime
	var author, metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, season, episode, metadata, last_indexed_at
		FROM scripts WHERE title = ?
	`, title).Scan(&script.ID, &script.Title, &author, &script.Season,
		&script.Episode, &metadata, &lastIndexed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	script.Author = author.String
	script.Metadata = metadata.String
	return &script, nil
}

func (s *SQLiteStorage) ListScripts(ctx context.Context) ([]*types.Script, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, season, episode, metadata
		FROM scripts ORDER BY season, episode, title
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var scripts []*types.Script
	for rows.Next() {
		var script types.Script
		var author, metadata sql.NullString
		if err := rows.Scan(&script.ID, &script.Title, &author,
			&script.Season, &script.Episode, &metadata); err != nil {
			return nil, err
		}
		script.Author = author.String
		script.Metadata = metadata.String
		scripts = append(scripts, &script)
	}
	return scripts, rows.Err()
}

// Scene operations

func (s *SQLiteStorage) GetScene(ctx context.Context, sceneID int64) (*types.Scene, error) {
	var scene types.Scene
	var location, timeOfDay, content sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, script_id, scene_number, heading, location, time_of_day, content
		FROM scenes WHERE id = ?
	`, sceneID).Scan(&scene.ID, &scene.ScriptID, &scene.SceneNumber,
		&scene.Heading, &location, &timeOfDay, &content)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	scene.Location = location.String
	scene.TimeOfDay = timeOfDay.String
	scene.Content = content.String

	lines, err := s.listLines(ctx, scene.ID)
	if err != nil {
		return nil, err
	}
	scene.Lines = lines
	return &scene, nil
}

func (s *SQLiteStorage) ListScenes(ctx context.Context, scriptID int64) ([]*types.Scene, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, script_id, scene_number, heading, location, time_of_day, content
		FROM scenes WHERE script_id = ? ORDER BY scene_number
	`, scriptID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var scenes []*types.Scene
	for rows.Next() {
		var scene types.Scene
		var location, timeOfDay, content sql.NullString
		if err := rows.Scan(&scene.ID, &scene.ScriptID, &scene.SceneNumber,
			&scene.Heading, &location, &timeOfDay, &content); err != nil {
			return nil, err
		}
		scene.Location = location.String
		scene.TimeOfDay = timeOfDay.String
		scene.Content = content.String
		scenes = append(scenes, &scene)
	}
	return scenes, rows.Err()
}

func (s *SQLiteStorage) listLines(ctx context.Context, sceneID int64) ([]types.CharacterLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scene_id, character, dialogue, parenthetical, line_order
		FROM character_lines WHERE scene_id = ? ORDER BY line_order
	`, sceneID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []types.CharacterLine
	for rows.Next() {
		var line types.CharacterLine
		var dialogue, parenthetical sql.NullString
		if err := rows.Scan(&line.ID, &line.SceneID, &line.Character,
			&dialogue, &parenthetical, &line.LineOrder); err != nil {
			return nil, err
		}
		line.Dialogue = dialogue.String
		line.Parenthetical = parenthetical.String
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Bible operations

func (s *SQLiteStorage) GetBibleChunk(ctx context.Context, chunkID int64) (*types.BibleChunk, error) {
	var chunk types.BibleChunk
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, note_id, script_id, title, content, chunk_order
		FROM bible_chunks WHERE id = ?
	`, chunkID).Scan(&chunk.ID, &chunk.NoteID, &chunk.ScriptID,
		&title, &chunk.Content, &chunk.ChunkOrder)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	chunk.Title = title.String
	return &chunk, nil
}

func (s *SQLiteStorage) ListBibleChunks(ctx context.Context, scriptID int64) ([]*types.BibleChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, note_id, script_id, title, content, chunk_order
		FROM bible_chunks WHERE script_id = ? ORDER BY note_id, chunk_order
	`, scriptID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*types.BibleChunk
	for rows.Next() {
		var chunk types.BibleChunk
		var title sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.NoteID, &chunk.ScriptID,
			&title, &chunk.Content, &chunk.ChunkOrder); err != nil {
			return nil, err
		}
		chunk.Title = title.String
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// Embedding operations

// UpsertEmbedding stores or replaces the embedding for an entity. Stored
// blobs are written once and never mutated; re-embedding replaces the row.
func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (entity_type, entity_id, embedding_model, provider, vector, dimension, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id, embedding_model) DO UPDATE SET
			provider = excluded.provider,
			vector = excluded.vector,
			dimension = excluded.dimension,
			created_at = excluded.created_at
	`, embedding.EntityType, embedding.EntityID, embedding.Model,
		embedding.Provider, embedding.Vector, embedding.Dimension, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		embedding.ID = id
	}
	return nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, entityType types.EntityType, entityID int64, model string) (*Embedding, error) {
	var emb Embedding
	err := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_id, embedding_model, provider, vector, dimension, created_at
		FROM embeddings
		WHERE entity_type = ? AND entity_id = ? AND embedding_model = ?
	`, entityType, entityID, model).Scan(&emb.ID, &emb.EntityType, &emb.EntityID,
		&emb.Model, &emb.Provider, &emb.Vector, &emb.Dimension, &emb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emb, nil
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*IndexStatus, error) {
	status := &IndexStatus{
		Health: HealthStatus{DatabaseAccessible: true},
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM scripts", &status.ScriptCount},
		{"SELECT COUNT(*) FROM scenes", &status.SceneCount},
		{"SELECT COUNT(*) FROM character_lines", &status.LineCount},
		{"SELECT COUNT(*) FROM bible_chunks", &status.BibleChunkCount},
		{"SELECT COUNT(*) FROM embeddings", &status.EmbeddingCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}
	status.Health.EmbeddingsAvailable = status.EmbeddingCount > 0

	var lastIndexed sql.NullTime
	err := s.db.QueryRowContext(ctx, "SELECT MAX(last_indexed_at) FROM scripts").Scan(&lastIndexed)
	if err == nil && lastIndexed.Valid {
		status.LastIndexedAt = lastIndexed.Time
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	return status, nil
}
