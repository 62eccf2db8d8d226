package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/internal/vector"
	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

func TestUpsertScriptRoundTrip(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	seedSearchFixture(t, store)

	script, err := store.GetScriptByTitle(ctx, "Pilot")
	require.NoError(t, err)
	assert.Equal(t, "R. Alvarez", script.Author)
	assert.Equal(t, 1, script.Season)

	scenes, err := store.ListScenes(ctx, script.ID)
	require.NoError(t, err)
	require.Len(t, scenes, 3)
	assert.Equal(t, "INT. COFFEE SHOP - DAY", scenes[0].Heading)

	scene, err := store.GetScene(ctx, scenes[0].ID)
	require.NoError(t, err)
	require.Len(t, scene.Lines, 2)
	assert.Equal(t, "SARAH", scene.Lines[0].Character)
	assert.Equal(t, "whispering", scene.Lines[1].Parenthetical)
}

func TestUpsertScriptReplacesScenes(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	script := &types.Script{
		Title:  "Pilot",
		Scenes: []types.Scene{{SceneNumber: 1, Heading: "INT. OLD PLACE - DAY"}},
	}
	require.NoError(t, store.UpsertScript(ctx, script))
	firstID := script.ID

	script2 := &types.Script{
		Title:  "Pilot",
		Scenes: []types.Scene{{SceneNumber: 1, Heading: "INT. NEW PLACE - DAY"}},
	}
	require.NoError(t, store.UpsertScript(ctx, script2))
	assert.Equal(t, firstID, script2.ID, "re-index keeps the script row")

	scenes, err := store.ListScenes(ctx, script2.ID)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "INT. NEW PLACE - DAY", scenes[0].Heading)
}

func TestGetScriptNotFound(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetScriptByTitle(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmbeddingUpsertReplaces(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	ctx := context.Background()

	first := vector.Encode([]float32{1, 0, 0})
	emb := &Embedding{
		EntityType: types.EntityScene,
		EntityID:   1,
		Model:      "test-model",
		Provider:   "local",
		Vector:     first,
		Dimension:  3,
	}
	require.NoError(t, store.UpsertEmbedding(ctx, emb))

	// Re-embedding is an upsert that replaces the blob.
	second := vector.Encode([]float32{0, 1, 0})
	emb.Vector = second
	require.NoError(t, store.UpsertEmbedding(ctx, emb))

	got, err := store.GetEmbedding(ctx, types.EntityScene, 1, "test-model")
	require.NoError(t, err)
	assert.Equal(t, second, got.Vector)
	assert.Equal(t, 3, got.Dimension)

	_, err = store.GetEmbedding(ctx, types.EntityScene, 1, "other-model")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchCandidatesScope(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	ctx := context.Background()
	blob := vector.Encode([]float32{1, 0})
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, store.UpsertEmbedding(ctx, &Embedding{
			EntityType: types.EntityScene, EntityID: id,
			Model: "m", Vector: blob, Dimension: 2,
		}))
	}
	require.NoError(t, store.UpsertEmbedding(ctx, &Embedding{
		EntityType: types.EntityBibleChunk, EntityID: 1,
		Model: "m", Vector: blob, Dimension: 2,
	}))

	scenesOnly := mustParse(t, "q", query.Params{Limit: 10})
	candidates, err := store.FetchCandidates(ctx, scenesOnly, "m")
	require.NoError(t, err)
	assert.Len(t, candidates, 3)

	withBible := mustParse(t, "q", query.Params{Limit: 10, IncludeBible: true})
	candidates, err = store.FetchCandidates(ctx, withBible, "m")
	require.NoError(t, err)
	assert.Len(t, candidates, 4)

	onlyBible := mustParse(t, "q", query.Params{Limit: 10, OnlyBible: true})
	candidates, err = store.FetchCandidates(ctx, onlyBible, "m")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, string(types.EntityBibleChunk), candidates[0].Kind)
}

func TestOpenReadOnlyMissingDatabase(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "nope.db"))
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestOpenReadOnlyRejectsWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scripts.db")

	writer, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	seedSearchFixture(t, writer)
	require.NoError(t, writer.Close())

	reader, err := OpenReadOnly(dbPath)
	require.NoError(t, err)
	defer reader.Close()

	// Reads work.
	q := mustParse(t, "espresso", query.Params{Limit: 10})
	results, err := reader.SearchScenes(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Writes are refused by the read-only connection.
	_, err = reader.db.Exec("INSERT INTO scripts (title) VALUES ('x')")
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	status, err := store.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.ScriptCount)
	assert.Equal(t, 3, status.SceneCount)
	assert.Equal(t, 3, status.LineCount)
	assert.Equal(t, 1, status.BibleChunkCount)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.EmbeddingsAvailable)
}
