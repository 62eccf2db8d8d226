package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scriptcontext-mcp/internal/vector"
)

func TestMergeRankedOrdersAcrossKinds(t *testing.T) {
	// Scene and bible hits arrive in separate per-kind batches; the merge
	// must interleave them by score, not keep batch order.
	results := []vector.SimilarityResult{
		{ID: 1, Kind: "scene", Score: 0.91},
		{ID: 2, Kind: "scene", Score: 0.40},
		{ID: 10, Kind: "bible_chunk", Score: 0.87},
		{ID: 11, Kind: "bible_chunk", Score: 0.62},
	}

	merged := mergeRanked(results, 10)

	require.Len(t, merged, 4)
	assert.Equal(t, int64(1), merged[0].ID)
	assert.Equal(t, int64(10), merged[1].ID)
	assert.Equal(t, int64(11), merged[2].ID)
	assert.Equal(t, int64(2), merged[3].ID)
	for i := 1; i < len(merged); i++ {
		assert.GreaterOrEqual(t, merged[i-1].Score, merged[i].Score)
	}
}

func TestMergeRankedTrimsToLimit(t *testing.T) {
	results := []vector.SimilarityResult{
		{ID: 1, Kind: "scene", Score: 0.3},
		{ID: 2, Kind: "bible_chunk", Score: 0.9},
		{ID: 3, Kind: "scene", Score: 0.5},
	}

	merged := mergeRanked(results, 2)

	require.Len(t, merged, 2)
	assert.Equal(t, int64(2), merged[0].ID)
	assert.Equal(t, int64(3), merged[1].ID)
}

func TestMergeRankedStableOnTies(t *testing.T) {
	results := []vector.SimilarityResult{
		{ID: 1, Kind: "scene", Score: 0.5},
		{ID: 2, Kind: "bible_chunk", Score: 0.5},
	}

	merged := mergeRanked(results, 10)

	require.Len(t, merged, 2)
	assert.Equal(t, int64(1), merged[0].ID)
	assert.Equal(t, int64(2), merged[1].ID)
}

func TestNativeSearchSQLGuardsVectorBlobs(t *testing.T) {
	// A malformed blob reaching vec_distance_cosine errors the whole
	// statement, so bad rows have to be excluded in the WHERE clause.
	sqlQuery := nativeSearchSQL("scenes", " AND scripts.title = ?")

	assert.Contains(t, sqlQuery, "e.dimension = ?")
	assert.Contains(t, sqlQuery, "length(e.vector) = 4 + 4 * e.dimension")
	assert.Contains(t, sqlQuery, "vec_distance_cosine(substr(e.vector, 5), ?)")
	assert.Contains(t, sqlQuery, "ORDER BY distance ASC")
	assert.Contains(t, sqlQuery, "AND scripts.title = ?")
}
