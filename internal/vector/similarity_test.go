package vector

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentity(t *testing.T) {
	vec := []float32{0.2, -0.5, 0.9, 0.002}

	sim, err := CosineSimilarity(vec, vec)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)

	var mismatch *DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Left)
	assert.Equal(t, 3, mismatch.Right)
}

func TestDistanceToSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, DistanceToSimilarity(0))
	assert.Equal(t, 0.5, DistanceToSimilarity(1))
	assert.Equal(t, 0.0, DistanceToSimilarity(2))
}

func TestRankCandidatesOrdering(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := []Candidate{
		{ID: 1, Kind: "scene", Blob: Encode([]float32{0.5, 0.5, 0})},
		{ID: 2, Kind: "scene", Blob: Encode([]float32{1, 0, 0})},
		{ID: 3, Kind: "scene", Blob: Encode([]float32{0.9, 0.1, 0})},
	}

	ranker := NewRanker(slog.Default())
	results := ranker.RankCandidates(query, candidates, 0.0, 0)

	require.Len(t, results, 3)
	assert.Equal(t, int64(2), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
	assert.Equal(t, int64(1), results[2].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestRankCandidatesThreshold(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: 1, Kind: "scene", Blob: Encode([]float32{1, 0})},   // similarity 1.0
		{ID: 2, Kind: "scene", Blob: Encode([]float32{0, 1})},   // similarity 0.0
		{ID: 3, Kind: "scene", Blob: Encode([]float32{1, 0.1})}, // similarity ~0.995
	}

	results := NewRanker(nil).RankCandidates(query, candidates, 0.5, 0)

	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
}

func TestRankCandidatesSkipsCorrupted(t *testing.T) {
	query := []float32{1, 0, 0}

	// One corrupted blob among good candidates above threshold: exactly
	// N-1 results, no error.
	candidates := []Candidate{
		{ID: 1, Kind: "scene", Blob: Encode([]float32{1, 0, 0})},
		{ID: 2, Kind: "scene", Blob: []byte{1, 2}}, // truncated header
		{ID: 3, Kind: "scene", Blob: Encode([]float32{0.9, 0.1, 0})},
		{ID: 4, Kind: "scene", Blob: Encode([]float32{1, 2})}, // wrong dimension
		{ID: 5, Kind: "bible_chunk", Blob: Encode([]float32{0.8, 0.2, 0})},
	}

	results := NewRanker(nil).RankCandidates(query, candidates, 0.1, 0)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, int64(2), r.ID)
		assert.NotEqual(t, int64(4), r.ID)
	}
}

func TestRankCandidatesTotalOverDegenerateInput(t *testing.T) {
	ranker := NewRanker(nil)
	query := []float32{1, 0}

	assert.Empty(t, ranker.RankCandidates(query, nil, 0.5, 0))

	allCorrupt := []Candidate{
		{ID: 1, Kind: "scene", Blob: []byte{0}},
		{ID: 2, Kind: "scene", Blob: make([]byte, 4)},
	}
	assert.Empty(t, ranker.RankCandidates(query, allCorrupt, 0.5, 0))
}

func TestRankCandidatesSkipID(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: 7, Kind: "scene", Blob: Encode([]float32{1, 0})},
		{ID: 8, Kind: "scene", Blob: Encode([]float32{1, 0.01})},
	}

	results := NewRanker(nil).RankCandidates(query, candidates, 0.0, 7)

	require.Len(t, results, 1)
	assert.Equal(t, int64(8), results[0].ID)
}

func TestRankCandidatesStableTies(t *testing.T) {
	query := []float32{1, 0}
	same := Encode([]float32{1, 0})
	candidates := []Candidate{
		{ID: 10, Kind: "scene", Blob: same},
		{ID: 11, Kind: "scene", Blob: same},
		{ID: 12, Kind: "scene", Blob: same},
	}

	results := NewRanker(nil).RankCandidates(query, candidates, 0.0, 0)

	require.Len(t, results, 3)
	assert.Equal(t, int64(10), results[0].ID)
	assert.Equal(t, int64(11), results[1].ID)
	assert.Equal(t, int64(12), results[2].ID)
}
