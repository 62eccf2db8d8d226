package vector

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// DimensionMismatchError is returned when two vectors of different lengths
// are compared. Callers treat it like a corrupted candidate and skip,
// never abort the batch.
type DimensionMismatchError struct {
	Left, Right int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %d vs %d", e.Left, e.Right)
}

// Candidate is one stored embedding considered for similarity ranking.
// Kind distinguishes scenes from bible chunks so fused results can be
// resolved back to their rows.
type Candidate struct {
	ID   int64
	Kind string
	Blob []byte
}

// SimilarityResult is a ranked candidate. Scores are in [0, 1] for
// vectors with non-negative components; results are discarded after
// formatting, never persisted.
type SimilarityResult struct {
	ID    int64
	Kind  string
	Score float64
}

// CosineSimilarity computes the cosine similarity between two equal-length
// vectors. A zero vector on either side yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Left: len(a), Right: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// DistanceToSimilarity maps a native cosine distance in [0, 2] to a
// similarity in [0, 1]. Used on the path that reads pre-computed distances
// from the sqlite-vec extension instead of decoding blobs in Go.
func DistanceToSimilarity(distance float64) float64 {
	return 1.0 - distance/2.0
}

// Ranker scores and orders candidate embeddings against a query vector.
type Ranker struct {
	logger *slog.Logger
}

// NewRanker creates a Ranker. A nil logger falls back to slog.Default().
func NewRanker(logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{logger: logger}
}

// RankCandidates decodes each candidate blob, scores it against the query
// vector, and returns candidates at or above threshold sorted by descending
// similarity. Ties keep input order. A candidate that fails to decode or
// whose dimension differs from the query is logged and skipped; the batch
// never fails. skipID excludes a source item when searching for items
// related to itself (0 means no exclusion).
func (r *Ranker) RankCandidates(query []float32, candidates []Candidate, threshold float64, skipID int64) []SimilarityResult {
	results := make([]SimilarityResult, 0, len(candidates))

	for _, c := range candidates {
		if skipID != 0 && c.ID == skipID {
			continue
		}

		vec, err := Decode(c.Blob)
		if err != nil {
			r.logger.Warn("skipping corrupted candidate embedding",
				"kind", c.Kind, "id", c.ID, "err", err)
			continue
		}

		score, err := CosineSimilarity(query, vec)
		if err != nil {
			r.logger.Warn("skipping candidate with mismatched dimension",
				"kind", c.Kind, "id", c.ID, "err", err)
			continue
		}

		if score < threshold {
			continue
		}

		results = append(results, SimilarityResult{ID: c.ID, Kind: c.Kind, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}
