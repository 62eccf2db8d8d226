package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/internal/vector"
	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

// candidateScope returns which entity kinds the query's bible flags put in
// play for the semantic path.
func candidateScope(q *query.SearchQuery) []types.EntityType {
	if q.OnlyBible {
		return []types.EntityType{types.EntityBibleChunk}
	}
	if q.IncludeBible {
		return []types.EntityType{types.EntityScene, types.EntityBibleChunk}
	}
	return []types.EntityType{types.EntityScene}
}

// scriptScopeFilter narrows candidate embeddings to the query's project and
// episode range. Both scenes and bible_chunks join scripts by script_id, so
// one filter serves either entity table.
func scriptScopeFilter(q *query.SearchQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.Project != "" {
		conditions = append(conditions, "scripts.title = ?")
		args = append(args, q.Project)
	}
	if q.HasRange() {
		conditions = append(conditions,
			"(scripts.season > ? OR (scripts.season = ? AND scripts.episode >= ?))")
		args = append(args, *q.SeasonStart, *q.SeasonStart, *q.EpisodeStart)
		conditions = append(conditions,
			"(scripts.season < ? OR (scripts.season = ? AND scripts.episode <= ?))")
		args = append(args, *q.SeasonEnd, *q.SeasonEnd, *q.EpisodeEnd)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conditions, " AND "), args
}

// FetchCandidates reads stored embedding blobs for every entity in the
// query's scope. Blobs are returned as-is; decoding and corruption handling
// happen in the ranker, one candidate at a time.
func (s *SQLiteStorage) FetchCandidates(ctx context.Context, q *query.SearchQuery, model string) ([]vector.Candidate, error) {
	var candidates []vector.Candidate

	for _, entityType := range candidateScope(q) {
		table := "scenes"
		if entityType == types.EntityBibleChunk {
			table = "bible_chunks"
		}

		scope, scopeArgs := scriptScopeFilter(q)
		sqlQuery := fmt.Sprintf(`
			SELECT e.entity_id, e.vector
			FROM embeddings e
			JOIN %s ON %s.id = e.entity_id
			JOIN scripts ON scripts.id = %s.script_id
			WHERE e.entity_type = ? AND e.embedding_model = ?%s
			ORDER BY e.entity_id
		`, table, table, table, scope)

		args := append([]interface{}{string(entityType), model}, scopeArgs...)
		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s candidates: %w", entityType, err)
		}

		for rows.Next() {
			var c vector.Candidate
			if err := rows.Scan(&c.ID, &c.Blob); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan candidate: %w", err)
			}
			c.Kind = string(entityType)
			candidates = append(candidates, c)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return candidates, nil
}

// SearchVectorNative computes similarity at the database layer using the
// sqlite-vec extension. Stored blobs carry a 4-byte dimension header that
// sqlite-vec does not understand, so substr strips it before the distance
// call. Returns an error on purego builds; callers fall back to
// FetchCandidates plus the Go ranker.
func (s *SQLiteStorage) SearchVectorNative(ctx context.Context, q *query.SearchQuery, queryVector []float32, model string, limit int) ([]vector.SimilarityResult, error) {
	if !VectorExtensionAvailable {
		return nil, fmt.Errorf("vector extension not available in %s build", BuildMode)
	}
	if limit <= 0 {
		return []vector.SimilarityResult{}, nil
	}

	queryBlob := rawFloatBlob(queryVector)

	var results []vector.SimilarityResult
	for _, entityType := range candidateScope(q) {
		table := "scenes"
		if entityType == types.EntityBibleChunk {
			table = "bible_chunks"
		}

		scope, scopeArgs := scriptScopeFilter(q)
		sqlQuery := nativeSearchSQL(table, scope)

		args := append([]interface{}{queryBlob, string(entityType), model, len(queryVector)}, scopeArgs...)
		args = append(args, limit)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to execute native vector search: %w", err)
		}

		for rows.Next() {
			var r vector.SimilarityResult
			var distance float64
			if err := rows.Scan(&r.ID, &distance); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan native vector result: %w", err)
			}
			r.Kind = string(entityType)
			r.Score = vector.DistanceToSimilarity(distance)
			results = append(results, r)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}

	// Each kind arrives in its own distance order; re-sort so a strong
	// bible match outranks a weak scene match.
	return mergeRanked(results, limit), nil
}

// nativeSearchSQL builds the per-kind sqlite-vec distance query. Corrupt
// or wrong-dimension blobs are filtered in the WHERE clause because a
// single bad blob reaching vec_distance_cosine errors the whole statement
// instead of skipping one candidate.
func nativeSearchSQL(table, scope string) string {
	return fmt.Sprintf(`
		SELECT e.entity_id, vec_distance_cosine(substr(e.vector, 5), ?) AS distance
		FROM embeddings e
		JOIN %s ON %s.id = e.entity_id
		JOIN scripts ON scripts.id = %s.script_id
		WHERE e.entity_type = ? AND e.embedding_model = ?
		AND e.dimension = ?
		AND length(e.vector) = 4 + 4 * e.dimension%s
		ORDER BY distance ASC
		LIMIT ?
	`, table, table, table, scope)
}

// mergeRanked orders concatenated per-kind results into one list by
// descending score and trims it to limit. Stable so equal scores keep
// their scene-before-bible arrival order.
func mergeRanked(results []vector.SimilarityResult, limit int) []vector.SimilarityResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// rawFloatBlob serializes a query vector without the dimension header, the
// layout sqlite-vec expects.
func rawFloatBlob(vec []float32) []byte {
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}
