package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

// Scene search SQL is assembled from typed predicate/parameter pairs; user
// values are always bound, never interpolated. The page query and the count
// query share one assembly routine so they can never disagree about which
// rows qualify.

// sceneFilters holds the assembled join and predicate set for a SearchQuery.
type sceneFilters struct {
	needsLineJoin bool
	conditions    []string
	args          []interface{}
}

// assembleSceneFilters converts a SearchQuery into predicates. Each filter
// is applied conditionally and independently.
func assembleSceneFilters(q *query.SearchQuery) sceneFilters {
	var f sceneFilters

	if q.Project != "" {
		f.conditions = append(f.conditions, "scripts.title = ?")
		f.args = append(f.args, q.Project)
	}

	if q.HasRange() {
		// Script's (season, episode) must fall within the inclusive range.
		f.conditions = append(f.conditions,
			"(scripts.season > ? OR (scripts.season = ? AND scripts.episode >= ?))")
		f.args = append(f.args, *q.SeasonStart, *q.SeasonStart, *q.EpisodeStart)
		f.conditions = append(f.conditions,
			"(scripts.season < ? OR (scripts.season = ? AND scripts.episode <= ?))")
		f.args = append(f.args, *q.SeasonEnd, *q.SeasonEnd, *q.EpisodeEnd)
	}

	if q.Dialogue != "" {
		f.needsLineJoin = true
		f.conditions = append(f.conditions, "character_lines.dialogue LIKE ?")
		f.args = append(f.args, "%"+q.Dialogue+"%")
		if len(q.Characters) > 0 {
			// The dialogue must be spoken by one of the named characters.
			f.conditions = append(f.conditions, inClause("character_lines.character", len(q.Characters)))
			for _, c := range q.Characters {
				f.args = append(f.args, c)
			}
		}
	}

	if q.Parenthetical != "" {
		f.needsLineJoin = true
		f.conditions = append(f.conditions, "character_lines.parenthetical LIKE ?")
		f.args = append(f.args, "%"+q.Parenthetical+"%")
	}

	if q.TextQuery != "" {
		cond, args := textPredicate(q.TextQuery, FTS5Available)
		f.conditions = append(f.conditions, cond)
		f.args = append(f.args, args...)
	}

	if len(q.Locations) > 0 {
		ors := make([]string, len(q.Locations))
		for i, loc := range q.Locations {
			ors[i] = "scenes.location LIKE ?"
			f.args = append(f.args, "%"+loc+"%")
		}
		f.conditions = append(f.conditions, "("+strings.Join(ors, " OR ")+")")
	}

	// Character presence is only constrained when no text/dialogue predicate
	// is active; otherwise it over-constrains queries that already match on
	// text.
	if len(q.Characters) > 0 && q.Dialogue == "" && !q.HasTextFilter() {
		sub := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM character_lines cl WHERE cl.scene_id = scenes.id AND %s)",
			inClause("cl.character", len(q.Characters)))
		f.conditions = append(f.conditions, sub)
		for _, c := range q.Characters {
			f.args = append(f.args, c)
		}
	}

	return f
}

// BuildSearchQuery returns the paginated scene page query and its bound
// parameters. Ordering is stable on (script_id, scene_number).
func BuildSearchQuery(q *query.SearchQuery) (string, []interface{}) {
	f := assembleSceneFilters(q)

	var sb strings.Builder
	sb.WriteString(`SELECT DISTINCT scenes.id, scenes.script_id, scenes.scene_number,
		scenes.heading, scenes.location, scenes.time_of_day, scenes.content
	FROM scenes
	JOIN scripts ON scenes.script_id = scripts.id`)
	if f.needsLineJoin {
		sb.WriteString("\n\tJOIN character_lines ON character_lines.scene_id = scenes.id")
	}
	if len(f.conditions) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(f.conditions, " AND "))
	}
	sb.WriteString("\n\tORDER BY scenes.script_id, scenes.scene_number")
	sb.WriteString("\n\tLIMIT ? OFFSET ?")

	args := append(f.args, q.Limit, q.Offset)
	return sb.String(), args
}

// BuildCountQuery returns the count query over the identical join/filter
// set, without ordering or pagination.
func BuildCountQuery(q *query.SearchQuery) (string, []interface{}) {
	f := assembleSceneFilters(q)

	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(DISTINCT scenes.id)
	FROM scenes
	JOIN scripts ON scenes.script_id = scripts.id`)
	if f.needsLineJoin {
		sb.WriteString("\n\tJOIN character_lines ON character_lines.scene_id = scenes.id")
	}
	if len(f.conditions) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(f.conditions, " AND "))
	}

	return sb.String(), f.args
}

// assembleBibleFilters is the bible-chunk counterpart of the scene filter
// set. Bible chunks match on project, range, and free text over title and
// content.
func assembleBibleFilters(q *query.SearchQuery) ([]string, []interface{}) {
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

	if text := q.SemanticText(); text != "" {
		conditions = append(conditions, "(bible_chunks.content LIKE ? OR bible_chunks.title LIKE ?)")
		pattern := "%" + text + "%"
		args = append(args, pattern, pattern)
	}

	return conditions, args
}

// BuildBibleQuery returns the paginated bible-chunk page query.
func BuildBibleQuery(q *query.SearchQuery) (string, []interface{}) {
	conditions, args := assembleBibleFilters(q)

	var sb strings.Builder
	sb.WriteString(`SELECT bible_chunks.id, bible_chunks.script_id, bible_chunks.title, bible_chunks.content
	FROM bible_chunks
	JOIN scripts ON bible_chunks.script_id = scripts.id`)
	if len(conditions) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString("\n\tORDER BY bible_chunks.script_id, bible_chunks.note_id, bible_chunks.chunk_order")
	sb.WriteString("\n\tLIMIT ? OFFSET ?")

	return sb.String(), append(args, q.Limit, q.Offset)
}

// BuildBibleCountQuery returns the matching count query.
func BuildBibleCountQuery(q *query.SearchQuery) (string, []interface{}) {
	conditions, args := assembleBibleFilters(q)

	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(DISTINCT bible_chunks.id)
	FROM bible_chunks
	JOIN scripts ON bible_chunks.script_id = scripts.id`)
	if len(conditions) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	return sb.String(), args
}

// inClause builds "col IN (?, ?, ...)" with n placeholders.
func inClause(col string, n int) string {
	return col + " IN (?" + strings.Repeat(",?", n-1) + ")"
}

// textPredicate builds the free-text scene condition. Builds with FTS5
// compiled in route it through the scenes_fts index; others scan heading
// and content with LIKE. Both forms only filter; ordering stays on
// (script_id, scene_number) either way, so page and count queries agree.
func textPredicate(text string, useFTS bool) (string, []interface{}) {
	if useFTS {
		return "scenes.id IN (SELECT rowid FROM scenes_fts WHERE scenes_fts MATCH ?)",
			[]interface{}{sanitizeFTSQuery(text)}
	}
	pattern := "%" + text + "%"
	return "(scenes.content LIKE ? OR scenes.heading LIKE ?)",
		[]interface{}{pattern, pattern}
}

// sanitizeFTSQuery rewrites user text as quoted FTS5 terms so operator
// words (AND, OR, NOT, NEAR) and syntax characters are matched literally,
// never interpreted as query syntax.
func sanitizeFTSQuery(text string) string {
	fields := strings.Fields(text)
	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// SearchScenes runs the lexical scene page query.
func (s *SQLiteStorage) SearchScenes(ctx context.Context, q *query.SearchQuery) ([]types.SearchResult, error) {
	sqlQuery, args := BuildSearchQuery(q)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute scene search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		var location, timeOfDay, content *string
		if err := rows.Scan(&r.SceneID, &r.ScriptID, &r.SceneNumber,
			&r.Heading, &location, &timeOfDay, &content); err != nil {
			return nil, fmt.Errorf("failed to scan scene row: %w", err)
		}
		if location != nil {
			r.Location = *location
		}
		if timeOfDay != nil {
			r.TimeOfDay = *timeOfDay
		}
		if content != nil {
			r.Content = *content
		}
		r.Kind = types.EntityScene
		r.MatchType = types.MatchLexical
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountScenes runs the lexical scene count query.
func (s *SQLiteStorage) CountScenes(ctx context.Context, q *query.SearchQuery) (int, error) {
	sqlQuery, args := BuildCountQuery(q)

	var count int
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scenes: %w", err)
	}
	return count, nil
}

// SearchBible runs the lexical bible-chunk page query. Chunk matches are
// shaped as SearchResults with the note title standing in for a heading.
func (s *SQLiteStorage) SearchBible(ctx context.Context, q *query.SearchQuery) ([]types.SearchResult, error) {
	sqlQuery, args := BuildBibleQuery(q)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute bible search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		var title *string
		if err := rows.Scan(&r.SceneID, &r.ScriptID, &title, &r.Content); err != nil {
			return nil, fmt.Errorf("failed to scan bible row: %w", err)
		}
		if title != nil {
			r.Heading = *title
		}
		r.Kind = types.EntityBibleChunk
		r.MatchType = types.MatchLexical
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountBible runs the bible-chunk count query.
func (s *SQLiteStorage) CountBible(ctx context.Context, q *query.SearchQuery) (int, error) {
	sqlQuery, args := BuildBibleCountQuery(q)

	var count int
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bible chunks: %w", err)
	}
	return count, nil
}
