package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

func mustParse(t *testing.T, raw string, p query.Params) *query.SearchQuery {
	t.Helper()
	q, err := query.Parse(raw, p)
	require.NoError(t, err)
	return q
}

func TestBuildSearchQueryNoFilters(t *testing.T) {
	q := mustParse(t, "", query.Params{Limit: 10, Offset: 5})

	sqlQuery, args := BuildSearchQuery(q)

	assert.NotContains(t, sqlQuery, "WHERE")
	assert.Contains(t, sqlQuery, "ORDER BY scenes.script_id, scenes.scene_number")
	assert.Contains(t, sqlQuery, "LIMIT ? OFFSET ?")
	assert.Equal(t, []interface{}{10, 5}, args)
}

func TestBuildSearchQueryBindsAllUserText(t *testing.T) {
	q := mustParse(t, `SARAH "you lied to me" at the COFFEE SHOP about trust`,
		query.Params{Project: "Pilot'; DROP TABLE scenes;--", Limit: 10})

	sqlQuery, args := BuildSearchQuery(q)

	// User text only ever appears in args, never in the SQL itself.
	assert.NotContains(t, sqlQuery, "DROP TABLE")
	assert.NotContains(t, sqlQuery, "SARAH")
	assert.NotContains(t, sqlQuery, "you lied")
	assert.Contains(t, args, "Pilot'; DROP TABLE scenes;--")
	assert.Contains(t, args, "%you lied to me%")
	assert.Contains(t, args, "SARAH")
	assert.Contains(t, args, "%COFFEE SHOP%")
}

func TestBuildSearchQueryDialogueJoinsCharacterLines(t *testing.T) {
	q := mustParse(t, `SARAH "take the notebook"`, query.Params{Limit: 10})

	sqlQuery, args := BuildSearchQuery(q)

	assert.Contains(t, sqlQuery, "JOIN character_lines")
	assert.Contains(t, sqlQuery, "character_lines.dialogue LIKE ?")
	assert.Contains(t, sqlQuery, "character_lines.character IN (?)")
	assert.Contains(t, args, "%take the notebook%")
	assert.Contains(t, args, "SARAH")
}

func TestBuildSearchQueryCharacterOnlyUsesPresenceFilter(t *testing.T) {
	q := mustParse(t, "SARAH", query.Params{Limit: 10})

	sqlQuery, _ := BuildSearchQuery(q)

	assert.Contains(t, sqlQuery, "EXISTS (SELECT 1 FROM character_lines")
	assert.NotContains(t, sqlQuery, "JOIN character_lines ON")
}

func TestBuildSearchQueryCharacterSkippedWhenTextActive(t *testing.T) {
	// With a free-text predicate active, the character-presence filter is
	// dropped to avoid over-constraining.
	q := mustParse(t, "SARAH argues about trust", query.Params{Limit: 10})
	require.NotEmpty(t, q.Characters)
	require.NotEmpty(t, q.TextQuery)

	sqlQuery, _ := BuildSearchQuery(q)

	assert.NotContains(t, sqlQuery, "EXISTS")
	assert.NotContains(t, sqlQuery, "character_lines")
}

func TestBuildSearchQueryRange(t *testing.T) {
	q := mustParse(t, "anything", query.Params{Range: "s1e2-s2e5", Limit: 10})

	sqlQuery, args := BuildSearchQuery(q)

	assert.Contains(t, sqlQuery, "scripts.season > ?")
	assert.Contains(t, sqlQuery, "scripts.season < ?")
	assert.Contains(t, args, 1)
	assert.Contains(t, args, 2)
	assert.Contains(t, args, 5)
}

func TestBuildCountQuerySharesFilters(t *testing.T) {
	q := mustParse(t, `MIGUEL "no more favors" warehouse`, query.Params{
		Project: "Pilot", Range: "s1e1", Limit: 3, Offset: 6,
	})

	pageSQL, pageArgs := BuildSearchQuery(q)
	countSQL, countArgs := BuildCountQuery(q)

	assert.Contains(t, countSQL, "COUNT(DISTINCT scenes.id)")
	assert.NotContains(t, countSQL, "ORDER BY")
	assert.NotContains(t, countSQL, "LIMIT")

	// Page args are the count args plus limit and offset.
	require.Len(t, pageArgs, len(countArgs)+2)
	assert.Equal(t, countArgs, pageArgs[:len(countArgs)])
	assert.Equal(t, 3, pageArgs[len(pageArgs)-2])
	assert.Equal(t, 6, pageArgs[len(pageArgs)-1])

	// Both carry the same WHERE clause.
	pageWhere := pageSQL[strings.Index(pageSQL, "WHERE"):strings.Index(pageSQL, "ORDER BY")]
	countWhere := countSQL[strings.Index(countSQL, "WHERE"):]
	assert.Equal(t, strings.TrimSpace(pageWhere), strings.TrimSpace(countWhere))
}

func seedSearchFixture(t *testing.T, store *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	script := &types.Script{
		Title:   "Pilot",
		Author:  "R. Alvarez",
		Season:  1,
		Episode: 1,
		Scenes: []types.Scene{
			{
				SceneNumber: 1,
				Heading:     "INT. COFFEE SHOP - DAY",
				Location:    "COFFEE SHOP",
				TimeOfDay:   "DAY",
				Content:     "Sarah nurses a double espresso by the window.",
				Lines: []types.CharacterLine{
					{Character: "SARAH", Dialogue: "take the notebook"},
					{Character: "MIGUEL", Dialogue: "we had a deal", Parenthetical: "whispering"},
				},
			},
			{
				SceneNumber: 2,
				Heading:     "EXT. TRAIN STATION - NIGHT",
				Location:    "TRAIN STATION",
				TimeOfDay:   "NIGHT",
				Content:     "Miguel waits under a flickering lamp.",
				Lines: []types.CharacterLine{
					{Character: "MIGUEL", Dialogue: "you said midnight"},
				},
			},
			{
				SceneNumber: 3,
				Heading:     "INT. COFFEE SHOP - NIGHT",
				Location:    "COFFEE SHOP",
				TimeOfDay:   "NIGHT",
				Content:     "Closing time. Chairs stacked on tables.",
			},
		},
		BibleNotes: []types.BibleNote{
			{Title: "Sarah backstory", Content: "Sarah grew up over the coffee shop her mother ran."},
		},
	}
	require.NoError(t, store.UpsertScript(ctx, script))

	chunks := []types.BibleChunk{{
		NoteID:   script.BibleNotes[0].ID,
		ScriptID: script.ID,
		Title:    "Sarah backstory",
		Content:  script.BibleNotes[0].Content,
	}}
	require.NoError(t, store.InsertBibleChunks(ctx, chunks))
}

func TestSearchScenesLexical(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	ctx := context.Background()

	q := mustParse(t, "espresso", query.Params{Mode: query.ModeStrict, Limit: 10})
	results, err := store.SearchScenes(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Heading, "COFFEE SHOP")
	assert.Equal(t, types.MatchLexical, results[0].MatchType)
	assert.Nil(t, results[0].RelevanceScore)
}

func TestSearchScenesLocationFilter(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	q := mustParse(t, "COFFEE SHOP", query.Params{Limit: 10})
	results, err := store.SearchScenes(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Stable (script_id, scene_number) order.
	assert.Equal(t, 1, results[0].SceneNumber)
	assert.Equal(t, 3, results[1].SceneNumber)
}

func TestSearchScenesDialogueWithCharacter(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	ctx := context.Background()

	q := mustParse(t, `SARAH "take the notebook"`, query.Params{Limit: 10})
	results, err := store.SearchScenes(ctx, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].SceneNumber)

	// Same dialogue attributed to the wrong speaker matches nothing.
	q = mustParse(t, `MIGUEL "take the notebook"`, query.Params{Limit: 10})
	results, err = store.SearchScenes(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchCountConsistency(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	ctx := context.Background()

	queries := []*query.SearchQuery{
		mustParse(t, "", query.Params{Limit: 1}),
		mustParse(t, "COFFEE SHOP", query.Params{Limit: 1}),
		mustParse(t, "MIGUEL", query.Params{Limit: 2}),
		mustParse(t, "espresso", query.Params{Limit: 1}),
	}

	for _, q := range queries {
		total, err := store.CountScenes(ctx, q)
		require.NoError(t, err)

		// Walk every page; the sum must equal the count.
		seen := 0
		for offset := 0; ; offset += q.Limit {
			page := *q
			page.Offset = offset
			results, err := store.SearchScenes(ctx, &page)
			require.NoError(t, err)
			seen += len(results)
			if len(results) < q.Limit {
				break
			}
		}
		assert.Equal(t, total, seen, "query %q", q.RawQuery)
	}
}

func TestSearchBibleLexical(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	q := mustParse(t, "mother", query.Params{OnlyBible: true, Limit: 10})
	results, err := store.SearchBible(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.EntityBibleChunk, results[0].Kind)
	assert.Equal(t, "Sarah backstory", results[0].Heading)

	count, err := store.CountBible(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTextPredicate(t *testing.T) {
	t.Run("like scan", func(t *testing.T) {
		cond, args := textPredicate("warehouse chase", false)
		assert.Equal(t, "(scenes.content LIKE ? OR scenes.heading LIKE ?)", cond)
		assert.Equal(t, []interface{}{"%warehouse chase%", "%warehouse chase%"}, args)
	})

	t.Run("fts index", func(t *testing.T) {
		cond, args := textPredicate("warehouse chase", true)
		assert.Contains(t, cond, "scenes_fts MATCH ?")
		require.Len(t, args, 1)
		assert.Equal(t, `"warehouse" "chase"`, args[0])
	})
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain terms", input: "warehouse chase", want: `"warehouse" "chase"`},
		{name: "operator words stay literal", input: "cops AND robbers", want: `"cops" "AND" "robbers"`},
		{name: "embedded quote doubled", input: `she"said`, want: `"she""said"`},
		{name: "syntax characters quoted", input: "harbor* (night)", want: `"harbor*" "(night)"`},
		{name: "whitespace collapsed", input: "  harbor   night  ", want: `"harbor" "night"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFTSQuery(tt.input))
		})
	}
}

func TestSceneFTSStaysInSync(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	seedSearchFixture(t, store)

	ftsCount := func(match string) int {
		var n int
		err := store.db.QueryRow(
			"SELECT COUNT(*) FROM scenes_fts WHERE scenes_fts MATCH ?", match,
		).Scan(&n)
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, 1, ftsCount("espresso"))
	assert.Equal(t, 2, ftsCount("coffee"))

	_, err = store.db.Exec("DELETE FROM scenes WHERE scene_number = 1")
	require.NoError(t, err)
	assert.Equal(t, 0, ftsCount("espresso"))
	assert.Equal(t, 1, ftsCount("coffee"))

	_, err = store.db.Exec("UPDATE scenes SET content = 'A crate splits open.' WHERE scene_number = 3")
	require.NoError(t, err)
	assert.Equal(t, 1, ftsCount("crate"))
	assert.Equal(t, 0, ftsCount("chairs"))
}
