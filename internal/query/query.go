package query

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Mode controls whether the semantic search path is attempted.
type Mode string

const (
	ModeStrict Mode = "strict" // Lexical only
	ModeFuzzy  Mode = "fuzzy"  // Always attempt semantic augmentation
	ModeAuto   Mode = "auto"   // Semantic when the query looks like prose
)

// DefaultLimit is applied when a caller passes limit 0.
const DefaultLimit = 10

// Validation errors
var (
	ErrInvalidLimit  = errors.New("limit must be >= 1")
	ErrInvalidOffset = errors.New("offset must be >= 0")
	ErrInvalidMode   = errors.New("mode must be strict, fuzzy, or auto")
	ErrBibleConflict = errors.New("include_bible and only_bible are mutually exclusive")
)

// SearchQuery is the structured form of a free-text search request.
// Produced by Parse, consumed by the SQL builder and the orchestrator.
type SearchQuery struct {
	RawQuery  string // Original input, preserved for display
	TextQuery string // Leftover free text after facet extraction; "" means absent

	Characters []string // Case-normalized upper, insertion order, deduplicated
	Locations  []string // Multi-word ALL-CAPS phrases

	Dialogue      string
	Parenthetical string
	Project       string

	// Episode range; nil means unset. Single-episode ranges have start == end.
	SeasonStart  *int
	EpisodeStart *int
	SeasonEnd    *int
	EpisodeEnd   *int

	Mode   Mode
	Limit  int
	Offset int

	IncludeBible bool
	OnlyBible    bool
}

// Params carries the explicit filters accepted alongside the raw query text.
// Any explicit Character/Dialogue/Parenthetical disables auto-detection for
// all three facets.
type Params struct {
	Character     string
	Dialogue      string
	Parenthetical string
	Project       string
	Range         string
	Mode          Mode
	Limit         int
	Offset        int
	IncludeBible  bool
	OnlyBible     bool
}

// Scene-heading keywords that an ALL-CAPS run must not be mistaken for.
var sceneHeadingKeywords = map[string]bool{
	"INT": true, "EXT": true, "INT/EXT": true, "EXT/INT": true, "I/E": true,
	"DAY": true, "NIGHT": true, "MORNING": true, "AFTERNOON": true,
	"EVENING": true, "CONTINUOUS": true, "LATER": true, "DAWN": true,
	"DUSK": true, "SAME": true, "MOMENTS": true,
}

var (
	quotedRe   = regexp.MustCompile(`"([^"]+)"`)
	parenRe    = regexp.MustCompile(`\(([^)]+)\)`)
	capsWordRe = regexp.MustCompile(`\b[A-Z][A-Z0-9'/]+\b`)
	rangeRe    = regexp.MustCompile(`(?i)^s(\d+)e(\d+)(?:-s(\d+)e(\d+))?$`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Parse decomposes a raw query plus optional explicit filters into a
// SearchQuery. Facet auto-detection runs as an ordered extractor pipeline:
// quoted dialogue first, then parentheticals, then ALL-CAPS runs, with each
// stage removing its match from the working text. Malformed range strings
// are ignored, never an error.
func Parse(rawQuery string, p Params) (*SearchQuery, error) {
	if p.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	if p.Offset < 0 {
		return nil, ErrInvalidOffset
	}
	if p.IncludeBible && p.OnlyBible {
		return nil, ErrBibleConflict
	}

	mode := p.Mode
	if mode == "" {
		mode = ModeAuto
	}
	switch mode {
	case ModeStrict, ModeFuzzy, ModeAuto:
	default:
		return nil, ErrInvalidMode
	}

	limit := p.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	q := &SearchQuery{
		RawQuery:     rawQuery,
		Project:      strings.TrimSpace(p.Project),
		Mode:         mode,
		Limit:        limit,
		Offset:       p.Offset,
		IncludeBible: p.IncludeBible,
		OnlyBible:    p.OnlyBible,
	}

	if p.Character != "" || p.Dialogue != "" || p.Parenthetical != "" {
		// Explicit facets are all-or-nothing: auto-detection is fully
		// disabled and the raw text stands as the free-text query.
		if c := strings.TrimSpace(p.Character); c != "" {
			q.Characters = appendUnique(nil, strings.ToUpper(c))
		}
		q.Dialogue = strings.TrimSpace(p.Dialogue)
		q.Parenthetical = strings.TrimSpace(p.Parenthetical)
		q.TextQuery = residual(rawQuery)
	} else {
		working := rawQuery
		q.Dialogue, working = extractFirst(quotedRe, working)
		q.Parenthetical, working = extractFirst(parenRe, working)
		q.Characters, q.Locations, working = extractCapsRuns(working)
		q.TextQuery = residual(working)
	}

	parseRange(p.Range, q)

	return q, nil
}

// extractFirst returns the first capture group of re in text and the text
// with the full match removed.
func extractFirst(re *regexp.Regexp, text string) (string, string) {
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		return "", text
	}
	match := strings.TrimSpace(text[m[2]:m[3]])
	remaining := text[:m[0]] + " " + text[m[1]:]
	return match, remaining
}

// extractCapsRuns scans for maximal runs of adjacent ALL-CAPS words. Runs of
// scene-heading keywords are discarded; a remaining multi-word run is a
// location, a single word a character. Matched text is removed.
func extractCapsRuns(text string) (characters, locations []string, remaining string) {
	matches := capsWordRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil, nil, text
	}

	type run struct {
		words      []string
		start, end int
	}

	var runs []run
	for _, m := range matches {
		word := text[m[0]:m[1]]
		if len(runs) > 0 {
			last := &runs[len(runs)-1]
			// Adjacent when separated only by whitespace.
			if strings.TrimSpace(text[last.end:m[0]]) == "" {
				last.words = append(last.words, word)
				last.end = m[1]
				continue
			}
		}
		runs = append(runs, run{words: []string{word}, start: m[0], end: m[1]})
	}

	var removals [][2]int
	for _, r := range runs {
		words := make([]string, 0, len(r.words))
		for _, w := range r.words {
			if !sceneHeadingKeywords[w] {
				words = append(words, w)
			}
		}
		if len(words) == 0 {
			// Pure scene-heading vocabulary: drop it from the text but
			// record nothing.
			removals = append(removals, [2]int{r.start, r.end})
			continue
		}
		if len(words) > 1 {
			locations = append(locations, strings.Join(words, " "))
		} else {
			characters = appendUnique(characters, words[0])
		}
		removals = append(removals, [2]int{r.start, r.end})
	}

	// Splice out matched runs back-to-front so offsets stay valid.
	remaining = text
	for i := len(removals) - 1; i >= 0; i-- {
		remaining = remaining[:removals[i][0]] + " " + remaining[removals[i][1]:]
	}
	return characters, locations, remaining
}

// parseRange populates season/episode bounds from a s<N>e<M>[-s<N>e<M>]
// string. Anything that does not match the grammar leaves the fields unset.
func parseRange(rangeStr string, q *SearchQuery) {
	m := rangeRe.FindStringSubmatch(strings.TrimSpace(rangeStr))
	if m == nil {
		return
	}

	seasonStart, _ := strconv.Atoi(m[1])
	episodeStart, _ := strconv.Atoi(m[2])
	q.SeasonStart = &seasonStart
	q.EpisodeStart = &episodeStart

	if m[3] != "" {
		seasonEnd, _ := strconv.Atoi(m[3])
		episodeEnd, _ := strconv.Atoi(m[4])
		q.SeasonEnd = &seasonEnd
		q.EpisodeEnd = &episodeEnd
	} else {
		q.SeasonEnd = &seasonStart
		q.EpisodeEnd = &episodeStart
	}
}

// HasRange reports whether an episode range was parsed.
func (q *SearchQuery) HasRange() bool {
	return q.SeasonStart != nil
}

// HasTextFilter reports whether a free-text or dialogue predicate is active.
// The character-presence join is only added when this is false, to avoid
// over-constraining queries that already match on text.
func (q *SearchQuery) HasTextFilter() bool {
	return q.TextQuery != "" || q.Dialogue != "" || q.Parenthetical != ""
}

// EffectiveWordCount counts the words that would feed a semantic query:
// the residual free text plus any extracted dialogue.
func (q *SearchQuery) EffectiveWordCount() int {
	n := 0
	if q.TextQuery != "" {
		n += len(strings.Fields(q.TextQuery))
	}
	if q.Dialogue != "" {
		n += len(strings.Fields(q.Dialogue))
	}
	return n
}

// SemanticText returns the text submitted to the embedding provider for
// this query. Falls back to the raw query when extraction consumed
// everything.
func (q *SearchQuery) SemanticText() string {
	parts := make([]string, 0, 2)
	if q.TextQuery != "" {
		parts = append(parts, q.TextQuery)
	}
	if q.Dialogue != "" {
		parts = append(parts, q.Dialogue)
	}
	if len(parts) == 0 {
		return collapse(q.RawQuery)
	}
	return strings.Join(parts, " ")
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// residual collapses whitespace and treats text with no letters or digits
// (stranded punctuation after facet removal) as absent.
func residual(s string) string {
	s = collapse(s)
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return s
		}
	}
	return ""
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
