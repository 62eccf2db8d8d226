package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/scriptcontext-mcp/internal/embedder"
	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/internal/storage"
	"github.com/dshills/scriptcontext-mcp/internal/vector"
	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

const (
	// DefaultSimilarityThreshold drops semantic matches below this cosine
	// similarity.
	DefaultSimilarityThreshold = 0.35

	// AutoSemanticWordThreshold is the word count above which an AUTO mode
	// query reads as prose and gets the semantic path.
	AutoSemanticWordThreshold = 3

	// DefaultCacheSize bounds the query result cache.
	DefaultCacheSize = 1000

	// DefaultCacheTTL expires cached responses; re-indexing also
	// invalidates explicitly.
	DefaultCacheTTL = 5 * time.Minute

	// availabilityTTL bounds how often the embedding availability probe
	// re-runs.
	availabilityTTL = 30 * time.Second

	// semanticTimeout caps the embedding provider call. On expiry the
	// search downgrades to lexical-only rather than failing.
	semanticTimeout = 10 * time.Second
)

// Config configures a Searcher.
type Config struct {
	DBPath              string
	Embedder            embedder.Embedder // nil disables the semantic path
	Logger              *slog.Logger
	CacheSize           int
	CacheTTL            time.Duration
	SimilarityThreshold float64
}

// cacheEntry is a cached response with its expiry.
type cacheEntry struct {
	response  *types.SearchResponse
	expiresAt time.Time
}

// Searcher orchestrates hybrid scene search: the lexical SQL path always
// runs; the semantic path augments it when the mode and the embedding
// provider allow. Each Search opens its own read-only connection, so a
// concurrent re-index never blocks reads.
type Searcher struct {
	dbPath    string
	embedder  embedder.Embedder
	ranker    *vector.Ranker
	logger    *slog.Logger
	threshold float64
	cacheTTL  time.Duration

	cacheMu sync.RWMutex
	cache   *lru.Cache[[32]byte, *cacheEntry]

	availMu      sync.RWMutex
	availValue   bool
	availChecked time.Time
}

// New creates a Searcher.
func New(cfg Config) (*Searcher, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("searcher: database path required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.SimilarityThreshold
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}

	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("searcher: create cache: %w", err)
	}

	return &Searcher{
		dbPath:    cfg.DBPath,
		embedder:  cfg.Embedder,
		ranker:    vector.NewRanker(logger),
		logger:    logger,
		threshold: threshold,
		cacheTTL:  cacheTTL,
		cache:     cache,
	}, nil
}

// Search runs one search request end to end. The lexical path always
// executes; a semantic failure is logged and downgraded, never surfaced
// to the caller.
func (s *Searcher) Search(ctx context.Context, q *query.SearchQuery) (*types.SearchResponse, error) {
	start := time.Now()

	if q == nil {
		return nil, fmt.Errorf("searcher: nil query")
	}

	key := queryHash(q)
	if cached := s.fromCache(key); cached != nil {
		cached.ExecutionTimeMs = elapsedMs(start)
		return cached, nil
	}

	store, err := storage.OpenReadOnly(s.dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	// Over-fetch by the offset so fusion sees the full prefix; the final
	// page is sliced after merging.
	fetch := *q
	fetch.Limit = q.Limit + q.Offset
	fetch.Offset = 0

	lexical, total, err := s.lexical(ctx, store, &fetch)
	if err != nil {
		return nil, err
	}

	methods := []string{types.MethodSQL}
	merged := lexical

	if s.wantSemantic(q) && s.semanticAvailable(ctx, store) {
		semantic, semTotal, semErr := s.semantic(ctx, store, &fetch)
		if semErr != nil {
			s.logger.Warn("semantic search failed, serving lexical results",
				"error", semErr, "query", q.RawQuery)
		} else {
			merged = s.fuse(ctx, store, semantic, lexical)
			methods = append(methods, types.MethodSemantic)
			// Overlap between the two paths is only known inside the
			// fetched prefix, so the union size is approximated from
			// below by the larger path's count.
			if semTotal > total {
				total = semTotal
			}
		}
	}

	if len(merged) > total {
		total = len(merged)
	}
	page := paginate(merged, q.Offset, q.Limit)

	resp := &types.SearchResponse{
		Results:         page,
		TotalCount:      total,
		HasMore:         total > q.Offset+len(page),
		ExecutionTimeMs: elapsedMs(start),
		SearchMethods:   methods,
	}

	s.storeInCache(key, resp)
	return resp, nil
}

// InvalidateCache drops all cached responses and forces the next search
// to re-probe embedding availability. Called after indexing.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()

	s.availMu.Lock()
	s.availChecked = time.Time{}
	s.availMu.Unlock()
}

// wantSemantic decides whether this query asks for the semantic path.
// STRICT never does; FUZZY always does; AUTO does when the query reads
// like prose rather than a facet lookup.
func (s *Searcher) wantSemantic(q *query.SearchQuery) bool {
	if s.embedder == nil {
		return false
	}
	if q.SemanticText() == "" {
		return false
	}
	switch q.Mode {
	case query.ModeFuzzy:
		return true
	case query.ModeAuto:
		return q.EffectiveWordCount() > AutoSemanticWordThreshold
	default:
		return false
	}
}

// semanticAvailable reports whether the index holds embeddings for the
// configured model. The probe result is cached briefly so every search
// does not pay for it.
func (s *Searcher) semanticAvailable(ctx context.Context, store *storage.SQLiteStorage) bool {
	s.availMu.RLock()
	if time.Since(s.availChecked) < availabilityTTL {
		v := s.availValue
		s.availMu.RUnlock()
		return v
	}
	s.availMu.RUnlock()

	status, err := store.GetStatus(ctx)
	available := err == nil && status.EmbeddingCount > 0
	if err != nil {
		s.logger.Warn("embedding availability probe failed", "error", err)
	}

	s.availMu.Lock()
	s.availValue = available
	s.availChecked = time.Now()
	s.availMu.Unlock()

	return available
}

// lexical runs the SQL path for the query's entity scope and returns the
// rows plus the total filtered count.
func (s *Searcher) lexical(ctx context.Context, store *storage.SQLiteStorage, q *query.SearchQuery) ([]types.SearchResult, int, error) {
	var results []types.SearchResult
	var total int

	if !q.OnlyBible {
		scenes, err := store.SearchScenes(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		count, err := store.CountScenes(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, scenes...)
		total += count
	}

	if q.IncludeBible || q.OnlyBible {
		chunks, err := store.SearchBible(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		count, err := store.CountBible(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, chunks...)
		total += count
	}

	return results, total, nil
}

// semantic embeds the query text and ranks stored vectors against it,
// returning the page of matches plus the count of everything above the
// threshold. Any failure is returned to the caller for downgrade
// handling.
func (s *Searcher) semantic(ctx context.Context, store *storage.SQLiteStorage, q *query.SearchQuery) ([]vector.SimilarityResult, int, error) {
	sctx, cancel := context.WithTimeout(ctx, semanticTimeout)
	defer cancel()

	emb, err := s.embedder.GenerateEmbedding(sctx, embedder.EmbeddingRequest{
		Text: q.SemanticText(),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}

	model := s.embedder.Model()

	if storage.VectorExtensionAvailable {
		ranked, err := store.SearchVectorNative(sctx, q, emb.Vector, model, q.Limit)
		if err != nil {
			return nil, 0, err
		}
		// The extension ranks but does not threshold. Its match count is
		// bounded by the SQL LIMIT, so it can undercount, never overcount.
		filtered := ranked[:0]
		for _, r := range ranked {
			if r.Score >= s.threshold {
				filtered = append(filtered, r)
			}
		}
		return filtered, len(filtered), nil
	}

	candidates, err := store.FetchCandidates(sctx, q, model)
	if err != nil {
		return nil, 0, err
	}
	ranked := s.ranker.RankCandidates(emb.Vector, candidates, s.threshold, 0)
	matched := len(ranked)
	if len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}
	return ranked, matched, nil
}

type entityKey struct {
	kind string
	id   int64
}

// fuse merges semantic and lexical results. Semantic matches lead in
// score order and win the score annotation when a row appears in both
// sets; lexical-only rows follow in their SQL order.
func (s *Searcher) fuse(ctx context.Context, store *storage.SQLiteStorage, semantic []vector.SimilarityResult, lexical []types.SearchResult) []types.SearchResult {
	lexByKey := make(map[entityKey]types.SearchResult, len(lexical))
	for _, r := range lexical {
		lexByKey[entityKey{kind: string(r.Kind), id: r.SceneID}] = r
	}

	fused := make([]types.SearchResult, 0, len(semantic)+len(lexical))
	taken := make(map[entityKey]bool, len(semantic))

	for _, sr := range semantic {
		key := entityKey{kind: sr.Kind, id: sr.ID}
		score := sr.Score

		if row, ok := lexByKey[key]; ok {
			row.MatchType = types.MatchSemantic
			row.RelevanceScore = &score
			fused = append(fused, row)
			taken[key] = true
			continue
		}

		row, err := s.hydrate(ctx, store, sr)
		if err != nil {
			s.logger.Debug("dropping unhydratable semantic match",
				"kind", sr.Kind, "id", sr.ID, "error", err)
			continue
		}
		row.RelevanceScore = &score
		fused = append(fused, *row)
		taken[key] = true
	}

	for _, r := range lexical {
		if taken[entityKey{kind: string(r.Kind), id: r.SceneID}] {
			continue
		}
		fused = append(fused, r)
	}

	return fused
}

// hydrate loads the full row for a semantic match that the lexical query
// did not return.
func (s *Searcher) hydrate(ctx context.Context, store *storage.SQLiteStorage, sr vector.SimilarityResult) (*types.SearchResult, error) {
	switch types.EntityType(sr.Kind) {
	case types.EntityScene:
		scene, err := store.GetScene(ctx, sr.ID)
		if err != nil {
			return nil, err
		}
		return &types.SearchResult{
			Kind:        types.EntityScene,
			ScriptID:    scene.ScriptID,
			SceneID:     scene.ID,
			SceneNumber: scene.SceneNumber,
			Heading:     scene.Heading,
			Location:    scene.Location,
			TimeOfDay:   scene.TimeOfDay,
			Content:     scene.Content,
			MatchType:   types.MatchSemantic,
		}, nil
	case types.EntityBibleChunk:
		chunk, err := store.GetBibleChunk(ctx, sr.ID)
		if err != nil {
			return nil, err
		}
		return &types.SearchResult{
			Kind:      types.EntityBibleChunk,
			ScriptID:  chunk.ScriptID,
			SceneID:   chunk.ID,
			Heading:   chunk.Title,
			Content:   chunk.Content,
			MatchType: types.MatchSemantic,
		}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", sr.Kind)
	}
}

func paginate(results []types.SearchResult, offset, limit int) []types.SearchResult {
	if offset >= len(results) {
		return nil
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func (s *Searcher) fromCache(key [32]byte) *types.SearchResponse {
	s.cacheMu.RLock()
	entry, ok := s.cache.Get(key)
	if !ok {
		s.cacheMu.RUnlock()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil
	}
	resp := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return resp
}

func (s *Searcher) storeInCache(key [32]byte, resp *types.SearchResponse) {
	entry := &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(s.cacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

// copyResponse deep-copies a response so cached values never alias
// caller-visible slices.
func copyResponse(src *types.SearchResponse) *types.SearchResponse {
	if src == nil {
		return nil
	}
	dst := &types.SearchResponse{
		Results:         make([]types.SearchResult, len(src.Results)),
		TotalCount:      src.TotalCount,
		HasMore:         src.HasMore,
		ExecutionTimeMs: src.ExecutionTimeMs,
		SearchMethods:   append([]string(nil), src.SearchMethods...),
	}
	for i, r := range src.Results {
		dst.Results[i] = r
		if r.RelevanceScore != nil {
			score := *r.RelevanceScore
			dst.Results[i].RelevanceScore = &score
		}
	}
	return dst
}

// queryHash produces a stable cache key over every field that affects
// results.
func queryHash(q *query.SearchQuery) [32]byte {
	var b strings.Builder
	b.WriteString(q.TextQuery)
	b.WriteByte('|')
	b.WriteString(strings.Join(q.Characters, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(q.Locations, ","))
	b.WriteByte('|')
	b.WriteString(q.Dialogue)
	b.WriteByte('|')
	b.WriteString(q.Parenthetical)
	b.WriteByte('|')
	b.WriteString(q.Project)
	b.WriteByte('|')
	writeIntPtr(&b, q.SeasonStart)
	writeIntPtr(&b, q.EpisodeStart)
	writeIntPtr(&b, q.SeasonEnd)
	writeIntPtr(&b, q.EpisodeEnd)
	b.WriteString(string(q.Mode))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.Limit))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.Offset))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(q.IncludeBible))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(q.OnlyBible))
	return sha256.Sum256([]byte(b.String()))
}

func writeIntPtr(b *strings.Builder, v *int) {
	if v == nil {
		b.WriteString("-|")
		return
	}
	b.WriteString(strconv.Itoa(*v))
	b.WriteByte('|')
}
