package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/scriptcontext-mcp/internal/embedder"
	"github.com/dshills/scriptcontext-mcp/internal/indexer"
	"github.com/dshills/scriptcontext-mcp/internal/mcp"
	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/internal/searcher"
	"github.com/dshills/scriptcontext-mcp/internal/storage"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
	dbPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scriptctl",
		Short: "Screenplay index and search from the command line",
		Long: `Scriptctl drives the same index and search pipeline the MCP server
exposes: ingest parsed screenplay JSON into SQLite and query it with
lexical filters, semantic similarity, or both.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: $SCRIPTCONTEXT_DB_PATH or ~/.scriptcontext/scripts.db)")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]interface{}{
					"version":          version,
					"commit":           commit,
					"date":             buildDate,
					"build_mode":       storage.BuildMode,
					"sqlite_driver":    storage.DriverName,
					"vector_extension": storage.VectorExtensionAvailable,
				})
			} else {
				fmt.Printf("scriptctl %s (%s, %s)\n", version, commit, buildDate)
				fmt.Printf("Build Mode: %s, Driver: %s, Vector Extension: %v\n",
					storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)
			}
		},
	})

	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(embedCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <script.json>",
		Short: "Index a parsed screenplay file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK                bool     `json:"ok"`
				Message           string   `json:"message,omitempty"`
				Title             string   `json:"title,omitempty"`
				ScenesIndexed     int      `json:"scenes_indexed"`
				LinesIndexed      int      `json:"lines_indexed"`
				BibleChunks       int      `json:"bible_chunks"`
				EmbeddingsCreated int      `json:"embeddings_created"`
				EmbeddingsFailed  int      `json:"embeddings_failed"`
				DurationMs        int64    `json:"duration_ms"`
				Errors            []string `json:"errors,omitempty"`
			}

			skipEmbeddings, _ := cmd.Flags().GetBool("skip-embeddings")

			path, err := filepath.Abs(args[0])
			if err != nil {
				fail("Invalid path: %v", err)
			}

			script, err := indexer.LoadScriptFile(path)
			if err != nil {
				fail("Failed to load script: %v", err)
			}

			dbFile, err := mcp.ResolveDBPath(dbPath)
			if err != nil {
				fail("Failed to resolve database path: %v", err)
			}
			if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
				fail("Failed to create database directory: %v", err)
			}

			store, err := storage.NewSQLiteStorage(dbFile)
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer store.Close()

			var emb embedder.Embedder
			if !skipEmbeddings {
				emb, err = embedder.NewFromEnv()
				if err != nil {
					fmt.Fprintf(os.Stderr, "Warning: embedding provider unavailable, indexing rows only: %v\n", err)
					emb = nil
				}
			}

			idx := indexer.New(store, emb, slog.New(slog.NewTextHandler(os.Stderr, nil)))
			stats, err := idx.IndexScript(context.Background(), script, &indexer.Config{
				SkipEmbeddings: skipEmbeddings,
			})
			if err != nil {
				fail("Indexing failed: %v", err)
			}

			result := Result{
				OK:                true,
				Message:           fmt.Sprintf("Indexed %q", script.Title),
				Title:             script.Title,
				ScenesIndexed:     stats.ScenesIndexed,
				LinesIndexed:      stats.LinesIndexed,
				BibleChunks:       stats.BibleChunks,
				EmbeddingsCreated: stats.EmbeddingsCreated,
				EmbeddingsFailed:  stats.EmbeddingsFailed,
				DurationMs:        stats.Duration.Milliseconds(),
				Errors:            stats.ErrorMessages,
			}

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Indexed %q\n", script.Title)
				fmt.Printf("  Scenes: %d, Lines: %d, Bible chunks: %d\n",
					result.ScenesIndexed, result.LinesIndexed, result.BibleChunks)
				fmt.Printf("  Embeddings: %d created, %d failed\n",
					result.EmbeddingsCreated, result.EmbeddingsFailed)
				fmt.Printf("  Duration: %v\n", stats.Duration.Round(time.Millisecond))
				for _, msg := range result.Errors {
					fmt.Fprintf(os.Stderr, "  Warning: %s\n", msg)
				}
			}
		},
	}
	cmd.Flags().Bool("skip-embeddings", false, "Index rows only, skip embedding generation")
	return cmd
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed scenes and bible notes",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			params := query.Params{Mode: query.ModeAuto}
			params.Character, _ = cmd.Flags().GetString("character")
			params.Dialogue, _ = cmd.Flags().GetString("dialogue")
			params.Parenthetical, _ = cmd.Flags().GetString("parenthetical")
			params.Project, _ = cmd.Flags().GetString("project")
			params.Range, _ = cmd.Flags().GetString("range")
			params.Limit, _ = cmd.Flags().GetInt("limit")
			params.Offset, _ = cmd.Flags().GetInt("offset")
			params.IncludeBible, _ = cmd.Flags().GetBool("include-bible")
			params.OnlyBible, _ = cmd.Flags().GetBool("only-bible")
			if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
				params.Mode = query.Mode(mode)
			}

			q, err := query.Parse(args[0], params)
			if err != nil {
				fail("Invalid query: %v", err)
			}

			dbFile, err := mcp.ResolveDBPath(dbPath)
			if err != nil {
				fail("Failed to resolve database path: %v", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				emb = nil
			}

			srch, err := searcher.New(searcher.Config{
				DBPath:   dbFile,
				Embedder: emb,
				Logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
			})
			if err != nil {
				fail("Failed to initialize search: %v", err)
			}

			resp, err := srch.Search(context.Background(), q)
			if err != nil {
				fail("Search failed: %v", err)
			}

			if jsonOutput {
				printJSON(resp)
				return
			}

			fmt.Printf("Found %d result(s) (%.1fms, methods: %v)\n",
				resp.TotalCount, resp.ExecutionTimeMs, resp.SearchMethods)
			for i, r := range resp.Results {
				score := ""
				if r.RelevanceScore != nil {
					score = fmt.Sprintf(" [%.2f]", *r.RelevanceScore)
				}
				fmt.Printf("\n%d. %s%s (%s)\n", i+1+q.Offset, r.Heading, score, r.MatchType)
				if r.SceneNumber > 0 {
					fmt.Printf("   Scene %d, script %d\n", r.SceneNumber, r.ScriptID)
				}
				if r.Content != "" {
					fmt.Printf("   %s\n", truncate(r.Content, 200))
				}
			}
			if resp.HasMore {
				fmt.Printf("\nMore results available, use --offset %d\n", q.Offset+len(resp.Results))
			}
		},
	}
	cmd.Flags().String("character", "", "Filter by character name")
	cmd.Flags().String("dialogue", "", "Filter by dialogue content")
	cmd.Flags().String("parenthetical", "", "Filter by parenthetical direction")
	cmd.Flags().String("project", "", "Restrict to one script title")
	cmd.Flags().String("range", "", "Episode range, e.g. s1e2 or s1e2-s1e5")
	cmd.Flags().String("mode", "auto", "Search mode: strict, fuzzy, or auto")
	cmd.Flags().Int("limit", query.DefaultLimit, "Maximum results per page")
	cmd.Flags().Int("offset", 0, "Results to skip")
	cmd.Flags().Bool("include-bible", false, "Include bible notes in results")
	cmd.Flags().Bool("only-bible", false, "Search bible notes only")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics and health",
		Run: func(cmd *cobra.Command, args []string) {
			dbFile, err := mcp.ResolveDBPath(dbPath)
			if err != nil {
				fail("Failed to resolve database path: %v", err)
			}

			store, err := storage.OpenReadOnly(dbFile)
			if err != nil {
				fail("Failed to open database: %v", err)
			}
			defer store.Close()

			ctx := context.Background()
			status, err := store.GetStatus(ctx)
			if err != nil {
				fail("Failed to read status: %v", err)
			}
			scripts, err := store.ListScripts(ctx)
			if err != nil {
				fail("Failed to list scripts: %v", err)
			}

			if jsonOutput {
				type Script struct {
					Title   string `json:"title"`
					Season  int    `json:"season,omitempty"`
					Episode int    `json:"episode,omitempty"`
				}
				out := struct {
					DBPath        string   `json:"db_path"`
					Scripts       []Script `json:"scripts"`
					SceneCount    int      `json:"scene_count"`
					LineCount     int      `json:"line_count"`
					BibleChunks   int      `json:"bible_chunk_count"`
					Embeddings    int      `json:"embedding_count"`
					IndexSizeMB   float64  `json:"index_size_mb"`
					LastIndexedAt string   `json:"last_indexed_at,omitempty"`
					Semantic      bool     `json:"embeddings_available"`
				}{
					DBPath:      dbFile,
					Scripts:     make([]Script, 0, len(scripts)),
					SceneCount:  status.SceneCount,
					LineCount:   status.LineCount,
					BibleChunks: status.BibleChunkCount,
					Embeddings:  status.EmbeddingCount,
					IndexSizeMB: status.IndexSizeMB,
					Semantic:    status.Health.EmbeddingsAvailable,
				}
				if !status.LastIndexedAt.IsZero() {
					out.LastIndexedAt = status.LastIndexedAt.Format(time.RFC3339)
				}
				for _, s := range scripts {
					out.Scripts = append(out.Scripts, Script{Title: s.Title, Season: s.Season, Episode: s.Episode})
				}
				printJSON(out)
				return
			}

			fmt.Printf("Database: %s (%.2f MB)\n", dbFile, status.IndexSizeMB)
			fmt.Printf("Scripts: %d, Scenes: %d, Lines: %d, Bible chunks: %d\n",
				status.ScriptCount, status.SceneCount, status.LineCount, status.BibleChunkCount)
			fmt.Printf("Embeddings: %d (semantic search %s)\n",
				status.EmbeddingCount, enabledWord(status.Health.EmbeddingsAvailable))
			if !status.LastIndexedAt.IsZero() {
				fmt.Printf("Last indexed: %s\n", status.LastIndexedAt.Format(time.RFC3339))
			}
			for _, s := range scripts {
				if s.Season > 0 || s.Episode > 0 {
					fmt.Printf("  - %s (s%de%d)\n", s.Title, s.Season, s.Episode)
				} else {
					fmt.Printf("  - %s\n", s.Title)
				}
			}
		},
	}
}

func embedCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed-check",
		Short: "Verify the configured embedding provider works",
		Run: func(cmd *cobra.Command, args []string) {
			emb, err := embedder.NewFromEnv()
			if err != nil {
				fail("No embedding provider configured: %v", err)
			}
			defer emb.Close()

			result, err := emb.GenerateEmbedding(context.Background(), embedder.EmbeddingRequest{
				Text: "INT. COFFEE SHOP - DAY. A quiet morning.",
			})
			if err != nil {
				fail("Embedding request failed: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]interface{}{
					"ok":        true,
					"provider":  emb.Provider(),
					"model":     emb.Model(),
					"dimension": result.Dimension,
				})
			} else {
				fmt.Printf("✓ Provider %s (model %s) returned a %d-dimension embedding\n",
					emb.Provider(), emb.Model(), result.Dimension)
			}
		},
	}
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// fail prints the error in the selected format and exits non-zero.
func fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		printJSON(struct {
			OK      bool   `json:"ok"`
			Message string `json:"message"`
		}{OK: false, Message: msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
