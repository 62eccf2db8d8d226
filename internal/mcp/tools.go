package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/scriptcontext-mcp/internal/indexer"
	"github.com/dshills/scriptcontext-mcp/internal/query"
	"github.com/dshills/scriptcontext-mcp/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // No index database exists yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleIndexScript handles the index_script tool invocation
func (s *Server) handleIndexScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scriptPath, ok := args["script_path"].(string)
	if !ok || scriptPath == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "script_path parameter is required", map[string]interface{}{
			"param":  "script_path",
			"reason": "missing or empty",
		})
	}
	if err := validateScriptPath(scriptPath); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid script_path", map[string]interface{}{
			"param":  "script_path",
			"reason": err.Error(),
		})
	}

	script, err := indexer.LoadScriptFile(scriptPath)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "failed to load script", map[string]interface{}{
			"error": err.Error(),
		})
	}

	config := &indexer.Config{
		SkipEmbeddings: getBoolDefault(args, "skip_embeddings", false),
	}

	stats, err := s.indexer.IndexScript(ctx, script, config)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Cached search responses may now be stale.
	s.searcher.InvalidateCache()

	response := map[string]interface{}{
		"indexed":            true,
		"title":              script.Title,
		"scenes_indexed":     stats.ScenesIndexed,
		"lines_indexed":      stats.LinesIndexed,
		"bible_chunks":       stats.BibleChunks,
		"embeddings_created": stats.EmbeddingsCreated,
		"embeddings_failed":  stats.EmbeddingsFailed,
		"duration_ms":        stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchScenes handles the search_scenes tool invocation
func (s *Server) handleSearchScenes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	rawQuery, ok := args["query"].(string)
	if !ok || rawQuery == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", query.DefaultLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	params := query.Params{
		Character:     getStringDefault(args, "character", ""),
		Dialogue:      getStringDefault(args, "dialogue", ""),
		Parenthetical: getStringDefault(args, "parenthetical", ""),
		Project:       getStringDefault(args, "project", ""),
		Range:         getStringDefault(args, "range", ""),
		Mode:          query.Mode(getStringDefault(args, "mode", string(query.ModeAuto))),
		Limit:         limit,
		Offset:        getIntDefault(args, "offset", 0),
		IncludeBible:  getBoolDefault(args, "include_bible", false),
		OnlyBible:     getBoolDefault(args, "only_bible", false),
	}

	q, err := query.Parse(rawQuery, params)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search parameters", map[string]interface{}{
			"error": err.Error(),
		})
	}

	resp, err := s.searcher.Search(ctx, q)
	if errors.Is(err, storage.ErrDatabaseNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "no index found; run index_script first", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to encode results", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	scripts, err := s.storage.ListScripts(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list scripts", map[string]interface{}{
			"error": err.Error(),
		})
	}

	scriptList := make([]map[string]interface{}, len(scripts))
	for i, sc := range scripts {
		scriptList[i] = map[string]interface{}{
			"title":   sc.Title,
			"season":  sc.Season,
			"episode": sc.Episode,
		}
	}

	response := map[string]interface{}{
		"indexed":  status.ScriptCount > 0,
		"database": s.dbFile,
		"scripts":  scriptList,
		"statistics": map[string]interface{}{
			"script_count":      status.ScriptCount,
			"scene_count":       status.SceneCount,
			"line_count":        status.LineCount,
			"bible_chunk_count": status.BibleChunkCount,
			"embedding_count":   status.EmbeddingCount,
			"index_size_mb":     fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateScriptPath checks that the path points at a readable JSON file.
func validateScriptPath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrPathIsDirectory
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrPathIsDirectory = errors.New("path is a directory, expected a script JSON file")
)
