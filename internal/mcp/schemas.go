package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexScriptTool returns the tool definition for index_script
func indexScriptTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_script",
		Description: "Index a parsed screenplay (JSON handoff from the script parser) to make it searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"script_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the parsed script JSON file",
				},
				"skip_embeddings": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index rows only and skip embedding generation",
					"default":     false,
				},
			},
			Required: []string{"script_path"},
		},
	}
}

// searchScenesTool returns the tool definition for search_scenes
func searchScenesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_scenes",
		Description: "Search indexed screenplay scenes with free text and optional facet filters",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query; quoted text matches dialogue, (text) matches parentheticals, ALL-CAPS words match characters or locations",
				},
				"character": map[string]interface{}{
					"type":        "string",
					"description": "Explicit character filter; disables facet auto-detection",
				},
				"dialogue": map[string]interface{}{
					"type":        "string",
					"description": "Explicit dialogue substring filter; disables facet auto-detection",
				},
				"parenthetical": map[string]interface{}{
					"type":        "string",
					"description": "Explicit parenthetical substring filter; disables facet auto-detection",
				},
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one script by exact title",
				},
				"range": map[string]interface{}{
					"type":        "string",
					"description": "Episode range, e.g. 's1e3' or 's1e3-s2e5'",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: strict (lexical only), fuzzy (always semantic), auto (semantic for prose-like queries)",
					"enum":        []string{"strict", "fuzzy", "auto"},
					"default":     "auto",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results to skip for pagination",
					"default":     0,
					"minimum":     0,
				},
				"include_bible": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include show-bible chunks alongside scenes",
					"default":     false,
				},
				"only_bible": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, search show-bible chunks only",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query index status: scripts, scenes, embeddings, and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
