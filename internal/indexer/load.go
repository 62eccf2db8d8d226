package indexer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dshills/scriptcontext-mcp/pkg/types"
)

// LoadScriptFile reads a parsed script from a JSON file. This is the
// handoff format from the upstream screenplay parser.
func LoadScriptFile(path string) (*types.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script file: %w", err)
	}
	return LoadScript(data)
}

// LoadScript decodes and validates a parsed script from JSON.
func LoadScript(data []byte) (*types.Script, error) {
	var script types.Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &script, nil
}
