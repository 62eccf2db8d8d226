// Package types provides shared type definitions for the ScriptContext MCP server.
//
// This package defines domain types used across multiple components of
// ScriptContext, including scripts, scenes, character lines, bible chunks,
// and search results.
//
// # Core Types
//
// Script and Scene represent parsed screenplay content handed over by the
// upstream screenplay parser:
//
//	scene := types.Scene{
//	    SceneNumber: 12,
//	    Heading:     "INT. COFFEE SHOP - DAY",
//	    Location:    "COFFEE SHOP",
//	    TimeOfDay:   "DAY",
//	    Content:     "Sarah nurses a double espresso by the window.",
//	}
//
// BibleNote and BibleChunk carry supplementary world/character notes that
// are chunked and indexed alongside scenes.
//
// # Search Results
//
// SearchResult combines scene metadata with relevance scoring:
//
//	result := &types.SearchResult{
//	    SceneID:   123,
//	    Heading:   "INT. COFFEE SHOP - DAY",
//	    MatchType: types.MatchSemantic,
//	}
//
// Relevance scores are normalized to [0, 1]. Lexical-only matches carry a
// nil score and are ordered by (script_id, scene_number) instead.
//
// # Validation
//
// Domain types implement validation methods to ensure data integrity:
//
//	if err := script.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
