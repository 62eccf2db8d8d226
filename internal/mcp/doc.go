// Package mcp exposes screenplay search over the Model Context Protocol.
//
// The server speaks MCP on stdio and registers three tools:
//
//   - index_script: ingest a parsed screenplay JSON file
//   - search_scenes: hybrid lexical + semantic scene search with facet
//     filters (character, dialogue, parenthetical, project, episode
//     range, bible scope)
//   - get_status: index statistics and health
//
// Tool results are JSON text; failures map to MCP error codes
// (-32602 invalid params, -32002 indexing in progress, -32003 not
// indexed, -32004 empty query, -32603 internal).
//
// The database location resolves from the explicit path argument, then
// SCRIPTCONTEXT_DB_PATH, then ~/.scriptcontext/scripts.db. Stdout is
// reserved for the protocol, so all logging goes to stderr.
package mcp
