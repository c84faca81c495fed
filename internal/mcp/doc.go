// Package mcp manages the connection to an external MCP tool server.
//
// The server is spawned as a subprocess (typically via npx) and spoken to
// over stdio using the Machine Conversation Protocol. The package exposes
// the server's tools to the orchestration layer and executes tool calls on
// its behalf, flattening structured results to text for the model.
//
// Connect once at startup:
//
//	client, err := mcp.Connect(ctx, cfg.MCP)
//	defer client.Close()
//
// Then list and call tools:
//
//	for _, t := range client.Tools() { ... }
//	out, err := client.Call(ctx, "search", map[string]any{"query": "..."})
package mcp
