// Package conversation provides the query orchestration layer.
//
// # Overview
//
// The conversation package sits between the HTTP handlers (and the Discord
// bridge, via HTTP) and the external services: the hosted language model
// and the MCP tool server. It owns the loop at the heart of the gateway:
//
//  1. Persist the user message.
//  2. Ask the model for a completion.
//  3. Parse inline tool calls out of the assistant text.
//  4. Execute each call against the MCP server and feed the results back
//     as user-role messages.
//  5. Repeat until the model answers without tool calls, or the tool-round
//     limit is reached.
//
// # Persistence
//
// Every message is written to the store the moment it exists - the user
// message before the first model call, each assistant turn and tool result
// as they are produced. The store is the audit trail; the in-memory
// transcript built per query is what the model sees.
//
// # Failure semantics
//
// There are no retries. Model and storage errors propagate to the caller.
// Tool execution errors (and malformed tool arguments) are reported back to
// the model as feedback messages so it can recover or answer without the
// tool.
package conversation
