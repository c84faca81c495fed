// ABOUTME: HTTP API handlers for query processing, tool listing and history
// ABOUTME: Provides POST /api/query and the read-only conversation endpoints

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vespucci-ai/vespucci-gateway/internal/conversation"
	"github.com/vespucci-ai/vespucci-gateway/internal/mcp"
	"github.com/vespucci-ai/vespucci-gateway/internal/store"
)

// QueryRequest is the JSON request body for POST /api/query.
type QueryRequest struct {
	Query      string `json:"query"`
	Source     string `json:"source,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Sender     string `json:"sender,omitempty"`
}

// MessageResponse is a single transcript message in API responses.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryResponse is the JSON response for POST /api/query.
type QueryResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// ToolsResponse is the JSON response for GET /api/tools.
type ToolsResponse struct {
	Tools []mcp.Tool `json:"tools"`
}

// ConversationResponse is a conversation summary in listing responses.
type ConversationResponse struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// StoredMessageResponse is a persisted message in history responses.
type StoredMessageResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	ToolName  string `json:"tool_name,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ConversationMessagesResponse is the JSON response for GET /api/conversations/{id}.
type ConversationMessagesResponse struct {
	ConversationID string                  `json:"conversation_id"`
	Messages       []StoredMessageResponse `json:"messages"`
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Tools  int    `json:"tools"`
}

// queryProcessor is the seam between the HTTP layer and the orchestrator.
type queryProcessor interface {
	ProcessQuery(ctx context.Context, req *conversation.Request) (*conversation.Result, error)
}

// toolProvider exposes the MCP tool list to handlers.
type toolProvider interface {
	Tools() []mcp.Tool
	Refresh(ctx context.Context) error
}

// handleQuery handles POST /api/query requests: it runs the query through
// the orchestration loop and returns the resulting transcript.
func (g *Gateway) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseQueryRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.service.ProcessQuery(r.Context(), &conversation.Request{
		Source:     req.Source,
		ExternalID: req.ExternalID,
		Sender:     req.Sender,
		Query:      req.Query,
	})
	if err != nil {
		g.logger.Error("query processing failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages := make([]MessageResponse, 0, len(result.Messages))
	for _, msg := range result.Messages {
		messages = append(messages, MessageResponse{Role: msg.Role, Content: msg.Content})
	}

	g.writeJSON(w, QueryResponse{
		ConversationID: result.ConversationID,
		Messages:       messages,
	})
}

// parseQueryRequest parses and validates a QueryRequest from the given reader.
func parseQueryRequest(r io.Reader) (*QueryRequest, error) {
	var req QueryRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	return &req, nil
}

// handleTools handles GET /api/tools requests. The tool list is re-fetched
// from the MCP server so the response reflects tools added or removed since
// connect; on refresh failure the cached list is served.
func (g *Gateway) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := g.tools.Refresh(r.Context()); err != nil {
		g.logger.Warn("refreshing tool list failed, serving cached list", "error", err)
	}

	tools := g.tools.Tools()
	if tools == nil {
		tools = []mcp.Tool{}
	}
	g.writeJSON(w, ToolsResponse{Tools: tools})
}

// handleListConversations handles GET /api/conversations requests.
// Supports an optional ?limit=N query parameter.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	conversations, err := g.store.ListConversations(r.Context(), limit)
	if err != nil {
		g.logger.Error("listing conversations failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListConversationsResponse{Conversations: make([]ConversationResponse, 0, len(conversations))}
	for _, conv := range conversations {
		response.Conversations = append(response.Conversations, ConversationResponse{
			ID:         conv.ID,
			Source:     conv.Source,
			ExternalID: conv.ExternalID,
			CreatedAt:  conv.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt:  conv.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	g.writeJSON(w, response)
}

// handleGetConversation handles GET /api/conversations/{id} requests.
// With ?format=export the response is the conversation-log JSON document.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if id == "" || strings.Contains(id, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "conversation id required")
		return
	}

	if r.URL.Query().Get("format") == "export" {
		data, err := g.store.ExportJSON(r.Context(), id)
		if err != nil {
			g.handleStoreError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
		return
	}

	messages, err := g.store.GetMessages(r.Context(), id)
	if err != nil {
		g.handleStoreError(w, err)
		return
	}

	response := ConversationMessagesResponse{
		ConversationID: id,
		Messages:       make([]StoredMessageResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		response.Messages = append(response.Messages, StoredMessageResponse{
			Role:      msg.Role,
			Content:   msg.Content,
			Kind:      msg.Kind,
			ToolName:  msg.ToolName,
			CreatedAt: msg.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	g.writeJSON(w, response)
}

// handleHealth returns service status and the number of available tools.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, HealthResponse{
		Status: "ok",
		Tools:  len(g.tools.Tools()),
	})
}

// handleStoreError maps store errors onto HTTP status codes.
func (g *Gateway) handleStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	g.logger.Error("store error", "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}

// writeJSON writes a JSON response body.
func (g *Gateway) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
