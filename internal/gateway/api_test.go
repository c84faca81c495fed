// ABOUTME: Tests for HTTP API handlers
// ABOUTME: Verifies request validation, response shapes, and error conditions

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespucci-ai/vespucci-gateway/internal/conversation"
	"github.com/vespucci-ai/vespucci-gateway/internal/llm"
	"github.com/vespucci-ai/vespucci-gateway/internal/mcp"
	"github.com/vespucci-ai/vespucci-gateway/internal/store"
)

// fakeService returns a canned result or error.
type fakeService struct {
	result  *conversation.Result
	err     error
	lastReq *conversation.Request
}

func (f *fakeService) ProcessQuery(ctx context.Context, req *conversation.Request) (*conversation.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeTools returns a fixed tool list.
type fakeTools struct {
	tools      []mcp.Tool
	refreshed  int
	refreshErr error
}

func (f *fakeTools) Tools() []mcp.Tool { return f.tools }

func (f *fakeTools) Refresh(ctx context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func newTestGateway(t *testing.T, svc *fakeService, tools *fakeTools) *Gateway {
	t.Helper()

	sqlStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return &Gateway{
		logger:  slog.Default(),
		store:   sqlStore,
		service: svc,
		tools:   tools,
	}
}

func TestHandleQuery_Success(t *testing.T) {
	svc := &fakeService{result: &conversation.Result{
		ConversationID: "conv-1",
		Messages: []llm.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello!"},
		},
	}}
	gw := newTestGateway(t, svc, &fakeTools{})

	body, _ := json.Marshal(QueryRequest{Query: "hi", Source: "discord", ExternalID: "chan-1", Sender: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	gw.handleQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "conv-1", resp.ConversationID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "assistant", resp.Messages[1].Role)
	assert.Equal(t, "hello!", resp.Messages[1].Content)

	// Request fields reached the orchestrator
	require.NotNil(t, svc.lastReq)
	assert.Equal(t, "discord", svc.lastReq.Source)
	assert.Equal(t, "chan-1", svc.lastReq.ExternalID)
	assert.Equal(t, "alice", svc.lastReq.Sender)
}

func TestHandleQuery_EmptyQuery(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte(`{"query":"  "}`)))
	rec := httptest.NewRecorder()

	gw.handleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Contains(t, errResp["error"], "query is required")
}

func TestHandleQuery_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()

	gw.handleQuery(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuery_ServiceError(t *testing.T) {
	svc := &fakeService{err: errors.New("language model: upstream 500")}
	gw := newTestGateway(t, svc, &fakeTools{})

	body, _ := json.Marshal(QueryRequest{Query: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	gw.handleQuery(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleQuery_MethodNotAllowed(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	rec := httptest.NewRecorder()

	gw.handleQuery(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleTools(t *testing.T) {
	tools := &fakeTools{tools: []mcp.Tool{
		{Name: "search", Description: "Searches the web", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}}
	gw := newTestGateway(t, &fakeService{}, tools)

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()

	gw.handleTools(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"input_schema"`
		} `json:"tools"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "search", resp.Tools[0].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(resp.Tools[0].InputSchema))

	// The listing re-fetches the live tool list from the MCP server
	assert.Equal(t, 1, tools.refreshed)
}

func TestHandleTools_RefreshFailureServesCachedList(t *testing.T) {
	tools := &fakeTools{
		tools:      []mcp.Tool{{Name: "search", Description: "Searches the web"}},
		refreshErr: errors.New("mcp server gone"),
	}
	gw := newTestGateway(t, &fakeService{}, tools)

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()

	gw.handleTools(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ToolsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "search", resp.Tools[0].Name)
}

func TestHandleTools_Empty(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()

	gw.handleTools(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// Empty list renders as [], not null
	assert.Contains(t, rec.Body.String(), `"tools":[]`)
}

func seedConversation(t *testing.T, gw *Gateway, id string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, gw.store.CreateConversation(ctx, &store.Conversation{
		ID: id, Source: "rest", ExternalID: id, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, gw.store.AppendMessage(ctx, &store.Message{
		ID: id + "-m1", ConversationID: id, Role: "user", Content: "hello", CreatedAt: now,
	}))
	require.NoError(t, gw.store.AppendMessage(ctx, &store.Message{
		ID: id + "-m2", ConversationID: id, Role: "assistant", Content: "hi there", CreatedAt: now.Add(time.Second),
	}))
}

func TestHandleGetConversation(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})
	seedConversation(t, gw, "conv-hist")

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-hist", nil)
	rec := httptest.NewRecorder()

	gw.handleGetConversation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationMessagesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "conv-hist", resp.ConversationID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "hi there", resp.Messages[1].Content)
}

func TestHandleGetConversation_Export(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})
	seedConversation(t, gw, "conv-export")

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-export?format=export", nil)
	rec := httptest.NewRecorder()

	gw.handleGetConversation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	require.Len(t, exported, 2)
	assert.Equal(t, "hello", exported[0]["content"])
}

func TestHandleGetConversation_NotFound(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/missing", nil)
	rec := httptest.NewRecorder()

	gw.handleGetConversation(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListConversations(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})
	seedConversation(t, gw, "conv-a")
	seedConversation(t, gw, "conv-b")

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?limit=1", nil)
	rec := httptest.NewRecorder()

	gw.handleListConversations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListConversationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Conversations, 1)
}

func TestHandleListConversations_BadLimit(t *testing.T) {
	gw := newTestGateway(t, &fakeService{}, &fakeTools{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?limit=x", nil)
	rec := httptest.NewRecorder()

	gw.handleListConversations(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	tools := &fakeTools{tools: []mcp.Tool{{Name: "search"}, {Name: "fetch"}}}
	gw := newTestGateway(t, &fakeService{}, tools)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	gw.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Tools)
}
