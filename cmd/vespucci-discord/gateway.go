// ABOUTME: Gateway API client for vespucci-discord bridge
// ABOUTME: Sends queries and fetches the tool list from vespucci-gateway

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QueryRequest is the request body for POST /api/query.
type QueryRequest struct {
	Query      string `json:"query"`
	Source     string `json:"source,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Sender     string `json:"sender,omitempty"`
}

// QueryResponse is the response body from POST /api/query.
type QueryResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []ResponseMessage `json:"messages"`
}

// ResponseMessage is a single transcript entry in a query response.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FinalAnswer returns the content of the last assistant message, if any.
func (r *QueryResponse) FinalAnswer() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "assistant" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ToolInfo describes a single tool from GET /api/tools.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolsResponse is the response body from GET /api/tools.
type ToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}

// errorResponse is the JSON error shape returned by the gateway.
type errorResponse struct {
	Error string `json:"error"`
}

// GatewayClient communicates with the vespucci-gateway HTTP API.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

// NewGatewayClient creates a new gateway client. Query processing can take
// multiple LLM round trips, so the request timeout is generous.
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Query sends a user query to the gateway and returns the response transcript.
func (g *GatewayClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.handleErrorResponse(resp)
	}

	var queryResp QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &queryResp, nil
}

// Tools fetches the list of available MCP tools from the gateway.
func (g *GatewayClient) Tools(ctx context.Context) ([]ToolInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/api/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.handleErrorResponse(resp)
	}

	var toolsResp ToolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&toolsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return toolsResp.Tools, nil
}

// handleErrorResponse extracts the error message from non-200 responses.
func (g *GatewayClient) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	// Try to parse as JSON error
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("gateway error (%d): %s", resp.StatusCode, errResp.Error)
		}
	}

	return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
}
