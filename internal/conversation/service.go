// ABOUTME: ConversationService runs the query -> model -> tool -> model loop
// ABOUTME: All messages flow through here - history is the source of truth, not a side effect

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vespucci-ai/vespucci-gateway/internal/llm"
	"github.com/vespucci-ai/vespucci-gateway/internal/store"
)

// Store defines what the service needs from storage
type Store interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversationBySource(ctx context.Context, source, externalID string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, msg *store.Message) error
}

// Completer defines what the service needs from the language model layer
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// ToolRunner defines what the service needs from the MCP layer
type ToolRunner interface {
	ToolNames() []string
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Service is the central conversation layer. It persists every message
// before and after each model round, executes tool calls the model requests,
// and feeds tool results back until the model produces a final answer.
type Service struct {
	store         Store
	llm           Completer
	tools         ToolRunner
	maxToolRounds int
	logger        *slog.Logger
}

// New creates a new conversation Service. maxToolRounds bounds how many
// tool-execution rounds a single query may trigger; values <= 0 default to 5.
func New(st Store, completer Completer, tools ToolRunner, maxToolRounds int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxToolRounds <= 0 {
		maxToolRounds = 5
	}
	return &Service{
		store:         st,
		llm:           completer,
		tools:         tools,
		maxToolRounds: maxToolRounds,
		logger:        logger.With("component", "conversation"),
	}
}

// Request contains everything needed to process a query through the conversation layer
type Request struct {
	// Source names the frontend: "rest", "discord".
	Source string
	// ExternalID is the frontend-specific conversation key (e.g. a Discord
	// channel ID). When empty, a fresh conversation is created for the query.
	ExternalID string
	// Sender identifies the user, for logging only.
	Sender string
	// Query is the user's message text.
	Query string

	// OnToolRound, when set, is invoked once before each round of tool
	// executions. Frontends use it to post interim "working on it" notices.
	OnToolRound func(round int)
}

// Result is the outcome of processing a query.
type Result struct {
	ConversationID string
	// Messages is the transcript produced by this query, system message
	// excluded: the user message, assistant turns, and tool results.
	Messages []llm.Message
}

// FinalAnswer returns the content of the last assistant message, or "".
func (r *Result) FinalAnswer() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == store.RoleAssistant {
			return r.Messages[i].Content
		}
	}
	return ""
}

// toolLimitNotice is appended when a query exhausts its tool rounds.
const toolLimitNotice = "I reached the limit of tool calls for this query and could not finish gathering information. Here is what I have so far; please refine your question or try again."

// ProcessQuery runs a user query through the model/tool loop.
//
// Key principle: record first, then act. The user message is persisted
// BEFORE the first model call, and every assistant turn and tool result is
// persisted as soon as it exists. Model and storage failures propagate to
// the caller; tool execution failures are reported back to the model
// instead, which may recover or answer without the tool.
func (s *Service) ProcessQuery(ctx context.Context, req *Request) (*Result, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	conv, err := s.ensureConversation(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("conversation resolution failed: %w", err)
	}

	s.logger.Info("processing query",
		"conversation_id", conv.ID,
		"source", conv.Source,
		"sender", req.Sender,
	)

	result := &Result{ConversationID: conv.ID}

	// Each query starts a fresh model transcript; the store keeps the full
	// cross-query history for audit and export.
	transcript := []llm.Message{
		{Role: store.RoleSystem, Content: llm.SystemPrompt(s.tools.ToolNames())},
	}

	userMsg := llm.Message{Role: store.RoleUser, Content: req.Query}
	if err := s.record(ctx, conv.ID, userMsg, store.KindMessage, ""); err != nil {
		return nil, err
	}
	transcript = append(transcript, userMsg)
	result.Messages = append(result.Messages, userMsg)

	for round := 0; ; round++ {
		content, err := s.llm.Complete(ctx, transcript)
		if err != nil {
			return nil, fmt.Errorf("language model: %w", err)
		}

		assistantMsg := llm.Message{Role: store.RoleAssistant, Content: content}
		if err := s.record(ctx, conv.ID, assistantMsg, store.KindMessage, ""); err != nil {
			return nil, err
		}
		transcript = append(transcript, assistantMsg)
		result.Messages = append(result.Messages, assistantMsg)

		if !llm.ContainsToolCall(content) {
			return result, nil
		}

		calls := llm.ParseToolCalls(content)
		if len(calls) == 0 {
			// A "<function=" marker without a parseable call: treat the turn
			// as a final answer rather than looping on nothing.
			return result, nil
		}

		if round >= s.maxToolRounds {
			s.logger.Warn("tool round limit reached",
				"conversation_id", conv.ID,
				"rounds", round,
			)
			notice := llm.Message{Role: store.RoleAssistant, Content: toolLimitNotice}
			if err := s.record(ctx, conv.ID, notice, store.KindMessage, ""); err != nil {
				return nil, err
			}
			result.Messages = append(result.Messages, notice)
			return result, nil
		}

		if req.OnToolRound != nil {
			req.OnToolRound(round)
		}

		for _, call := range calls {
			feedback := s.executeTool(ctx, conv.ID, call)
			if err := s.record(ctx, conv.ID, feedback, store.KindToolResult, call.Name); err != nil {
				return nil, err
			}
			transcript = append(transcript, feedback)
			result.Messages = append(result.Messages, feedback)
		}
	}
}

// executeTool runs a single tool call and formats its outcome as the
// user-role feedback message the model expects. Tool errors (including
// malformed arguments) become feedback, never a failed query.
func (s *Service) executeTool(ctx context.Context, conversationID string, call llm.ToolCall) llm.Message {
	if call.Err != nil {
		s.logger.Warn("malformed tool arguments",
			"conversation_id", conversationID,
			"tool", call.Name,
			"error", call.Err,
		)
		return llm.Message{
			Role:    store.RoleUser,
			Content: fmt.Sprintf("Error using tool '%s': %v", call.Name, call.Err),
		}
	}

	s.logger.Info("executing tool call", "conversation_id", conversationID, "tool", call.Name)

	output, err := s.tools.Call(ctx, call.Name, call.Args)
	if err != nil {
		s.logger.Warn("tool call failed",
			"conversation_id", conversationID,
			"tool", call.Name,
			"error", err,
		)
		return llm.Message{
			Role:    store.RoleUser,
			Content: fmt.Sprintf("Error using tool '%s': %v", call.Name, err),
		}
	}

	return llm.Message{
		Role:    store.RoleUser,
		Content: fmt.Sprintf("Tool '%s' returned: %s", call.Name, output),
	}
}

// ensureConversation resolves the conversation for a request, creating it on
// first contact. Requests without an external ID get a fresh conversation.
func (s *Service) ensureConversation(ctx context.Context, req *Request) (*store.Conversation, error) {
	source := req.Source
	if source == "" {
		source = "rest"
	}

	if req.ExternalID != "" {
		conv, err := s.store.GetConversationBySource(ctx, source, req.ExternalID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:         uuid.New().String(),
		Source:     source,
		ExternalID: req.ExternalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if conv.ExternalID == "" {
		// One-shot conversations key on their own ID to satisfy the
		// (source, external_id) uniqueness constraint.
		conv.ExternalID = conv.ID
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// Lost a race with a concurrent first message for this channel.
		if errors.Is(err, store.ErrDuplicateConversation) && req.ExternalID != "" {
			return s.store.GetConversationBySource(ctx, source, req.ExternalID)
		}
		return nil, err
	}

	s.logger.Debug("created conversation", "id", conv.ID, "source", source)
	return conv, nil
}

// record persists a transcript message to the store.
func (s *Service) record(ctx context.Context, conversationID string, msg llm.Message, kind, toolName string) error {
	err := s.store.AppendMessage(ctx, &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		Kind:           kind,
		ToolName:       toolName,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}
