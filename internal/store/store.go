// ABOUTME: Store interface and data types for vespucci-gateway persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation links a sequence of messages to the frontend that started it
type Conversation struct {
	ID         string
	Source     string // "rest", "discord"
	ExternalID string // frontend-specific ID (Discord channel ID); unique per source
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Message roles, mirroring the chat-completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageKind constants for message kinds
const (
	KindMessage    = "message"     // Regular text message
	KindToolResult = "tool_result" // Tool output fed back to the model
)

// Message represents a single message within a conversation
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Kind           string // "message" or "tool_result" (defaults to "message")
	ToolName       string // For tool_result: name of the tool that produced it
	CreatedAt      time.Time
}

// Store defines the persistence operations used by the gateway
type Store interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationBySource(ctx context.Context, source, externalID string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)

	AppendMessage(ctx context.Context, msg *Message) error
	GetMessages(ctx context.Context, conversationID string) ([]*Message, error)

	ExportJSON(ctx context.Context, conversationID string) ([]byte, error)

	Close() error
}
