// ABOUTME: JSON export of a stored conversation
// ABOUTME: Produces the conversation-log document format used by clients and tooling

package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// exportedMessage is the JSON shape of a single message in an exported log.
type exportedMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Kind      string `json:"kind,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ExportJSON renders a conversation as an indented JSON array of messages,
// suitable for writing to a conversation log file.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) ExportJSON(ctx context.Context, conversationID string) ([]byte, error) {
	messages, err := s.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	exported := make([]exportedMessage, 0, len(messages))
	for _, msg := range messages {
		em := exportedMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			ToolName:  msg.ToolName,
			CreatedAt: msg.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		// Plain messages omit the kind field to keep logs compact.
		if msg.Kind != KindMessage {
			em.Kind = msg.Kind
		}
		exported = append(exported, em)
	}

	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling conversation %s: %w", conversationID, err)
	}
	return data, nil
}
