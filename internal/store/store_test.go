// ABOUTME: Tests for the SQLite conversation store
// ABOUTME: Covers conversation CRUD, message ordering, and JSON export

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func testConversation(id string) *Conversation {
	now := time.Now().UTC().Truncate(time.Second)
	return &Conversation{
		ID:         id,
		Source:     "rest",
		ExternalID: "ext-" + id,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStore_CreateConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-123")
	err := store.CreateConversation(ctx, conv)
	require.NoError(t, err)

	retrieved, err := store.GetConversation(ctx, "conv-123")
	require.NoError(t, err)
	assert.Equal(t, "conv-123", retrieved.ID)
	assert.Equal(t, "rest", retrieved.Source)
	assert.Equal(t, "ext-conv-123", retrieved.ExternalID)
	assert.True(t, conv.CreatedAt.Equal(retrieved.CreatedAt))
}

func TestStore_CreateConversation_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-dup")
	require.NoError(t, store.CreateConversation(ctx, conv))

	// Same source + external_id must be rejected even with a different ID
	dup := testConversation("conv-other")
	dup.ExternalID = conv.ExternalID
	err := store.CreateConversation(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetConversationBySource(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-src")
	conv.Source = "discord"
	conv.ExternalID = "channel-42"
	require.NoError(t, store.CreateConversation(ctx, conv))

	retrieved, err := store.GetConversationBySource(ctx, "discord", "channel-42")
	require.NoError(t, err)
	assert.Equal(t, "conv-src", retrieved.ID)

	_, err = store.GetConversationBySource(ctx, "discord", "channel-99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AppendAndGetMessages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-msgs")
	require.NoError(t, store.CreateConversation(ctx, conv))

	base := time.Now().UTC().Truncate(time.Second)
	msgs := []*Message{
		{ID: "m1", ConversationID: conv.ID, Role: RoleUser, Content: "what is the weather?", CreatedAt: base},
		{ID: "m2", ConversationID: conv.ID, Role: RoleAssistant, Content: `<function=search{"query":"weather"}>`, CreatedAt: base.Add(time.Second)},
		{ID: "m3", ConversationID: conv.ID, Role: RoleUser, Content: "Tool 'search' returned: sunny", Kind: KindToolResult, ToolName: "search", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m4", ConversationID: conv.ID, Role: RoleAssistant, Content: "It is sunny.", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, msg := range msgs {
		require.NoError(t, store.AppendMessage(ctx, msg))
	}

	retrieved, err := store.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, retrieved, 4)

	// Chronological order
	for i, msg := range retrieved {
		assert.Equal(t, msgs[i].ID, msg.ID)
		assert.Equal(t, msgs[i].Role, msg.Role)
		assert.Equal(t, msgs[i].Content, msg.Content)
	}

	// Kind defaults to "message"
	assert.Equal(t, KindMessage, retrieved[0].Kind)
	assert.Equal(t, KindToolResult, retrieved[2].Kind)
	assert.Equal(t, "search", retrieved[2].ToolName)
	assert.Empty(t, retrieved[0].ToolName)

	// Appending messages bumps the conversation's updated_at
	updated, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(conv.CreatedAt))
}

func TestStore_GetMessages_SameInstantKeepsAppendOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-burst")
	require.NoError(t, store.CreateConversation(ctx, conv))

	// A single query appends its whole turn within the same instant, and
	// random UUIDs sort in arbitrary order. Neither timestamp ties nor ID
	// order may reshuffle the transcript.
	now := time.Now().UTC()
	msgs := []*Message{
		{ID: "zz-assistant", ConversationID: conv.ID, Role: RoleAssistant, Content: `<function=search{"query":"btc"}>`, CreatedAt: now},
		{ID: "aa-toolresult", ConversationID: conv.ID, Role: RoleUser, Content: "Tool 'search' returned: data", Kind: KindToolResult, ToolName: "search", CreatedAt: now},
		{ID: "mm-assistant", ConversationID: conv.ID, Role: RoleAssistant, Content: "Here is the data.", CreatedAt: now},
	}
	for _, msg := range msgs {
		require.NoError(t, store.AppendMessage(ctx, msg))
	}

	retrieved, err := store.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, retrieved, 3)
	assert.Equal(t, "zz-assistant", retrieved[0].ID)
	assert.Equal(t, "aa-toolresult", retrieved[1].ID)
	assert.Equal(t, "mm-assistant", retrieved[2].ID)
}

func TestStore_RoundTripsSubSecondTimestamps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-nano")
	require.NoError(t, store.CreateConversation(ctx, conv))

	at := time.Date(2026, 8, 31, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, store.AppendMessage(ctx, &Message{
		ID: "m1", ConversationID: conv.ID, Role: RoleUser, Content: "hi", CreatedAt: at,
	}))

	retrieved, err := store.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, retrieved, 1)
	assert.True(t, at.Equal(retrieved[0].CreatedAt), "sub-second precision survives storage")
}

func TestStore_GetMessages_UnknownConversation(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetMessages(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListConversations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		conv := testConversation(fmt.Sprintf("conv-%d", i))
		conv.CreatedAt = base.Add(time.Duration(i) * time.Second)
		conv.UpdatedAt = conv.CreatedAt
		require.NoError(t, store.CreateConversation(ctx, conv))
	}

	// Newest first
	conversations, err := store.ListConversations(ctx, 3)
	require.NoError(t, err)
	require.Len(t, conversations, 3)
	assert.Equal(t, "conv-4", conversations[0].ID)
	assert.Equal(t, "conv-3", conversations[1].ID)
	assert.Equal(t, "conv-2", conversations[2].ID)

	// Zero limit falls back to the default
	all, err := store.ListConversations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_ExportJSON(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-export")
	require.NoError(t, store.CreateConversation(ctx, conv))

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.AppendMessage(ctx, &Message{
		ID: "m1", ConversationID: conv.ID, Role: RoleUser, Content: "hello", CreatedAt: base,
	}))
	require.NoError(t, store.AppendMessage(ctx, &Message{
		ID: "m2", ConversationID: conv.ID, Role: RoleUser, Content: "Tool 'search' returned: ok",
		Kind: KindToolResult, ToolName: "search", CreatedAt: base.Add(time.Second),
	}))

	data, err := store.ExportJSON(ctx, conv.ID)
	require.NoError(t, err)

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 2)

	assert.Equal(t, "user", exported[0]["role"])
	assert.Equal(t, "hello", exported[0]["content"])
	_, hasKind := exported[0]["kind"]
	assert.False(t, hasKind, "plain messages omit kind")

	assert.Equal(t, KindToolResult, exported[1]["kind"])
	assert.Equal(t, "search", exported[1]["tool_name"])
}

func TestStore_ExportJSON_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.ExportJSON(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}
