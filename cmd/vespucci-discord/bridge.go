// ABOUTME: Discord bridge core for vespucci-discord
// ABOUTME: Handles Discord session events and message routing to gateway

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// maxMessageLength is Discord's per-message content limit.
const maxMessageLength = 2000

// interimDelay is how long to wait before posting a progress message
// while the gateway is still working on a query.
const interimDelay = 5 * time.Second

const interimText = "Using tools to research your question, one moment..."

const busyText = "I'm still working on the previous question in this channel, one moment..."

const helpText = "I'm a research assistant. Mention a question and I'll answer it, " +
	"using web research tools when needed.\n" +
	"Commands:\n" +
	"`!help` - show this message\n" +
	"`!tools` - list available research tools"

// Bridge connects Discord channels to vespucci-gateway.
type Bridge struct {
	config  *Config
	session *discordgo.Session
	gateway *GatewayClient
	logger  *slog.Logger

	// Track channels we're actively processing to avoid duplicate handling
	processing sync.Map

	// ctx is the parent context for message processing goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a new Discord bridge.
func NewBridge(cfg *Config, logger *slog.Logger) (*Bridge, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	gateway := NewGatewayClient(cfg.Gateway.URL)

	return &Bridge{
		config:  cfg,
		session: session,
		gateway: gateway,
		logger:  logger,
	}, nil
}

// Run starts the bridge and blocks until context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting discord bridge",
		"gateway", b.config.Gateway.URL,
	)

	// Store context for message processing goroutines
	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	b.session.AddHandler(b.handleMessageCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	defer b.session.Close()

	b.logger.Info("discord bridge running",
		"user", b.session.State.User.Username,
	)

	<-ctx.Done()
	b.logger.Info("shutting down discord bridge")
	return nil
}

// handleMessageCreate processes incoming Discord messages.
func (b *Bridge) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore our own messages and other bots
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	if !b.isChannelAllowed(m.ChannelID) {
		b.logger.Debug("ignoring message from non-allowed channel", "channel", m.ChannelID)
		return
	}

	content := strings.TrimSpace(m.Content)

	// Built-in commands are answered locally
	switch content {
	case "!help":
		b.sendChunked(m.ChannelID, helpText)
		return
	case "!tools":
		go b.replyWithTools(b.ctx, m.ChannelID)
		return
	}

	// Check command prefix
	if b.config.Bridge.CommandPrefix != "" {
		if !strings.HasPrefix(content, b.config.Bridge.CommandPrefix) {
			return
		}
		content = strings.TrimPrefix(content, b.config.Bridge.CommandPrefix)
		content = strings.TrimSpace(content)
	}

	if content == "" {
		return
	}

	b.logger.Info("received message",
		"channel", m.ChannelID,
		"sender", m.Author.Username,
		"content", truncate(content, 50),
	)

	// Process in a goroutine to not block the event handler
	go b.processMessage(b.ctx, m.ChannelID, m.Author.Username, content)
}

// tryAcquire marks a channel as busy. It reports false when another message
// is already being processed in that channel.
func (b *Bridge) tryAcquire(channelID string) bool {
	_, loaded := b.processing.LoadOrStore(channelID, true)
	return !loaded
}

// release marks a channel as idle again.
func (b *Bridge) release(channelID string) {
	b.processing.Delete(channelID)
}

// interimNotice coordinates the delayed progress message with answer delivery.
// The posting goroutine and the delivery path race at the moment the gateway
// responds; whichever side comes second cleans up.
type interimNotice struct {
	mu        sync.Mutex
	messageID string
	delivered bool
}

// posted records the interim message ID. It reports true when the answer was
// already delivered, meaning the message is stale and the caller must delete it.
func (n *interimNotice) posted(id string) (stale bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.delivered {
		return true
	}
	n.messageID = id
	return false
}

// finish marks the answer as delivered and returns the interim message ID to
// edit, or "" if none was posted in time.
func (n *interimNotice) finish() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = true
	return n.messageID
}

// processMessage sends the query to the gateway and relays the answer back.
func (b *Bridge) processMessage(ctx context.Context, channelID, sender, content string) {
	// One query at a time per channel; tell the sender instead of silently
	// dropping their message.
	if !b.tryAcquire(channelID) {
		b.logger.Debug("channel busy, notifying sender", "channel", channelID)
		b.sendOne(channelID, busyText)
		return
	}
	defer b.release(channelID)

	if b.config.Bridge.TypingIndicator {
		stopTyping := b.startTyping(ctx, channelID)
		defer stopTyping()
	}

	// Post a progress message if the gateway takes a while
	notice := &interimNotice{}
	interimDone := make(chan struct{})
	go func() {
		select {
		case <-time.After(interimDelay):
			msg, err := b.session.ChannelMessageSend(channelID, interimText)
			if err != nil {
				b.logger.Debug("failed to send interim message", "channel", channelID, "error", err)
				return
			}
			if notice.posted(msg.ID) {
				// Answer landed while the send was in flight; remove the
				// now-stale progress message.
				if err := b.session.ChannelMessageDelete(channelID, msg.ID); err != nil {
					b.logger.Debug("failed to delete stale interim message", "channel", channelID, "error", err)
				}
			}
		case <-interimDone:
		}
	}()

	resp, err := b.gateway.Query(ctx, QueryRequest{
		Query:      content,
		Source:     "discord",
		ExternalID: channelID,
		Sender:     sender,
	})
	close(interimDone)

	if err != nil {
		b.logger.Error("gateway request failed", "channel", channelID, "error", err)
		b.deliver(channelID, notice, fmt.Sprintf("Error: %v", err))
		return
	}

	answer := resp.FinalAnswer()
	if answer == "" {
		b.logger.Warn("empty answer from gateway", "channel", channelID)
		b.deliver(channelID, notice, "Sorry, I couldn't produce an answer.")
		return
	}

	b.logger.Info("sending answer",
		"channel", channelID,
		"conversation_id", resp.ConversationID,
		"length", len(answer),
	)

	b.deliver(channelID, notice, answer)
}

// deliver sends text to a channel, editing the interim message with the first
// chunk when one was posted.
func (b *Bridge) deliver(channelID string, notice *interimNotice, text string) {
	editID := notice.finish()

	chunks := chunkMessage(text, maxMessageLength)
	if len(chunks) == 0 {
		return
	}

	if editID != "" {
		if _, err := b.session.ChannelMessageEdit(channelID, editID, chunks[0]); err != nil {
			b.logger.Debug("failed to edit interim message", "channel", channelID, "error", err)
			b.sendOne(channelID, chunks[0])
		}
		chunks = chunks[1:]
	}

	for _, chunk := range chunks {
		b.sendOne(channelID, chunk)
	}
}

// replyWithTools fetches the tool list from the gateway and posts it.
func (b *Bridge) replyWithTools(ctx context.Context, channelID string) {
	tools, err := b.gateway.Tools(ctx)
	if err != nil {
		b.logger.Error("fetching tools failed", "channel", channelID, "error", err)
		b.sendOne(channelID, fmt.Sprintf("Error fetching tools: %v", err))
		return
	}

	if len(tools) == 0 {
		b.sendOne(channelID, "No research tools are currently available.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Available research tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&sb, "`%s` - %s\n", tool.Name, tool.Description)
	}
	b.sendChunked(channelID, sb.String())
}

// isChannelAllowed checks if the channel is in the allowed list.
func (b *Bridge) isChannelAllowed(channelID string) bool {
	if len(b.config.Bridge.AllowedChannels) == 0 {
		return true // Allow all if no filter
	}

	for _, allowed := range b.config.Bridge.AllowedChannels {
		if allowed == channelID {
			return true
		}
	}
	return false
}

// typingInterval is how often the typing indicator is refreshed. Discord
// expires it after about ten seconds.
const typingInterval = 8 * time.Second

// startTyping shows the typing indicator until the returned stop function
// is called.
func (b *Bridge) startTyping(ctx context.Context, channelID string) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		if err := b.session.ChannelTyping(channelID); err != nil {
			b.logger.Debug("failed to set typing indicator", "channel", channelID, "error", err)
		}

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := b.session.ChannelTyping(channelID); err != nil {
					b.logger.Debug("failed to set typing indicator", "channel", channelID, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// sendChunked sends text to a channel, splitting it to fit Discord's limit.
func (b *Bridge) sendChunked(channelID, text string) {
	for _, chunk := range chunkMessage(text, maxMessageLength) {
		b.sendOne(channelID, chunk)
	}
}

// sendOne sends a single message to a channel.
func (b *Bridge) sendOne(channelID, text string) {
	if _, err := b.session.ChannelMessageSend(channelID, text); err != nil {
		b.logger.Error("failed to send message", "channel", channelID, "error", err)
	}
}

// chunkMessage splits text into pieces no longer than limit runes, breaking
// on newlines where possible.
func chunkMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	runes := []rune(text)

	for len(runes) > limit {
		cut := limit
		// Prefer breaking at the last newline within the limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}

		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}

	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}

	return chunks
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
