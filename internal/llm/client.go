// ABOUTME: Client for the hosted language model API (Groq, OpenAI-compatible)
// ABOUTME: Wraps the openai-go SDK with a base URL override and request timeouts

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/vespucci-ai/vespucci-gateway/internal/config"
)

// ErrEmptyResponse is returned when the API responds without any choices.
var ErrEmptyResponse = errors.New("empty response from language model")

// Message is a single entry in the chat transcript sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	api         openai.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

// New creates a language model client from configuration.
func New(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}

	api := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	)

	return &Client{
		api:         api,
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		timeout:     cfg.RequestTimeout,
		logger:      slog.Default().With("component", "llm"),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends the transcript to the model and returns the assistant text.
// The transcript must already include the system message; see SystemPrompt.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toParams(messages),
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	}

	c.logger.Debug("calling language model", "model", c.model, "messages", len(messages))

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		// Not an error: the model occasionally returns an empty turn.
		c.logger.Warn("language model returned empty content", "model", c.model)
	}

	return content, nil
}

// toParams maps transcript messages onto SDK message params.
// Unknown roles are treated as user messages.
func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params = append(params, openai.SystemMessage(msg.Content))
		case "assistant":
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}
	return params
}
