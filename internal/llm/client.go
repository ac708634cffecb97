// Package llm talks to OpenAI-compatible chat completion endpoints for the
// generation commands. The retrieval core never calls it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrCompletionUnavailable indicates the completion endpoint could not be
// reached or returned an unusable response.
var ErrCompletionUnavailable = errors.New("completion service unavailable")

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "x-ai/grok-code-fast-1"

	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
)

// Completer generates one assistant reply per system + user exchange.
// Consumers take this interface so tests can substitute a canned model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Config holds completion client settings. The defaults target OpenRouter;
// any OpenAI-compatible endpoint works via BaseURL.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// DefaultConfig returns the OpenRouter-backed defaults, reading the key from
// OPENROUTER_API_KEY with OPENAI_API_KEY as the fallback.
func DefaultConfig() Config {
	key := os.Getenv("OPENROUTER_API_KEY")
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	return Config{
		BaseURL:     defaultBaseURL,
		APIKey:      key,
		Model:       defaultModel,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
}

// Client is the HTTP-backed Completer.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient builds a Client, filling zero config values from DefaultConfig.
// A key must be available from the config or the environment.
func NewClient(cfg Config) (*Client, error) {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = defaults.APIKey
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion API key is required (set OPENROUTER_API_KEY)")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Model returns the chat model in use.
func (c *Client) Model() string {
	return c.model
}

// Complete sends one system + user exchange and returns the assistant text.
// An empty system prompt sends the user message alone.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", fmt.Errorf("completion input cannot be empty")
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrCompletionUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
