package ai

import (
	"context"
	"fmt"

	"github.com/flitsinc/go-llms/anthropic"
	"github.com/flitsinc/go-llms/content"
	"github.com/flitsinc/go-llms/google"
	"github.com/flitsinc/go-llms/llms"
	"github.com/flitsinc/go-llms/openai"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
}

// Client wraps one LLM session. The brain holds a single client for its
// whole lifetime; conversation history lives in the brain, not here.
type Client struct {
	LLM    *llms.LLM
	config Config
}

func NewClient(cfg Config) (*Client, error) {
	llm, err := newLLM(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{LLM: llm, config: cfg}, nil
}

func newLLM(cfg Config) (*llms.LLM, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	var provider llms.Provider
	switch cfg.Provider {
	case "openai-responses":
		provider = openai.NewResponsesAPI(cfg.APIKey, cfg.Model)
	case "openai-chat":
		provider = openai.NewChatCompletionsAPI(cfg.APIKey, cfg.Model)
	case "anthropic":
		provider = anthropic.New(cfg.APIKey, cfg.Model)
	case "google":
		provider = google.New(cfg.Model).WithGeminiAPI(cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	return llms.New(provider), nil
}

// Complete runs one completion over the given history and returns the
// model's full text reply.
func (c *Client) Complete(ctx context.Context, system string, messages []llms.Message) (string, error) {
	if c == nil || c.LLM == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	c.LLM.SystemPrompt = func() content.Content { return content.FromText(system) }

	var output string
	for update := range c.LLM.ChatUsingMessages(ctx, messages) {
		if textUpdate, ok := update.(llms.TextUpdate); ok {
			output += textUpdate.Text
		}
	}
	if err := c.LLM.Err(); err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return output, nil
}
