package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
)

// Fetcher returns the ordered token explanations for a piece of code.
type Fetcher interface {
	Fetch(ctx context.Context, code string) ([]Token, error)
}

var _ Fetcher = (*Client)(nil)

// Client fetches explanations from an OpenAI-compatible chat endpoint.
type Client struct {
	*Config
	completions openai.ChatCompletionService
	logger      *log.Logger
}

// New creates a client for the endpoint at url using the given model.
func New(url, model string, options ...Option) (*Client, error) {
	cfg := &Config{
		url:   url,
		model: model,
	}

	for _, option := range options {
		option(cfg)
	}

	if cfg.model == "" {
		cfg.model = DefaultModel
	}
	if cfg.prompt == "" {
		cfg.prompt = SystemPrompt
	}

	return &Client{
		Config:      cfg,
		completions: openai.NewChatCompletionService(cfg.Options()...),
		logger:      log.Default().WithPrefix("explain"),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Fetch sends code to the model and parses its answer. Empty input fails
// with ErrEmptyInput without contacting the endpoint.
func (c *Client) Fetch(ctx context.Context, code string) ([]Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyInput
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.prompt),
			openai.UserMessage(code),
		},
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	c.logger.Debug("Requesting explanations", "model", c.model, "bytes", len(code))

	completion, err := c.completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch explanations: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, malformed("", "response has no choices")
	}

	tokens, err := ParseTokens(completion.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("Could not parse explanations", "err", err)
		return nil, err
	}

	c.logger.Debug("Received explanations", "tokens", len(tokens))
	return tokens, nil
}
