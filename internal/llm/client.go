// Package llm wraps the Anthropic API behind the narrow text-generation
// interface the analysis pipeline consumes.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are ClinIA, a clinical decision support assistant. " +
	"Always respond with a single JSON object and nothing else."

// Client calls the Anthropic messages API
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// Config holds client configuration
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64 // defaults to 4096
}

// NewClient creates a new Anthropic-backed generator
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// Generate sends the prompt and returns the raw model text. The caller
// bounds the call through ctx; any error counts as a breaker failure
// upstream.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}

	if out.Len() == 0 {
		return "", fmt.Errorf("model returned no text content")
	}

	return out.String(), nil
}
