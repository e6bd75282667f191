// Package anthropic adapts the Anthropic Messages API to the LLM port.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/mrioja/flowd/internal/ports"
)

// Client implements ports.LLMClient against the Anthropic Messages API.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewClient creates an Anthropic client with the given credentials and
// defaults.
func NewClient(apiKey, model string, maxTokens int, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger,
	}, nil
}

// Complete sends a single-turn request and returns the concatenated text
// content.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (*ports.LLMCompletion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	content := sb.String()
	if content == "" {
		return nil, fmt.Errorf("anthropic response contained no text content")
	}

	c.logger.Debug("anthropic completion",
		zap.String("model", c.model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))

	return &ports.LLMCompletion{
		Content:      content,
		Model:        c.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// Synthesize implements ports.Synthesizer on top of Complete.
func (c *Client) Synthesize(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	completion, err := c.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}
