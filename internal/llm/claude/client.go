// Package claude implements the pipeline's completion provider on the Claude API.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Both pipeline call sites expect a short JSON object or a single token, so
// the response budget stays small.
const maxTokens = 1024

// Client sends single-turn completion requests to the Claude API.
type Client struct {
	client *anthropic.Client
	model  string
}

// New creates a Claude client with the given API key and model name.
func New(apiKey, model string) *Client {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  model,
	}
}

// Complete sends one user prompt and returns the model's text response.
// Temperature is pinned to zero: extraction and comparison are meant to be
// stable functions of their input text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}
	return textContent(resp), nil
}

// textContent concatenates the text blocks of a response.
func textContent(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
