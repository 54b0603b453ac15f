package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic-backed Client.
type AnthropicConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the default API endpoint (e.g. for a proxy). Empty
	// uses the SDK default.
	BaseURL string
}

// anthropicClient implements Client against api.anthropic.com via the
// official SDK, grounded on the chat-completion wiring used by the pack's
// manifold gateway (internal/llm/anthropic/client.go there).
type anthropicClient struct {
	sdk          anthropic.Client
	model        string
	systemPrompt *string
}

// NewAnthropic constructs a Client backed by the Anthropic Messages API.
func NewAnthropic(cfg AnthropicConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicClient{
		sdk:   anthropic.NewClient(opts...),
		model: model,
	}, nil
}

func (c *anthropicClient) SetSystemPrompt(prompt *string) {
	c.systemPrompt = prompt
}

func (c *anthropicClient) Complete(ctx context.Context, messages []Message, params CompletionParams) (CompletionResult, error) {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(block))
		default:
			converted = append(converted, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 512
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if c.systemPrompt != nil && *c.systemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{{Text: *c.systemPrompt}}
	}

	resp, err := c.sdk.Messages.New(ctx, reqParams)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("anthropic complete: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return CompletionResult{
		Text: text,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		StopReason: string(resp.StopReason),
	}, nil
}
