package llm

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
)

// OpenAIConfig configures the OpenAI-backed Client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// openAIClient implements Client against the Chat Completions API,
// grounded on the pack's manifold gateway (internal/llm/openai/client.go
// there), as a second provider proving the engine is vendor-agnostic.
type openAIClient struct {
	sdk          sdk.Client
	model        string
	systemPrompt *string
}

// NewOpenAI constructs a Client backed by OpenAI's Chat Completions API.
func NewOpenAI(cfg OpenAIConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &openAIClient{
		sdk:   sdk.NewClient(opts...),
		model: model,
	}, nil
}

func (c *openAIClient) SetSystemPrompt(prompt *string) {
	c.systemPrompt = prompt
}

func (c *openAIClient) Complete(ctx context.Context, messages []Message, params CompletionParams) (CompletionResult, error) {
	var converted []sdk.ChatCompletionMessageParamUnion
	if c.systemPrompt != nil && *c.systemPrompt != "" {
		converted = append(converted, sdk.SystemMessage(*c.systemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			converted = append(converted, sdk.AssistantMessage(m.Content))
		case "system":
			converted = append(converted, sdk.SystemMessage(m.Content))
		default:
			converted = append(converted, sdk.UserMessage(m.Content))
		}
	}

	reqParams := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: converted,
	}
	if params.MaxTokens > 0 {
		reqParams.MaxTokens = param.NewOpt(int64(params.MaxTokens))
	}
	if params.Temperature > 0 {
		reqParams.Temperature = param.NewOpt(params.Temperature)
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, reqParams)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("openai complete: %w", err)
	}
	if len(comp.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("openai complete: no choices returned")
	}

	choice := comp.Choices[0]
	return CompletionResult{
		Text: choice.Message.Content,
		Usage: Usage{
			InputTokens:  comp.Usage.PromptTokens,
			OutputTokens: comp.Usage.CompletionTokens,
		},
		StopReason: string(choice.FinishReason),
	}, nil
}
