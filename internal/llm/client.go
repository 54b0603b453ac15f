// Package llm defines the narrow LLM client contract the engine depends on
// (spec §6) plus the provider implementations that satisfy it.
package llm

import "context"

// Message is one turn in a conversation passed to Complete.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// CompletionParams tunes a single Complete call.
type CompletionParams struct {
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting for a completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// CompletionResult is what a provider returns from Complete.
type CompletionResult struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Client is the engine's only dependency on an LLM provider (spec §6). The
// engine never depends on a specific vendor; every tutor/evaluator/detector/
// rabbit-hole-agent call goes through this interface.
type Client interface {
	// Complete sends messages (with the client's current system prompt, if
	// any) and returns the provider's reply.
	Complete(ctx context.Context, messages []Message, params CompletionParams) (CompletionResult, error)
	// SetSystemPrompt installs or clears (nil) the system prompt used by
	// subsequent Complete calls.
	SetSystemPrompt(prompt *string)
}
