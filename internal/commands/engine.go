package commands

import (
	"os"
	"time"

	"github.com/dotcommander/recall/internal/app"
	"github.com/dotcommander/recall/internal/engine"
	"github.com/dotcommander/recall/internal/llm"
)

// newClientFactory builds the engine.ClientFactory for the effective
// provider configuration. API keys are read directly from the environment
// (§4.10): they are never part of app.Settings, so they never land in
// config.yaml.
func newClientFactory(s app.EngineSettings) engine.ClientFactory {
	return func() (llm.Client, error) {
		provider := llm.Provider(s.LLMProvider)
		if provider == "" {
			provider = llm.ProviderCLI
		}
		return llm.New(llm.Config{
			Provider:       provider,
			AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel: s.AnthropicModel,
			OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:    s.OpenAIModel,
			CLITool:        s.CLITool,
		})
	}
}

// newEngine constructs a session engine bound to db, wired to the effective
// configuration, using the real wall clock.
func newEngine(db *DB, s app.EngineSettings) *engine.Engine {
	return engine.New(db, newClientFactory(s), s, time.Now)
}
