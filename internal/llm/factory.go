package llm

import "fmt"

// Provider selects which backend New constructs.
type Provider string

// Provider constants (§4.10 configuration).
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderCLI       Provider = "cli"
)

// Config is the resolved configuration needed to construct any provider.
type Config struct {
	Provider       Provider
	AnthropicKey   string
	AnthropicModel string
	OpenAIKey      string
	OpenAIModel    string
	CLITool        string
}

// New constructs a Client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropic(AnthropicConfig{APIKey: cfg.AnthropicKey, Model: cfg.AnthropicModel})
	case ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel})
	case ProviderCLI, "":
		return NewCLI(cfg.CLITool)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
