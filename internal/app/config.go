package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/recall/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "recall"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# recall configuration
# Run: recall --help

# Optional: override the SQLite database location.
# Can also be set via RECALL_DB_PATH or --db-path.
# db_path: ~/.config/recall/recall.db

# LLM provider selection: anthropic, openai, or cli (default: cli).
# API keys are read only from the environment (ANTHROPIC_API_KEY /
# OPENAI_API_KEY), never from this file.
# llm_provider: cli
# anthropic_model: claude-3-5-haiku-latest
# openai_model: gpt-4o-mini
# cli_tool: claude

# Tutor sampling parameters.
# tutor_temperature: 0.7
# tutor_max_tokens: 512

# Gaps between messages longer than this many minutes are left out of a
# session's active time when its metrics are computed.
# pause_threshold_minutes: 5

# Confidence threshold above which the rabbit-hole detector commits to a
# tangent classification.
# rabbithole_detect_threshold: 0.6
`
