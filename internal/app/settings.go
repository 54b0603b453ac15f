package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys. API keys are deliberately absent:
// they are read only from ANTHROPIC_API_KEY / OPENAI_API_KEY so they never
// land in a file that might get committed or shared.
type Settings struct {
	DBPath     string `yaml:"db_path"`
	LLMProvider string `yaml:"llm_provider"`

	AnthropicModel string `yaml:"anthropic_model"`
	OpenAIModel    string `yaml:"openai_model"`
	CLITool        string `yaml:"cli_tool"`

	TutorTemperature float64 `yaml:"tutor_temperature"`
	TutorMaxTokens   int     `yaml:"tutor_max_tokens"`

	PauseThresholdMinutes     int     `yaml:"pause_threshold_minutes"`
	RabbitholeDetectThreshold float64 `yaml:"rabbithole_detect_threshold"`
}

// EngineSettings are effective, defaulted runtime values consumed by the
// session engine and LLM factory.
type EngineSettings struct {
	LLMProvider               string
	AnthropicModel            string
	OpenAIModel               string
	CLITool                   string
	TutorTemperature          float64
	TutorMaxTokens            int
	PauseThresholdMinutes     int
	RabbitholeDetectThreshold float64
}

const (
	defaultTutorTemperature          = 0.7
	defaultTutorMaxTokens            = 512
	defaultPauseThresholdMinutes     = 5
	defaultRabbitholeDetectThreshold = 0.6
)

// EffectiveEngineSettings returns validated engine settings with defaults
// applied for anything missing or out of range.
func EffectiveEngineSettings() EngineSettings {
	cfg := EngineSettings{
		TutorTemperature:          defaultTutorTemperature,
		TutorMaxTokens:            defaultTutorMaxTokens,
		PauseThresholdMinutes:     defaultPauseThresholdMinutes,
		RabbitholeDetectThreshold: defaultRabbitholeDetectThreshold,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	cfg.LLMProvider = s.LLMProvider
	cfg.AnthropicModel = s.AnthropicModel
	cfg.OpenAIModel = s.OpenAIModel
	cfg.CLITool = s.CLITool

	if s.TutorTemperature > 0 {
		cfg.TutorTemperature = s.TutorTemperature
	}
	if s.TutorMaxTokens > 0 {
		cfg.TutorMaxTokens = s.TutorMaxTokens
	}
	if s.PauseThresholdMinutes > 0 {
		cfg.PauseThresholdMinutes = s.PauseThresholdMinutes
	}
	if s.RabbitholeDetectThreshold > 0 && s.RabbitholeDetectThreshold <= 1 {
		cfg.RabbitholeDetectThreshold = s.RabbitholeDetectThreshold
	}

	if cfg.TutorTemperature > 2 {
		cfg.TutorTemperature = 2
	}
	if cfg.TutorMaxTokens > 4096 {
		cfg.TutorMaxTokens = 4096
	}
	return cfg
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride implement a mutex-protected process-wide override for CLI --db-path.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/recall/config.yaml
// 2) /etc/recall/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "recall", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
