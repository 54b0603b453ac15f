package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSettings_PrefersUserConfigOverLocal(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	userConfigPath := filepath.Join(home, ".config", "recall", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("db_path: /tmp/from-user.db\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("db_path: /tmp/from-local.db\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-user.db", s.DBPath)
}

func TestLoadSettings_FallsBackToLocalConfig(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("db_path: /tmp/from-local.db\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-local.db", s.DBPath)
}

func TestLoadSettings_InvalidYAMLReturnsError(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	userConfigPath := filepath.Join(home, ".config", "recall", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("db_path: ["), 0o600))

	_, err := LoadSettings()
	require.Error(t, err)
}

func TestLoadSettingsFile_ReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/read.db\n"), 0o600))

	s, err := loadSettingsFile(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/read.db", s.DBPath)
}

func TestLoadSettingsFile_ReadsEngineFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm_provider: anthropic\n" +
		"anthropic_model: claude-3-5-haiku-latest\n" +
		"tutor_temperature: 0.9\n" +
		"tutor_max_tokens: 300\n" +
		"pause_threshold_minutes: 10\n" +
		"rabbithole_detect_threshold: 0.5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := loadSettingsFile(path)
	require.NoError(t, err)
	require.Equal(t, "anthropic", s.LLMProvider)
	require.Equal(t, "claude-3-5-haiku-latest", s.AnthropicModel)
	require.InDelta(t, 0.9, s.TutorTemperature, 0.0001)
	require.Equal(t, 300, s.TutorMaxTokens)
	require.Equal(t, 10, s.PauseThresholdMinutes)
	require.InDelta(t, 0.5, s.RabbitholeDetectThreshold, 0.0001)
}

func TestEffectiveEngineSettings_DefaultsAndClamp(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	// No config file: defaults
	cfg := EffectiveEngineSettings()
	require.InDelta(t, 0.7, cfg.TutorTemperature, 0.0001)
	require.Equal(t, 512, cfg.TutorMaxTokens)
	require.Equal(t, 5, cfg.PauseThresholdMinutes)
	require.InDelta(t, 0.6, cfg.RabbitholeDetectThreshold, 0.0001)

	// Out-of-range config values should be clamped/sanitized
	userConfigPath := filepath.Join(home, ".config", "recall", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte(strings.Join([]string{
		"tutor_temperature: 5",
		"tutor_max_tokens: 999999",
		"rabbithole_detect_threshold: 3",
		"",
	}, "\n")), 0o600))

	resetSettingsStateForTest()
	cfg = EffectiveEngineSettings()
	require.InDelta(t, 2.0, cfg.TutorTemperature, 0.0001)
	require.Equal(t, 4096, cfg.TutorMaxTokens)
	// Out-of-[0,1] threshold is rejected, default retained.
	require.InDelta(t, 0.6, cfg.RabbitholeDetectThreshold, 0.0001)
}
