package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvcagent/internal/errs"
)

func TestLoadLLMRequiresAPIKey(t *testing.T) {
	t.Setenv("VIBE_ARK_API_KEY", "")
	t.Setenv("VIBE_MOCK_MODE", "")

	_, err := LoadLLM()
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeArkNotConfigured))
}

func TestLoadLLMMockModeSkipsKeyCheck(t *testing.T) {
	t.Setenv("VIBE_ARK_API_KEY", "")
	t.Setenv("VIBE_MOCK_MODE", "1")

	cfg, err := LoadLLM()
	require.NoError(t, err)
	assert.Equal(t, "https://ark.cn-beijing.volces.com/api/v3", cfg.BaseURL)
	assert.Equal(t, "doubao-seed-1-8-251228", cfg.Model)
	assert.Equal(t, float32(0.7), cfg.Temperature)
	assert.Equal(t, 10000, cfg.MaxCompletionTokens)
	assert.Equal(t, "disabled", cfg.Thinking)
}

func TestLoadLLMOverrides(t *testing.T) {
	t.Setenv("VIBE_ARK_API_KEY", "k")
	t.Setenv("VIBE_ARK_LLM_MODEL", "custom-model")
	t.Setenv("VIBE_ARK_TEMPERATURE", "0.3")

	cfg, err := LoadLLM()
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Model)
	assert.Equal(t, float32(0.3), cfg.Temperature)
}

func TestLoadVideoDefaults(t *testing.T) {
	t.Setenv("VIBE_SEEDANCE_MODEL", "")
	t.Setenv("VIBE_VIDEO_MAX_CONCURRENT", "")

	cfg := LoadVideo()
	assert.Equal(t, "doubao-seedance-1-5-pro-251215", cfg.Model)
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MinDuration)
	assert.Equal(t, 12, cfg.MaxDuration)
}

func TestLoadAgentDefaults(t *testing.T) {
	t.Setenv("VIBE_TVC_AGENT_TIMEOUT_MS", "")
	t.Setenv("VIBE_AGENT_MODE", "")

	cfg := LoadAgent()
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Equal(t, 20, cfg.HistoryWindow)
	assert.Equal(t, "legacy", cfg.Mode)

	t.Setenv("VIBE_AGENT_MODE", "direct")
	assert.Equal(t, "direct", LoadAgent().Mode)
}

func TestMockMode(t *testing.T) {
	t.Setenv("VIBE_MOCK_MODE", "true")
	assert.True(t, MockMode())
	t.Setenv("VIBE_MOCK_MODE", "0")
	assert.False(t, MockMode())
	t.Setenv("VIBE_MOCK_MODE", "")
	assert.False(t, MockMode())
}
