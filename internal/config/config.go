package config

import (
	"time"

	"github.com/spf13/viper"

	"tvcagent/internal/errs"
)

const (
	defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	defaultLLMModel   = "doubao-seed-1-8-251228"
	defaultVideoModel = "doubao-seedance-1-5-pro-251215"
)

func init() {
	viper.AutomaticEnv()
}

// LLMConfig 对话模型参数，全部取自 VIBE_ARK_* 环境变量
type LLMConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float32
	TopP                float32
	MaxCompletionTokens int
	Thinking            string // "enabled" / "disabled"
}

type ImageConfig struct {
	Size      string
	Watermark bool
}

type VideoConfig struct {
	Model         string
	Watermark     bool
	MaxConcurrent int
	MinDuration   int
	MaxDuration   int
}

type AgentConfig struct {
	Timeout       time.Duration
	MaxSteps      int
	HistoryWindow int
	Mode          string // "legacy" / "direct"
}

type ServerConfig struct {
	Addr   string
	DBPath string
}

func LoadLLM() (LLMConfig, error) {
	cfg := LLMConfig{
		APIKey:              viper.GetString("VIBE_ARK_API_KEY"),
		BaseURL:             stringOr("VIBE_ARK_API_BASE_URL", defaultArkBaseURL),
		Model:               stringOr("VIBE_ARK_LLM_MODEL", defaultLLMModel),
		Temperature:         float32Or("VIBE_ARK_TEMPERATURE", 0.7),
		TopP:                float32Or("VIBE_ARK_TOP_P", 0.9),
		MaxCompletionTokens: intOr("VIBE_ARK_MAX_COMPLETION_TOKENS", 10000),
		Thinking:            stringOr("VIBE_ARK_THINKING", "disabled"),
	}
	if cfg.APIKey == "" && !MockMode() {
		return cfg, errs.New(errs.CodeArkNotConfigured, "VIBE_ARK_API_KEY 未配置")
	}
	return cfg, nil
}

func LoadImage() ImageConfig {
	return ImageConfig{
		Size:      stringOr("VIBE_IMAGE_SIZE", "2K"),
		Watermark: viper.GetBool("VIBE_IMAGE_WATERMARK"),
	}
}

func LoadVideo() VideoConfig {
	return VideoConfig{
		Model:         stringOr("VIBE_SEEDANCE_MODEL", defaultVideoModel),
		Watermark:     viper.GetBool("VIBE_VIDEO_WATERMARK"),
		MaxConcurrent: intOr("VIBE_VIDEO_MAX_CONCURRENT", 2),
		MinDuration:   intOr("VIBE_VIDEO_MIN_DURATION", 3),
		MaxDuration:   intOr("VIBE_VIDEO_MAX_DURATION", 12),
	}
}

func LoadAgent() AgentConfig {
	return AgentConfig{
		Timeout:       time.Duration(intOr("VIBE_TVC_AGENT_TIMEOUT_MS", 120000)) * time.Millisecond,
		MaxSteps:      intOr("VIBE_TVC_AGENT_MAX_STEPS", 10),
		HistoryWindow: intOr("VIBE_TVC_AGENT_HISTORY_WINDOW", 20),
		Mode:          stringOr("VIBE_AGENT_MODE", "legacy"),
	}
}

func LoadServer() ServerConfig {
	return ServerConfig{
		Addr:   stringOr("VIBE_SERVER_ADDR", ":8080"),
		DBPath: stringOr("VIBE_DB_PATH", "./data/tvcagent.db"),
	}
}

// MockMode 开启后全链路走本地假数据，不访问 Ark
func MockMode() bool {
	switch viper.GetString("VIBE_MOCK_MODE") {
	case "1", "true", "TRUE", "True":
		return true
	}
	return false
}

func stringOr(key, def string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) int {
	if viper.GetString(key) == "" {
		return def
	}
	return viper.GetInt(key)
}

func float32Or(key string, def float32) float32 {
	if viper.GetString(key) == "" {
		return def
	}
	return float32(viper.GetFloat64(key))
}
