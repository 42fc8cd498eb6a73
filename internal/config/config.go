package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every runtime setting, loaded from the environment.
type Config struct {
	Server ServerConfig
	Gemini GeminiConfig
	Call   CallConfig
	Ark    ArkConfig
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if strings.Contains(cfg.Server.Port, " ") {
		return nil, fmt.Errorf("invalid PORT value: %q", cfg.Server.Port)
	}
	return cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// Addr returns the listen address. PORT may be a bare port or a full
// "host:port" value.
func (c ServerConfig) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// GeminiConfig describes the Gemini Live backend used for calls.
type GeminiConfig struct {
	APIKey           string `env:"GEMINI_API_KEY"`
	Model            string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-native-audio-preview-09-2025"`
	LiveURL          string `env:"GEMINI_LIVE_URL"`
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/process.md"`
}

// Enabled reports whether the live backend is configured.
func (c GeminiConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// CallConfig tunes the caller lifecycle timings.
type CallConfig struct {
	MinForwardIntervalMS int    `env:"CALL_MIN_FORWARD_INTERVAL_MS" envDefault:"300"`
	IntroDelayMS         int    `env:"CALL_INTRO_DELAY_MS" envDefault:"800"`
	RejectCloseDelayMS   int    `env:"CALL_REJECT_CLOSE_DELAY_MS" envDefault:"250"`
	AudioMIME            string `env:"CALL_AUDIO_MIME" envDefault:"audio/pcm;rate=16000"`
}

// MinForwardInterval is the audio forwarding floor.
func (c CallConfig) MinForwardInterval() time.Duration {
	return time.Duration(c.MinForwardIntervalMS) * time.Millisecond
}

// IntroDelay is the delay before the AI introduction fires.
func (c CallConfig) IntroDelay() time.Duration {
	return time.Duration(c.IntroDelayMS) * time.Millisecond
}

// RejectCloseDelay is the flush delay before a rejected transport closes.
func (c CallConfig) RejectCloseDelay() time.Duration {
	return time.Duration(c.RejectCloseDelayMS) * time.Millisecond
}

// ArkConfig describes the chat model behind the word triage endpoint.
type ArkConfig struct {
	APIKey    string `env:"ARK_API_KEY"`
	AccessKey string `env:"ARK_ACCESS_KEY"`
	SecretKey string `env:"ARK_SECRET_KEY"`
	Model     string `env:"ARK_MODEL"`
	BaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region    string `env:"ARK_REGION" envDefault:"cn-beijing"`
}

// Enabled reports whether the required credentials are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY plus ARK_MODEL")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}

	return ark.NewChatModel(ctx, cfg)
}
