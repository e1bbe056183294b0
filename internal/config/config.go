package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every knob the engine reads from the environment.
type Config struct {
	Backend    BackendConfig    `envPrefix:"GM_BACKEND_"`
	AI         AIConfig         `envPrefix:"ARK_"`
	OpenAI     OpenAIConfig     `envPrefix:"OPENAI_"`
	ElevenLabs ElevenLabsConfig `envPrefix:"ELEVENLABS_"`
	Session    SessionConfig    `envPrefix:"GM_SESSION_"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// BackendConfig describes the GreaseMonkey backend API.
type BackendConfig struct {
	BaseURL string        `env:"URL"`
	APIKey  string        `env:"API_KEY"`
	UserID  string        `env:"USER_ID"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether the backend collaborators can be constructed.
func (c BackendConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// AIConfig describes the Ark chat model used by the direct asker.
type AIConfig struct {
	APIKey      string   `env:"API_KEY"`
	AccessKey   string   `env:"ACCESS_KEY"`
	SecretKey   string   `env:"SECRET_KEY"`
	Model       string   `env:"MODEL"`
	BaseURL     string   `env:"BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string   `env:"REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"TEMPERATURE"`
	TopP        *float64 `env:"TOP_P"`
	MaxTokens   *int     `env:"MAX_TOKENS"`
}

// Enabled reports whether the required model credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// OpenAIConfig describes the Whisper transcription collaborator.
type OpenAIConfig struct {
	APIKey       string `env:"API_KEY"`
	BaseURL      string `env:"BASE_URL"`
	WhisperModel string `env:"WHISPER_MODEL" envDefault:"whisper-1"`
}

// Enabled reports whether direct Whisper transcription is available.
func (c OpenAIConfig) Enabled() bool { return c.APIKey != "" }

// ElevenLabsConfig describes the streaming speech synthesis collaborator.
type ElevenLabsConfig struct {
	APIKey          string        `env:"API_KEY"`
	BaseURL         string        `env:"BASE_URL" envDefault:"wss://api.elevenlabs.io/v1/text-to-speech"`
	VoiceID         string        `env:"VOICE_ID" envDefault:"EXAVITQu4vr4xnSDxMaL"`
	ModelID         string        `env:"MODEL_ID" envDefault:"eleven_multilingual_v2"`
	Stability       float64       `env:"STABILITY" envDefault:"0.5"`
	SimilarityBoost float64       `env:"SIMILARITY_BOOST" envDefault:"0.5"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"45s"`
}

// Enabled reports whether direct synthesis is available.
func (c ElevenLabsConfig) Enabled() bool { return c.APIKey != "" }

// SessionConfig tunes the conversation session itself.
type SessionConfig struct {
	PrefsPath    string        `env:"PREFS_PATH" envDefault:"greasemonkey_prefs.json"`
	AskThrottle  time.Duration `env:"ASK_THROTTLE" envDefault:"1s"`
	SelectQuiet  time.Duration `env:"SELECT_QUIET" envDefault:"150ms"`
	PageSize     int           `env:"PAGE_SIZE" envDefault:"10"`
	AudioHistory int           `env:"AUDIO_HISTORY" envDefault:"10"`
}
