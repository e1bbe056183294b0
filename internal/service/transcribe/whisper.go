package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/greasemonkey-ai/voicecore/internal/config"
)

// ErrEmptyTranscript reports a recording that produced no usable text.
var ErrEmptyTranscript = fmt.Errorf("transcription produced no text")

// WhisperService converts recorded audio into text via the OpenAI
// transcription API.
type WhisperService struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

func NewWhisperService(cfg config.OpenAIConfig, log zerolog.Logger) (*WhisperService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for transcription")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &WhisperService{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.WhisperModel,
		log:    log.With().Str("component", "transcribe").Logger(),
	}, nil
}

// Transcribe sends one complete recording and returns the recognized text.
// filename carries the container hint the API needs, e.g. "question.wav".
func (s *WhisperService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio recording is empty")
	}
	if filename == "" {
		filename = "recording.wav"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	s.log.Debug().Int("audio_bytes", len(audio)).Int("text_length", len(text)).Msg("transcribed recording")
	return text, nil
}
