package synth

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/config"
	"github.com/greasemonkey-ai/voicecore/internal/service/audio"
)

// synthSampleRate matches the pcm_16000 output format requested on dial.
const synthSampleRate = 16000

type bosMessage struct {
	Text             string        `json:"text"`
	VoiceSettings    voiceSettings `json:"voice_settings"`
	GenerationConfig genConfig     `json:"generation_config"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type genConfig struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule"`
}

type textMessage struct {
	Text string `json:"text"`
}

type serverMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ElevenLabsService synthesizes speech over the ElevenLabs streaming
// WebSocket API. Each Synthesize call opens one connection, streams the
// whole answer and collects the audio before returning.
type ElevenLabsService struct {
	cfg config.ElevenLabsConfig
	log zerolog.Logger
}

func NewElevenLabsService(cfg config.ElevenLabsConfig, log zerolog.Logger) (*ElevenLabsService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required for speech synthesis")
	}
	return &ElevenLabsService{
		cfg: cfg,
		log: log.With().Str("component", "synth").Logger(),
	}, nil
}

// Synthesize converts text into a playable WAV clip.
func (s *ElevenLabsService) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", fmt.Errorf("synthesis text is empty")
	}

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("connect to synthesis stream: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context ends so blocked reads unwind.
	watchdog := make(chan struct{})
	defer close(watchdog)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdog:
		}
	}()

	if err := s.openStream(conn, text); err != nil {
		return nil, "", err
	}

	pcm, err := s.collectAudio(ctx, conn)
	if err != nil {
		return nil, "", err
	}

	data, err := audio.EncodeWAV(pcm, synthSampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("package synthesized audio: %w", err)
	}

	s.log.Debug().Int("text_length", len(text)).Int("samples", len(pcm)).Msg("synthesized answer")
	return data, "audio/wav", nil
}

func (s *ElevenLabsService) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=pcm_16000",
		s.cfg.BaseURL, s.cfg.VoiceID, s.cfg.ModelID)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, url, http.Header{"xi-api-key": {s.cfg.APIKey}})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// openStream sends the BOS message, the answer text and the end-of-stream
// marker. The server starts generating as soon as the BOS arrives.
func (s *ElevenLabsService) openStream(conn *websocket.Conn, text string) error {
	bos := bosMessage{
		Text: " ",
		VoiceSettings: voiceSettings{
			Stability:       s.cfg.Stability,
			SimilarityBoost: s.cfg.SimilarityBoost,
		},
		GenerationConfig: genConfig{
			ChunkLengthSchedule: []int{120, 160, 250, 290},
		},
	}
	if err := writeJSON(conn, bos); err != nil {
		return fmt.Errorf("send stream header: %w", err)
	}
	if err := writeJSON(conn, textMessage{Text: text + " "}); err != nil {
		return fmt.Errorf("send synthesis text: %w", err)
	}
	if err := writeJSON(conn, textMessage{Text: ""}); err != nil {
		return fmt.Errorf("send end of stream: %w", err)
	}
	return nil
}

func (s *ElevenLabsService) collectAudio(ctx context.Context, conn *websocket.Conn) ([]int16, error) {
	var pcm []int16
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				return pcm, nil
			}
			return nil, fmt.Errorf("read synthesis stream: %w", err)
		}

		var msg serverMessage
		if err := sonic.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("decode synthesis message: %w", err)
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("synthesis stream error: %s %s", msg.Error, msg.Message)
		}

		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode audio chunk: %w", err)
			}
			pcm = append(pcm, bytesToSamples(chunk)...)
		}
		if msg.IsFinal {
			if len(pcm) == 0 {
				return nil, fmt.Errorf("synthesis stream produced no audio")
			}
			return pcm, nil
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// bytesToSamples reinterprets little-endian PCM-16 bytes as samples. A
// trailing odd byte is dropped.
func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
