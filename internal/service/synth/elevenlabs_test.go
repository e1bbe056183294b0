package synth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey-ai/voicecore/internal/config"
	"github.com/greasemonkey-ai/voicecore/internal/service/audio"
)

var upgrader = websocket.Upgrader{}

// fakeStream implements just enough of the streaming protocol: read the BOS
// and text messages, then push audio chunks followed by a final marker.
func fakeStream(t *testing.T, samples []int16, failWith string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
		assert.Contains(t, r.URL.RawQuery, "output_format=pcm_16000")

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// BOS, text, EOS.
		for i := 0; i < 3; i++ {
			_, payload, err := conn.ReadMessage()
			require.NoError(t, err)
			if i == 0 {
				var bos map[string]any
				require.NoError(t, sonic.Unmarshal(payload, &bos))
				assert.Contains(t, bos, "voice_settings")
			}
		}

		if failWith != "" {
			resp, _ := sonic.Marshal(map[string]any{"error": failWith, "message": "boom"})
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, resp))
			return
		}

		raw := make([]byte, len(samples)*2)
		for i, s := range samples {
			raw[i*2] = byte(s)
			raw[i*2+1] = byte(uint16(s) >> 8)
		}

		half := len(raw) / 2
		for _, chunk := range [][]byte{raw[:half], raw[half:]} {
			resp, _ := sonic.Marshal(map[string]any{"audio": base64.StdEncoding.EncodeToString(chunk)})
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, resp))
		}
		final, _ := sonic.Marshal(map[string]any{"isFinal": true})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, final))
	}
}

func testConfig(serverURL string) config.ElevenLabsConfig {
	return config.ElevenLabsConfig{
		APIKey:          "test-key",
		BaseURL:         strings.Replace(serverURL, "http://", "ws://", 1),
		VoiceID:         "voice-1",
		ModelID:         "eleven_multilingual_v2",
		Stability:       0.5,
		SimilarityBoost: 0.5,
		Timeout:         5 * time.Second,
	}
}

func TestSynthesizeCollectsStreamedAudio(t *testing.T) {
	want := make([]int16, 2048)
	for i := range want {
		want[i] = int16(i*13 - 5000)
	}
	srv := httptest.NewServer(fakeStream(t, want, ""))
	defer srv.Close()

	s, err := NewElevenLabsService(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	data, mime, err := s.Synthesize(context.Background(), "tighten the drain plug")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", mime)

	got, rate, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, synthSampleRate, rate)
	assert.Equal(t, want, got)
}

func TestSynthesizeSurfacesStreamErrors(t *testing.T) {
	srv := httptest.NewServer(fakeStream(t, nil, "quota_exceeded"))
	defer srv.Close()

	s, err := NewElevenLabsService(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	_, _, err = s.Synthesize(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota_exceeded")
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	s, err := NewElevenLabsService(testConfig("http://unused"), zerolog.Nop())
	require.NoError(t, err)

	_, _, err = s.Synthesize(context.Background(), "   ")
	assert.Error(t, err)
}

func TestNewElevenLabsServiceRequiresKey(t *testing.T) {
	_, err := NewElevenLabsService(config.ElevenLabsConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
