package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey-ai/voicecore/internal/config"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *WhisperService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewWhisperService(config.OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL + "/v1",
		WhisperModel: "whisper-1",
	}, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func transcriptResponse(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	body, err := sonic.Marshal(map[string]string{"text": text})
	require.NoError(t, err)
	_, _ = w.Write(body)
}

func TestNewWhisperServiceRequiresCredentials(t *testing.T) {
	_, err := NewWhisperService(config.OpenAIConfig{}, zerolog.Nop())
	require.Error(t, err)
}

func TestTranscribeSendsRecordingAndTrimsResult(t *testing.T) {
	var gotModel, gotFilename string
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotFilename = header.Filename
		transcriptResponse(t, w, "  how do I change the oil  ")
	})

	text, err := svc.Transcribe(context.Background(), []byte("fake-wav-bytes"), "question.wav")
	require.NoError(t, err)
	assert.Equal(t, "how do I change the oil", text)
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "question.wav", gotFilename)
}

func TestTranscribeDefaultsFilename(t *testing.T) {
	var gotFilename string
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotFilename = header.Filename
		transcriptResponse(t, w, "ok")
	})

	_, err := svc.Transcribe(context.Background(), []byte("pcm"), "")
	require.NoError(t, err)
	assert.Equal(t, "recording.wav", gotFilename)
}

func TestTranscribeRejectsEmptyRecording(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty recording")
	})

	_, err := svc.Transcribe(context.Background(), nil, "question.wav")
	require.Error(t, err)
}

func TestTranscribeEmptyTextIsTypedError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		transcriptResponse(t, w, "   ")
	})

	_, err := svc.Transcribe(context.Background(), []byte("pcm"), "question.wav")
	require.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestTranscribeServerErrorIsSurfaced(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	_, err := svc.Transcribe(context.Background(), []byte("pcm"), "question.wav")
	require.Error(t, err)
}
