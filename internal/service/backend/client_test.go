package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey-ai/voicecore/internal/config"
	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.BackendConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		UserID:  "user-1",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.BackendConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestAskSendsVehicleContextAndAPIKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ask", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var body map[string]any
		require.NoError(t, decodeJSON(r, &body))
		assert.Equal(t, "what oil does it take", body["question"])
		assert.Equal(t, "1994 Mazda MX-5", body["car"])
		assert.Equal(t, "user-1", body["user_id"])

		writeJSON(w, map[string]any{
			"answer":    "Use five quarts of 10W-30.",
			"audio_url": "/tts?text=...",
		})
	})

	v := &vehicle.Vehicle{ID: "veh-1", Make: "Mazda", Model: "MX-5", Year: 1994}
	res, err := c.Ask(context.Background(), "what oil does it take", v, vehicle.DefaultUnitPreferences())
	require.NoError(t, err)
	assert.Equal(t, "Use five quarts of 10W-30.", res.Answer)
	assert.NotEmpty(t, res.AudioURL)
}

func TestAskNormalizesLegacyResponseField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"response": "legacy answer", "audioUrl": "http://x/clip"})
	})

	res, err := c.Ask(context.Background(), "q", nil, vehicle.DefaultUnitPreferences())
	require.NoError(t, err)
	assert.Equal(t, "legacy answer", res.Answer)
	assert.Equal(t, "http://x/clip", res.AudioURL)
}

func TestAskRejectsEmptyAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{})
	})

	_, err := c.Ask(context.Background(), "q", nil, vehicle.DefaultUnitPreferences())
	assert.Error(t, err)
}

func TestTranscribeUploadsMultipartFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stt", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "question.wav", header.Filename)

		writeJSON(w, map[string]any{"text": "how do I bleed the brakes"})
	})

	text, err := c.Transcribe(context.Background(), []byte("RIFF-fake-bytes"), "question.wav")
	require.NoError(t, err)
	assert.Equal(t, "how do I bleed the brakes", text)
}

func TestTranscribeRejectsEmptyResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"text": ""})
	})

	_, err := c.Transcribe(context.Background(), []byte("data"), "")
	assert.Error(t, err)
}

func TestSynthesizeReturnsAudioBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tts", r.URL.Path)
		assert.Equal(t, "hello", r.URL.Query().Get("text"))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	})

	data, mime, err := c.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", mime)
	assert.Equal(t, []byte("mp3-bytes"), data)
}

func TestQueryNormalizesMixedHistoryShapes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history", r.URL.Path)
		assert.Equal(t, "veh-1", r.URL.Query().Get("vehicle_id"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		// Rows in two different conventions inside one response.
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{
					"id":         "m-2",
					"question":   "newer question",
					"answer":     "newer answer",
					"audio_url":  "http://x/2",
					"created_at": "2026-08-30T10:00:00Z",
				},
				{
					"query_id":  "m-1",
					"query":     "older question",
					"response":  "older answer",
					"audioUrl":  "http://x/1",
					"timestamp": "2026-08-29 09:00:00",
				},
			},
			"total": 2,
		})
	})

	page, err := c.Query(context.Background(), "veh-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, 2, page.TotalCount)

	newer, older := page.Messages[0], page.Messages[1]
	assert.Equal(t, "m-2", newer.ID)
	assert.Equal(t, "newer answer", newer.Answer)
	assert.Equal(t, "veh-1", newer.VehicleID, "partition key fills rows that omit it")

	assert.Equal(t, "m-1", older.ID)
	assert.Equal(t, "older question", older.Question)
	assert.Equal(t, "older answer", older.Answer)
	assert.Equal(t, "http://x/1", older.AudioURL)
	assert.False(t, older.CreatedAt.IsZero())
}

func TestQueryAssignsIDsToAnonymousRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"messages": []map[string]any{
				{"question": "q1", "answer": "a1"},
				{"question": "q2", "answer": "a2"},
			},
		})
	})

	page, err := c.Query(context.Background(), "", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.NotEmpty(t, page.Messages[0].ID)
	assert.NotEqual(t, page.Messages[0].ID, page.Messages[1].ID)
	assert.Equal(t, 2, page.TotalCount, "total falls back to row count")
}

func TestQuerySurfacesServerErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := c.Query(context.Background(), "veh-1", 0, 10)
	assert.Error(t, err)
}

func TestDeletePartitionScopesToVehicle(t *testing.T) {
	var gotVehicle, gotUser string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		gotVehicle = r.URL.Query().Get("vehicle_id")
		gotUser = r.URL.Query().Get("user_id")
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeletePartition(context.Background(), "veh-9"))
	assert.Equal(t, "veh-9", gotVehicle)
	assert.Equal(t, "user-1", gotUser)

	require.NoError(t, c.DeleteAll(context.Background()))
	assert.Empty(t, gotVehicle)
}
