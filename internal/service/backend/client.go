// Package backend is the adapter for the GreaseMonkey HTTP API. Everything
// the API returns is normalized here, immediately after fetch; the rest of
// the engine only ever sees the canonical message shape.
package backend

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/config"
	"github.com/greasemonkey-ai/voicecore/internal/model/conversation"
	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
)

// AskResult is the answer to one question as returned by the backend.
type AskResult struct {
	Answer   string
	AudioURL string // optional; empty means the client synthesizes locally
}

// Client talks to the GreaseMonkey backend. It implements the durable
// history store plus the ask, transcription and synthesis collaborators, so
// a session can run entirely against the hosted API.
type Client struct {
	http *resty.Client
	cfg  config.BackendConfig
	log  zerolog.Logger
}

func NewClient(cfg config.BackendConfig, log zerolog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("backend URL and API key are required: set GM_BACKEND_URL and GM_BACKEND_API_KEY")
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("x-api-key", cfg.APIKey)

	return &Client{
		http: http,
		cfg:  cfg,
		log:  log.With().Str("component", "backend").Logger(),
	}, nil
}

// Ask submits one question with its vehicle context.
func (c *Client) Ask(ctx context.Context, question string, v *vehicle.Vehicle, units vehicle.UnitPreferences) (AskResult, error) {
	body := map[string]any{
		"question": question,
		"user_id":  c.cfg.UserID,
		"unit_preferences": map[string]string{
			"torque_unit":      units.Torque,
			"pressure_unit":    units.Pressure,
			"length_unit":      units.Length,
			"volume_unit":      units.Volume,
			"temperature_unit": units.Temperature,
			"weight_unit":      units.Weight,
			"socket_unit":      units.Socket,
		},
	}
	if v != nil {
		body["car"] = v.DisplayName()
		body["engine"] = v.Engine
		body["notes"] = v.Notes
	}

	var result wireAskResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/ask")
	if err != nil {
		return AskResult{}, fmt.Errorf("ask request failed: %w", err)
	}
	if resp.IsError() {
		return AskResult{}, fmt.Errorf("ask request error (status %d): %s", resp.StatusCode(), resp.String())
	}

	normalized := result.normalize()
	if normalized.Answer == "" {
		return AskResult{}, fmt.Errorf("ask response carried no answer")
	}
	c.log.Debug().Int("answer_length", len(normalized.Answer)).Msg("question answered")
	return normalized, nil
}

// Transcribe uploads a recording to the speech-to-text endpoint.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio recording is empty")
	}
	if filename == "" {
		filename = "recording.wav"
	}

	var result wireTranscript
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytesReader(audio)).
		SetResult(&result).
		Post("/stt")
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transcription error (status %d): %s", resp.StatusCode(), resp.String())
	}

	text := result.normalize()
	if text == "" {
		return "", fmt.Errorf("transcription produced no text")
	}
	return text, nil
}

// Synthesize converts text into audio bytes via the backend TTS proxy.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if text == "" {
		return nil, "", fmt.Errorf("synthesis text is empty")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("text", text).
		Post("/tts")
	if err != nil {
		return nil, "", fmt.Errorf("synthesis request failed: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("synthesis error (status %d): %s", resp.StatusCode(), resp.String())
	}

	mime := resp.Header().Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	return resp.Body(), mime, nil
}

// Query fetches one history page for a vehicle partition, newest first.
// Part of the conversation.Remote contract.
func (c *Client) Query(ctx context.Context, vehicleID string, offset, limit int) (conversation.Page, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("user_id", c.cfg.UserID).
		SetQueryParam("offset", strconv.Itoa(offset)).
		SetQueryParam("limit", strconv.Itoa(limit))
	if vehicleID != "" {
		req.SetQueryParam("vehicle_id", vehicleID)
	}

	var result wirePage
	resp, err := req.SetResult(&result).Get("/history")
	if err != nil {
		return conversation.Page{}, fmt.Errorf("history fetch failed: %w", err)
	}
	if resp.IsError() {
		return conversation.Page{}, fmt.Errorf("history fetch error (status %d): %s", resp.StatusCode(), resp.String())
	}

	return result.normalize(vehicleID), nil
}

// Insert records one answered question in the durable history.
func (c *Client) Insert(ctx context.Context, msg conversation.Message) error {
	body := map[string]any{
		"id":         msg.ID,
		"user_id":    c.cfg.UserID,
		"vehicle_id": msg.VehicleID,
		"question":   msg.Question,
		"answer":     msg.Answer,
		"audio_url":  msg.AudioURL,
		"created_at": msg.CreatedAt,
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/history")
	if err != nil {
		return fmt.Errorf("history insert failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("history insert error (status %d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// DeletePartition clears the history for one vehicle.
func (c *Client) DeletePartition(ctx context.Context, vehicleID string) error {
	req := c.http.R().SetContext(ctx).SetQueryParam("user_id", c.cfg.UserID)
	if vehicleID != "" {
		req.SetQueryParam("vehicle_id", vehicleID)
	}

	resp, err := req.Delete("/history")
	if err != nil {
		return fmt.Errorf("history delete failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("history delete error (status %d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// DeleteAll clears every partition for the user.
func (c *Client) DeleteAll(ctx context.Context) error {
	return c.DeletePartition(ctx, "")
}
