package backend

import (
	"bytes"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/greasemonkey-ai/voicecore/internal/model/conversation"
)

// The API grew across several backends and its payloads never settled on one
// naming convention: history rows come back snake_case from the database
// path and camelCase from the newer endpoints, and older rows call the
// answer "response". Every wire type below therefore carries each known
// variant and normalize() picks the first populated one, so only the
// canonical message shape ever leaves this package.

type wireAskResponse struct {
	Answer      string `json:"answer"`
	Response    string `json:"response"`
	AudioURL    string `json:"audio_url"`
	AudioURLAlt string `json:"audioUrl"`
}

func (w wireAskResponse) normalize() AskResult {
	return AskResult{
		Answer:   firstNonEmpty(w.Answer, w.Response),
		AudioURL: firstNonEmpty(w.AudioURL, w.AudioURLAlt),
	}
}

type wireTranscript struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
}

func (w wireTranscript) normalize() string {
	return firstNonEmpty(w.Text, w.Transcript)
}

type wirePage struct {
	Messages []wireMessage `json:"messages"`
	Items    []wireMessage `json:"items"`
	Data     []wireMessage `json:"data"`

	TotalCount    int `json:"total_count"`
	TotalCountAlt int `json:"totalCount"`
	Total         int `json:"total"`
}

func (w wirePage) normalize(vehicleID string) conversation.Page {
	rows := w.Messages
	if len(rows) == 0 {
		rows = w.Items
	}
	if len(rows) == 0 {
		rows = w.Data
	}

	messages := make([]conversation.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.normalize(vehicleID))
	}

	total := firstPositive(w.TotalCount, w.TotalCountAlt, w.Total)
	if total < len(messages) {
		total = len(messages)
	}
	return conversation.Page{Messages: messages, TotalCount: total}
}

type wireMessage struct {
	ID      string `json:"id"`
	QueryID string `json:"query_id"`

	VehicleID    string `json:"vehicle_id"`
	VehicleIDAlt string `json:"vehicleId"`

	Question string `json:"question"`
	Query    string `json:"query"`

	Answer   string `json:"answer"`
	Response string `json:"response"`

	AudioURL    string `json:"audio_url"`
	AudioURLAlt string `json:"audioUrl"`

	CreatedAt    string `json:"created_at"`
	CreatedAtAlt string `json:"createdAt"`
	Timestamp    string `json:"timestamp"`
}

func (w wireMessage) normalize(vehicleID string) conversation.Message {
	id := firstNonEmpty(w.ID, w.QueryID)
	if id == "" {
		// Rows without an identity still need one for deduplication.
		id = uuid.NewString()
	}

	return conversation.Message{
		ID:        id,
		VehicleID: firstNonEmpty(w.VehicleID, w.VehicleIDAlt, vehicleID),
		Question:  firstNonEmpty(w.Question, w.Query),
		Answer:    firstNonEmpty(w.Answer, w.Response),
		AudioURL:  firstNonEmpty(w.AudioURL, w.AudioURLAlt),
		CreatedAt: parseTimestamp(firstNonEmpty(w.CreatedAt, w.CreatedAtAlt, w.Timestamp)),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
