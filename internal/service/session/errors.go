package session

import (
	"fmt"
	"time"
)

// PermissionError reports that microphone capture could not start.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string { return fmt.Sprintf("microphone unavailable: %v", e.Err) }
func (e *PermissionError) Unwrap() error { return e.Err }

// EmptyRecordingError reports that capture stopped without any audio.
type EmptyRecordingError struct{}

func (e *EmptyRecordingError) Error() string { return "recording captured no audio" }

// TranscriptionError reports a failed or empty transcription. No history
// entry is created on this path.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return fmt.Sprintf("transcription failed: %v", e.Err) }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// AskError reports that the ask collaborator could not answer the question.
type AskError struct {
	Err error
}

func (e *AskError) Error() string { return fmt.Sprintf("ask failed: %v", e.Err) }
func (e *AskError) Unwrap() error { return e.Err }

// ThrottleError rejects a submission issued too soon after the previous one.
type ThrottleError struct {
	Wait time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("ask submitted too soon, retry in %s", e.Wait.Round(time.Millisecond))
}
