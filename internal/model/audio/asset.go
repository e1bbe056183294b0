package audio

// Ref is a logical audio reference: either a directly playable URL or a
// deferred synthesis request addressed by the answer text.
type Ref struct {
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`
}

// DirectRef wraps an already playable URL.
func DirectRef(url string) Ref { return Ref{URL: url} }

// DeferredRef wraps text that still needs speech synthesis.
func DeferredRef(text string) Ref { return Ref{Text: text} }

// Deferred reports whether the reference requires synthesis before playback.
func (r Ref) Deferred() bool { return r.URL == "" }

// Empty reports whether the reference carries nothing playable at all.
func (r Ref) Empty() bool { return r.URL == "" && r.Text == "" }

// State is the lifecycle position of one audio asset inside the delivery
// pipeline.
type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateReady
	StatePlaying
	StateError
	StateRetryFallback
	StateBroken
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	case StateRetryFallback:
		return "retry_fallback"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}
