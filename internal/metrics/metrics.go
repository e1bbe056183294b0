package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the Prometheus instruments for one engine session.
type Metrics struct {
	// Conversation history
	HistoryLoads      prometheus.Counter
	HistoryLoadErrors prometheus.Counter
	StaleDiscards     prometheus.Counter
	MessagesAppended  prometheus.Counter

	// Audio delivery
	PlaybackStarts    prometheus.Counter
	PlaybackFallbacks prometheus.Counter
	PlaybackFailures  prometheus.Counter
	BrokenReferences  prometheus.Counter
	CacheEvictions    prometheus.Counter
	CachedResources   prometheus.Gauge
	SynthesisRequests prometheus.Counter
	SynthesisFailures prometheus.Counter

	// Query session
	AsksSubmitted         prometheus.Counter
	AsksThrottled         prometheus.Counter
	AskFailures           prometheus.Counter
	Transcriptions        prometheus.Counter
	TranscriptionFailures prometheus.Counter
	AskDuration           prometheus.Histogram
}

// New creates the session metrics, registered on reg. A nil registerer yields
// unregistered instruments, which tests rely on.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HistoryLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_history_loads_total",
			Help: "Total number of conversation history fetches issued",
		}),
		HistoryLoadErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_history_load_errors_total",
			Help: "Total number of failed conversation history fetches",
		}),
		StaleDiscards: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_history_stale_discards_total",
			Help: "Total number of fetch results dropped because their partition was no longer active",
		}),
		MessagesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_history_messages_appended_total",
			Help: "Total number of messages appended after an answered question",
		}),
		PlaybackStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_playback_starts_total",
			Help: "Total number of playback attempts handed to the primary player",
		}),
		PlaybackFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_playback_fallbacks_total",
			Help: "Total number of secondary decode-and-play attempts",
		}),
		PlaybackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_playback_failures_total",
			Help: "Total number of playback attempts that exhausted every strategy",
		}),
		BrokenReferences: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_audio_broken_refs_total",
			Help: "Total number of audio references marked broken this session",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_audio_cache_evictions_total",
			Help: "Total number of resolved audio resources evicted from the cache",
		}),
		CachedResources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicecore_audio_cache_entries",
			Help: "Current number of resolved audio resources held by the cache",
		}),
		SynthesisRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_synthesis_requests_total",
			Help: "Total number of speech synthesis requests",
		}),
		SynthesisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_synthesis_failures_total",
			Help: "Total number of failed speech synthesis requests",
		}),
		AsksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_asks_submitted_total",
			Help: "Total number of questions submitted to the ask collaborator",
		}),
		AsksThrottled: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_asks_throttled_total",
			Help: "Total number of submissions rejected by the throttle",
		}),
		AskFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_ask_failures_total",
			Help: "Total number of failed ask submissions",
		}),
		Transcriptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_transcriptions_total",
			Help: "Total number of completed transcriptions",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicecore_transcription_failures_total",
			Help: "Total number of failed or empty transcriptions",
		}),
		AskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecore_ask_duration_seconds",
			Help:    "Wall time from submission to answered question",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}
