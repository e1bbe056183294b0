package audio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/metrics"
	audiomodel "github.com/greasemonkey-ai/voicecore/internal/model/audio"
)

// cacheKeyLen is how much of the answer text forms the cache key.
const cacheKeyLen = 64

// maxFallbacks bounds how many secondary decode attempts one URL gets before
// entering the broken set.
const maxFallbacks = 2

// Synthesizer is the speech synthesis collaborator, addressed by the answer
// text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (data []byte, mime string, err error)
}

// SynthesisError reports a failed resolution of a deferred reference. The
// caller decides how to degrade; nothing here falls back to text-only mode
// automatically.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("speech synthesis failed: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }

// PlaybackError reports a play attempt that exhausted every strategy, or a
// replay of a reference already known to be broken.
type PlaybackError struct {
	URL string
	Err error
}

func (e *PlaybackError) Error() string { return fmt.Sprintf("playback of %s failed: %v", e.URL, e.Err) }
func (e *PlaybackError) Unwrap() error { return e.Err }

// slot is the exclusive playback slot: at most one active stream, revoked
// implicitly by any newer Play call through its generation counter.
type slot struct {
	url    string
	gen    uint64
	cancel context.CancelFunc
}

// Pipeline resolves logical audio references into playable resources and
// plays them with two-tier fallback, bounded caching and per-session broken
// tracking. All mutable state belongs to one session and dies with Close.
type Pipeline struct {
	mu      sync.Mutex
	synth   Synthesizer
	player  Player
	sink    PCMSink
	host    *ResourceHost
	cache   *resourceCache
	fetch   *resty.Client
	log     zerolog.Logger
	met     *metrics.Metrics
	speed   float64
	states  map[string]audiomodel.State
	broken  map[string]struct{}
	retries map[string]int
	gen     uint64
	current *slot
}

// PipelineOptions tunes a pipeline; zero values fall back to defaults.
type PipelineOptions struct {
	CacheCapacity int
	Speed         float64
	FetchTimeout  time.Duration
}

// NewPipeline assembles the delivery pipeline. The pipeline takes ownership
// of the resource host and shuts it down on Close.
func NewPipeline(synth Synthesizer, player Player, sink PCMSink, host *ResourceHost, opts PipelineOptions, log zerolog.Logger, met *metrics.Metrics) *Pipeline {
	if met == nil {
		met = metrics.New(nil)
	}
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}

	p := &Pipeline{
		synth:   synth,
		player:  player,
		sink:    sink,
		host:    host,
		fetch:   resty.New().SetTimeout(opts.FetchTimeout),
		log:     log.With().Str("component", "audio").Logger(),
		met:     met,
		speed:   opts.Speed,
		states:  make(map[string]audiomodel.State),
		broken:  make(map[string]struct{}),
		retries: make(map[string]int),
	}
	p.cache = newResourceCache(opts.CacheCapacity, func(key, url string) {
		host.Release(url)
		met.CacheEvictions.Inc()
		p.log.Debug().Str("key", key).Msg("evicted cached audio resource")
	})
	return p
}

// cacheKey derives the content key from the source answer text.
func cacheKey(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > cacheKeyLen {
		runes = runes[:cacheKeyLen]
	}
	return string(runes)
}

// SetSpeed updates the playback rate handed to the primary player.
func (p *Pipeline) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
}

// State reports the lifecycle position of a URL or cache key.
func (p *Pipeline) State(key string) audiomodel.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[key]
}

// Broken reports whether the URL exhausted every playback strategy this
// session.
func (p *Pipeline) Broken(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.broken[url]
	return ok
}

// CachedResources reports how many resolved resources the cache holds.
func (p *Pipeline) CachedResources() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.len()
}

// Resolve converts a logical reference into a playable URL. Direct URLs pass
// straight through; deferred references are synthesized, hosted locally and
// cached by their content key.
func (p *Pipeline) Resolve(ctx context.Context, ref audiomodel.Ref) (string, error) {
	if ref.Empty() {
		return "", &SynthesisError{Err: errors.New("empty audio reference")}
	}
	if !ref.Deferred() {
		p.setState(ref.URL, audiomodel.StateReady)
		return ref.URL, nil
	}

	key := cacheKey(ref.Text)
	p.mu.Lock()
	if url, ok := p.cache.get(key); ok {
		p.states[key] = audiomodel.StateReady
		p.mu.Unlock()
		return url, nil
	}
	p.states[key] = audiomodel.StateResolving
	p.mu.Unlock()

	p.met.SynthesisRequests.Inc()
	data, mime, err := p.synth.Synthesize(ctx, ref.Text)
	if err == nil && len(data) == 0 {
		err = errors.New("synthesizer returned no audio")
	}
	if err != nil {
		p.met.SynthesisFailures.Inc()
		p.setState(key, audiomodel.StateBroken)
		return "", &SynthesisError{Err: err}
	}

	url := p.host.Register(data, mime)
	p.mu.Lock()
	p.cache.put(key, url)
	p.met.CachedResources.Set(float64(p.cache.len()))
	p.states[key] = audiomodel.StateReady
	p.mu.Unlock()

	p.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("resolved deferred audio reference")
	return url, nil
}

func (p *Pipeline) setState(key string, s audiomodel.State) {
	p.mu.Lock()
	p.states[key] = s
	p.mu.Unlock()
}

// Play starts playback of url, revoking any currently playing stream first.
// It blocks until the stream ends, every strategy fails, or a newer Play
// supersedes it. Broken references short-circuit without any I/O.
func (p *Pipeline) Play(ctx context.Context, url string) error {
	if url == "" {
		return &PlaybackError{URL: url, Err: errors.New("empty playback url")}
	}

	p.mu.Lock()
	if _, bad := p.broken[url]; bad {
		p.mu.Unlock()
		return &PlaybackError{URL: url, Err: ErrBrokenReference}
	}
	p.gen++
	gen := p.gen
	if p.current != nil {
		p.current.cancel()
	}
	playCtx, cancel := context.WithCancel(ctx)
	p.current = &slot{url: url, gen: gen, cancel: cancel}
	p.states[url] = audiomodel.StatePlaying
	speed := p.speed
	p.mu.Unlock()

	err := p.playTiers(playCtx, url, speed)

	p.mu.Lock()
	superseded := p.current == nil || p.current.gen != gen
	if !superseded {
		p.current = nil
	}
	p.mu.Unlock()
	cancel()

	if superseded || playCtx.Err() != nil {
		// A newer Play revoked this one; drop the result on the floor. The
		// url leaves the playing state unless the new stream is the same url.
		p.mu.Lock()
		if p.current == nil || p.current.url != url {
			p.states[url] = audiomodel.StateReady
		}
		p.mu.Unlock()
		p.log.Debug().Str("url", url).Msg("superseded playback attempt ignored")
		return nil
	}
	if err == nil {
		p.setState(url, audiomodel.StateReady)
		return nil
	}
	return err
}

// playTiers walks the ordered strategy list: the primary element first, then
// the low-level buffer decode, gated by the shared classifier and the
// per-URL retry budget.
func (p *Pipeline) playTiers(ctx context.Context, url string, speed float64) error {
	p.met.PlaybackStarts.Inc()
	err := p.player.Play(ctx, url, speed)
	if err == nil || ctx.Err() != nil {
		return err
	}

	p.mu.Lock()
	eligible := recoverable(err) && p.retries[url] < maxFallbacks
	if eligible {
		p.retries[url]++
		p.states[url] = audiomodel.StateRetryFallback
	} else {
		p.states[url] = audiomodel.StateError
	}
	p.mu.Unlock()

	if !eligible {
		p.markBroken(url)
		return &PlaybackError{URL: url, Err: err}
	}

	p.log.Debug().Str("url", url).Err(err).Msg("primary playback failed, trying buffer decode")
	p.met.PlaybackFallbacks.Inc()
	if fallbackErr := p.playDecoded(ctx, url); fallbackErr != nil {
		if ctx.Err() != nil {
			return fallbackErr
		}
		p.markBroken(url)
		return &PlaybackError{URL: url, Err: fallbackErr}
	}
	return nil
}

// playDecoded is the secondary tier: fetch the whole resource, decode it
// off-element and hand raw samples to the sink.
func (p *Pipeline) playDecoded(ctx context.Context, url string) error {
	resp, err := p.fetch.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("fetch audio buffer: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("fetch audio buffer: unexpected status %d", resp.StatusCode())
	}

	samples, rate, err := DecodeWAV(resp.Body())
	if err != nil {
		return err
	}
	return p.sink.PlayPCM(ctx, samples, rate)
}

func (p *Pipeline) markBroken(url string) {
	p.mu.Lock()
	_, already := p.broken[url]
	p.broken[url] = struct{}{}
	p.states[url] = audiomodel.StateBroken
	p.mu.Unlock()

	p.met.PlaybackFailures.Inc()
	if !already {
		p.met.BrokenReferences.Inc()
	}
	p.log.Warn().Str("url", url).Msg("audio reference exhausted every playback strategy")
}

// Stop revokes the current playback, if any.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.current != nil {
		p.current.cancel()
		p.current = nil
	}
	p.mu.Unlock()
}

// Close tears the pipeline down: stops playback, releases every cached
// resource and shuts the resource host down.
func (p *Pipeline) Close(ctx context.Context) error {
	p.Stop()

	p.mu.Lock()
	p.cache.drain()
	p.met.CachedResources.Set(0)
	p.mu.Unlock()

	return p.host.Close(ctx)
}
