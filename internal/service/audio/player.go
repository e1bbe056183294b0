package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinels consumed by the shared failure classifier.
var (
	// ErrUnsupportedFormat marks media the current playback path cannot
	// decode; the next tier may still manage.
	ErrUnsupportedFormat = errors.New("audio format unsupported")

	// ErrBrokenReference marks a URL that exhausted every playback strategy
	// this session.
	ErrBrokenReference = errors.New("audio reference is broken")
)

// Player is the primary playback path: the platform audio element. Play
// blocks until the stream ends, fails, or ctx is cancelled by a superseding
// playback.
type Player interface {
	Play(ctx context.Context, url string, speed float64) error
}

// PCMSink receives decoded samples on the secondary path, bypassing the
// element entirely.
type PCMSink interface {
	PlayPCM(ctx context.Context, samples []int16, sampleRate int) error
}

// recoverable is the single failure classifier shared by every tier: network
// transport failures and format rejections qualify for the next strategy,
// anything else does not.
func recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	return false
}

// StreamPlayer fetches a playable URL and streams it into an output sink. It
// stands in for the platform audio element in headless environments such as
// the tester binary.
type StreamPlayer struct {
	client *resty.Client
	out    io.Writer
}

// NewStreamPlayer builds a player writing raw stream bytes to out.
func NewStreamPlayer(out io.Writer, timeout time.Duration) *StreamPlayer {
	return &StreamPlayer{
		client: resty.New().SetTimeout(timeout),
		out:    out,
	}
}

// Play implements Player.
func (p *StreamPlayer) Play(ctx context.Context, url string, _ float64) error {
	resp, err := p.client.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return fmt.Errorf("fetch audio stream: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("fetch audio stream: unexpected status %d", resp.StatusCode())
	}
	if _, err := io.Copy(p.out, body); err != nil {
		return fmt.Errorf("stream audio: %w", err)
	}
	return nil
}

// WAVSink re-wraps decoded samples as WAV and writes them to an output
// writer; the secondary tier's headless stand-in.
type WAVSink struct {
	out io.Writer
}

// NewWAVSink builds a sink writing WAV-encoded audio to out.
func NewWAVSink(out io.Writer) *WAVSink { return &WAVSink{out: out} }

// PlayPCM implements PCMSink.
func (s *WAVSink) PlayPCM(_ context.Context, samples []int16, sampleRate int) error {
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return err
	}
	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("write decoded audio: %w", err)
	}
	return nil
}
