package wakeword

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// Defaults tuned for 16 kHz mono microphone capture in a car cabin.
const (
	DefaultWindowSize      = 512
	DefaultSampleRate      = 16000
	DefaultThreshold       = 0.35
	DefaultTriggerWindows  = 6
	DefaultHangoverWindows = 12
)

// Config controls the energy gate of the wake detector.
type Config struct {
	// Threshold is the smoothed voice probability above which a window
	// counts as speech, in [0, 1].
	Threshold float32
	// WindowSize is the number of samples fed per call to Feed.
	WindowSize int
	SampleRate int
	// TriggerWindows is how many consecutive speech windows fire a wake.
	TriggerWindows int
	// HangoverWindows is how many silent windows re-arm the detector
	// after it fires, so one utterance cannot fire twice.
	HangoverWindows int
}

func (c *Config) applyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.TriggerWindows == 0 {
		c.TriggerWindows = DefaultTriggerWindows
	}
	if c.HangoverWindows == 0 {
		c.HangoverWindows = DefaultHangoverWindows
	}
}

// Stats is a snapshot of detector activity.
type Stats struct {
	TotalWindows uint64
	VoiceWindows uint64
	Armed        bool
}

// Detector is an energy-based voice activity gate. It fires once per
// sustained stretch of speech and stays disarmed until enough silence
// has passed, which is the behavior hands-free mode wants: the spoken
// question itself must not re-trigger listening.
type Detector struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	running  bool
	armed    bool
	smoothed float32
	streak   int
	silence  int
	total    uint64
	voiced   uint64
	onWake   func()
}

// smoothing keeps single hot windows (door slam, bump) from firing.
const smoothing = float32(0.25)

// fullScaleRMS maps RMS energy onto [0, 1]; speech at normal cabin
// volume lands well above threshold, idle road noise below it.
const fullScaleRMS = 10000.0

func NewDetector(cfg Config, log zerolog.Logger) (*Detector, error) {
	cfg.applyDefaults()
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("wake threshold must be in [0, 1], got %f", cfg.Threshold)
	}
	if cfg.WindowSize < 0 || cfg.SampleRate < 0 {
		return nil, fmt.Errorf("window size and sample rate must be positive")
	}
	if cfg.TriggerWindows < 1 {
		return nil, fmt.Errorf("trigger window count must be at least 1, got %d", cfg.TriggerWindows)
	}
	return &Detector{
		cfg: cfg,
		log: log.With().Str("component", "wakeword").Logger(),
	}, nil
}

// Start arms the detector. onWake runs on the Feed goroutine each time
// a wake fires; it must not block.
func (d *Detector) Start(onWake func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("wake detector already running")
	}
	d.running = true
	d.armed = true
	d.smoothed = 0
	d.streak = 0
	d.silence = 0
	d.onWake = onWake
	d.log.Info().
		Float32("threshold", d.cfg.Threshold).
		Int("trigger_windows", d.cfg.TriggerWindows).
		Msg("wake detector armed")
	return nil
}

// Feed processes one capture window and reports whether it fired a wake.
func (d *Detector) Feed(samples []int16) (bool, error) {
	d.mu.Lock()

	if !d.running {
		d.mu.Unlock()
		return false, fmt.Errorf("wake detector not started")
	}
	if len(samples) != d.cfg.WindowSize {
		d.mu.Unlock()
		return false, fmt.Errorf("expected %d samples per window, got %d", d.cfg.WindowSize, len(samples))
	}

	p := windowProbability(samples)
	if d.total > 0 {
		p = smoothing*p + (1-smoothing)*d.smoothed
	}
	d.smoothed = p
	d.total++

	voiced := p >= d.cfg.Threshold
	if voiced {
		d.voiced++
	}

	fired := false
	if d.armed {
		if voiced {
			d.streak++
			if d.streak >= d.cfg.TriggerWindows {
				fired = true
				d.armed = false
				d.streak = 0
				d.silence = 0
			}
		} else {
			d.streak = 0
		}
	} else {
		if voiced {
			d.silence = 0
		} else {
			d.silence++
			if d.silence >= d.cfg.HangoverWindows {
				d.armed = true
				d.silence = 0
			}
		}
	}
	onWake := d.onWake
	d.mu.Unlock()

	if fired {
		d.log.Debug().Float32("probability", p).Msg("wake fired")
		if onWake != nil {
			onWake()
		}
	}
	return fired, nil
}

// Rearm makes the detector eligible to fire again immediately, without
// waiting out the hangover. The session calls this once playback of the
// answer has finished.
func (d *Detector) Rearm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.streak = 0
	d.silence = 0
}

func (d *Detector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{TotalWindows: d.total, VoiceWindows: d.voiced, Armed: d.armed}
}

// Close stops the detector. Subsequent Feed calls report an error.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.onWake = nil
}

// windowProbability maps RMS energy of the window onto [0, 1].
func windowProbability(samples []int16) float32 {
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	rms := math.Sqrt(energy / float64(len(samples)))

	p := rms / fullScaleRMS
	if p > 1 {
		p = 1
	}
	return float32(p)
}
