package wakeword

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loudWindow(size int) []int16 {
	w := make([]int16, size)
	for i := range w {
		if i%2 == 0 {
			w[i] = 12000
		} else {
			w[i] = -12000
		}
	}
	return w
}

func quietWindow(size int) []int16 {
	w := make([]int16, size)
	for i := range w {
		if i%2 == 0 {
			w[i] = 150
		} else {
			w[i] = -150
		}
	}
	return w
}

func startedDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Start(nil))
	t.Cleanup(d.Close)
	return d
}

func TestNewDetectorRejectsBadConfig(t *testing.T) {
	_, err := NewDetector(Config{Threshold: 1.5}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewDetector(Config{WindowSize: -1}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewDetector(Config{TriggerWindows: -3}, zerolog.Nop())
	assert.Error(t, err)
}

func TestFeedRequiresStart(t *testing.T) {
	d, err := NewDetector(Config{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = d.Feed(loudWindow(DefaultWindowSize))
	assert.Error(t, err)
}

func TestSustainedSpeechFiresOnce(t *testing.T) {
	d, err := NewDetector(Config{TriggerWindows: 3}, zerolog.Nop())
	require.NoError(t, err)
	woken := 0
	require.NoError(t, d.Start(func() { woken++ }))
	t.Cleanup(d.Close)

	fires := 0
	for i := 0; i < 20; i++ {
		fired, err := d.Feed(loudWindow(DefaultWindowSize))
		require.NoError(t, err)
		if fired {
			fires = fires + 1
		}
	}

	assert.Equal(t, 1, fires, "one utterance fires exactly one wake")
	assert.Equal(t, 1, woken)
	assert.False(t, d.Armed(), "detector stays disarmed while speech continues")
}

func TestSilenceDoesNotFire(t *testing.T) {
	d := startedDetector(t, Config{})

	for i := 0; i < 50; i++ {
		fired, err := d.Feed(quietWindow(DefaultWindowSize))
		require.NoError(t, err)
		assert.False(t, fired)
	}
	assert.True(t, d.Armed())
}

func TestHangoverRearmsAfterSilence(t *testing.T) {
	d := startedDetector(t, Config{TriggerWindows: 3, HangoverWindows: 4})

	feedUntilFire := func() {
		t.Helper()
		for i := 0; i < 30; i++ {
			fired, err := d.Feed(loudWindow(DefaultWindowSize))
			require.NoError(t, err)
			if fired {
				return
			}
		}
		t.Fatal("detector never fired")
	}

	feedUntilFire()
	require.False(t, d.Armed())

	// Enough quiet windows to decay the smoothed energy and pass the
	// hangover re-arms the detector.
	for i := 0; i < 40 && !d.Armed(); i++ {
		_, err := d.Feed(quietWindow(DefaultWindowSize))
		require.NoError(t, err)
	}
	require.True(t, d.Armed())

	feedUntilFire()
}

func TestRearmSkipsHangover(t *testing.T) {
	d := startedDetector(t, Config{TriggerWindows: 2})

	for i := 0; i < 10; i++ {
		if fired, _ := d.Feed(loudWindow(DefaultWindowSize)); fired {
			break
		}
	}
	require.False(t, d.Armed())

	d.Rearm()
	assert.True(t, d.Armed())
}

func TestFeedRejectsWrongWindowSize(t *testing.T) {
	d := startedDetector(t, Config{WindowSize: 512})

	_, err := d.Feed(make([]int16, 100))
	assert.Error(t, err)
}

func TestStatsCountVoicedWindows(t *testing.T) {
	d := startedDetector(t, Config{})

	for i := 0; i < 5; i++ {
		_, err := d.Feed(loudWindow(DefaultWindowSize))
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := d.Feed(quietWindow(DefaultWindowSize))
		require.NoError(t, err)
	}

	stats := d.Stats()
	assert.Equal(t, uint64(10), stats.TotalWindows)
	assert.Greater(t, stats.VoiceWindows, uint64(0))
	assert.Less(t, stats.VoiceWindows, uint64(10))
}
