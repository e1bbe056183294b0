package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = int16(i*37 - 8000)
	}

	data, err := EncodeWAV(samples, 24000)
	require.NoError(t, err)

	decoded, rate, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 24000, rate)
	assert.Equal(t, samples, decoded)
}

func TestEncodeWAVRejectsEmptyInput(t *testing.T) {
	_, err := EncodeWAV(nil, 16000)
	assert.Error(t, err)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, _, err := DecodeWAV([]byte("ID3\x04mp3-frame-data-here"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = DecodeWAV(nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
