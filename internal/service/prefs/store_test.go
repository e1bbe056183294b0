package prefs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey-ai/voicecore/internal/service/prefs"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	store := prefs.NewFileStore(path)

	saved := prefs.Preferences{
		VehicleID:     "veh-1",
		PlaybackSpeed: 1.5,
		Autoplay:      true,
		WakeWord:      true,
	}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestFileStoreMissingFileYieldsDefaults(t *testing.T) {
	store := prefs.NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, prefs.Default(), loaded)
	assert.Equal(t, 1.0, loaded.PlaybackSpeed)
	assert.True(t, loaded.Autoplay)
}

func TestFileStoreCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := prefs.NewFileStore(path)
	loaded, err := store.Load()
	require.Error(t, err)
	assert.Equal(t, prefs.Default(), loaded)
}

func TestFileStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	store := prefs.NewFileStore(path)

	require.NoError(t, store.Save(prefs.Preferences{VehicleID: "a", PlaybackSpeed: 1.0}))
	require.NoError(t, store.Save(prefs.Preferences{VehicleID: "b", PlaybackSpeed: 2.0}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.VehicleID)
	assert.Equal(t, 2.0, loaded.PlaybackSpeed)
}
