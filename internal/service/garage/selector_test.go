package garage_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
	"github.com/greasemonkey-ai/voicecore/internal/service/garage"
	"github.com/greasemonkey-ai/voicecore/internal/service/prefs"
)

func testRoster() *vehicle.MemoryRoster {
	return vehicle.NewMemoryRoster([]vehicle.Vehicle{
		{ID: "veh-a", Make: "Honda", Model: "Civic", Year: 2018},
		{ID: "veh-b", Make: "Ford", Model: "F-150", Year: 2021},
	})
}

func TestDebounceCollapsesRapidToggling(t *testing.T) {
	settles := make(chan string, 4)
	sel := garage.NewSelector(testRoster(), prefs.NewMemoryStore(), 40*time.Millisecond,
		func(id string) { settles <- id }, zerolog.Nop())
	defer sel.Close()

	sel.Select("veh-a")
	sel.Select("veh-b")
	sel.Select("veh-a")
	assert.Equal(t, "veh-a", sel.Raw())

	select {
	case id := <-settles:
		assert.Equal(t, "veh-a", id)
	case <-time.After(time.Second):
		t.Fatal("selection never settled")
	}

	// No further settles may arrive for the collapsed intermediate values.
	select {
	case id := <-settles:
		t.Fatalf("unexpected extra settle %q", id)
	case <-time.After(120 * time.Millisecond):
	}

	settled, ok := sel.Settled()
	require.True(t, ok)
	assert.Equal(t, "veh-a", settled)
}

func TestSettlePersistsSelection(t *testing.T) {
	store := prefs.NewMemoryStore()
	settles := make(chan string, 1)
	sel := garage.NewSelector(testRoster(), store, 20*time.Millisecond,
		func(id string) { settles <- id }, zerolog.Nop())
	defer sel.Close()

	sel.Select("veh-b")
	select {
	case <-settles:
	case <-time.After(time.Second):
		t.Fatal("selection never settled")
	}

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "veh-b", saved.VehicleID)
}

func TestRestoreUsesPersistedVehicle(t *testing.T) {
	store := prefs.NewMemoryStore()
	require.NoError(t, store.Save(prefs.Preferences{VehicleID: "veh-b", PlaybackSpeed: 1.0}))

	var settled string
	sel := garage.NewSelector(testRoster(), store, 20*time.Millisecond,
		func(id string) { settled = id }, zerolog.Nop())
	defer sel.Close()

	assert.Equal(t, "veh-b", sel.Restore())
	assert.Equal(t, "veh-b", settled)

	active, ok := sel.ActiveVehicle()
	require.True(t, ok)
	assert.Equal(t, "Ford", active.Make)
}

func TestRestoreFallsBackWhenStoredVehicleGone(t *testing.T) {
	store := prefs.NewMemoryStore()
	require.NoError(t, store.Save(prefs.Preferences{VehicleID: "veh-deleted", PlaybackSpeed: 1.0}))

	sel := garage.NewSelector(testRoster(), store, 20*time.Millisecond, nil, zerolog.Nop())
	defer sel.Close()

	assert.Equal(t, "veh-a", sel.Restore(), "falls back to the first garage vehicle")

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "veh-a", saved.VehicleID, "fallback is written back")
}

func TestRestoreWithEmptyGarage(t *testing.T) {
	sel := garage.NewSelector(vehicle.NewMemoryRoster(nil), prefs.NewMemoryStore(),
		20*time.Millisecond, nil, zerolog.Nop())
	defer sel.Close()

	assert.Equal(t, "", sel.Restore())
	_, ok := sel.ActiveVehicle()
	assert.False(t, ok)
}
