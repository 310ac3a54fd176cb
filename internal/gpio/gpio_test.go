package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/pinctrl"
)

func TestBus_ActivateDeactivate(t *testing.T) {
	fake := NewFakeBackend()
	bus := NewBus(fake)

	activeHigh := model.GPIOPin{Number: 17, ActiveHigh: true}
	activeLow := model.GPIOPin{Number: 27, ActiveHigh: false}

	require.NoError(t, bus.Activate(activeHigh))
	require.NoError(t, bus.Activate(activeLow))
	assert.True(t, fake.Level(17))
	assert.False(t, fake.Level(27))

	require.NoError(t, bus.Deactivate(activeHigh))
	require.NoError(t, bus.Deactivate(activeLow))
	assert.False(t, fake.Level(17))
	assert.True(t, fake.Level(27))
}

func TestBus_SafeModeSuppressesRelayWrites(t *testing.T) {
	fake := NewFakeBackend()
	bus := NewBus(fake)
	bus.SetSafeMode(true)

	require.NoError(t, bus.Activate(model.GPIOPin{Number: 17, ActiveHigh: true}))
	assert.Empty(t, fake.Writes)

	// raw pin access is unaffected
	err := bus.Exclusive(func(p Pins) error {
		return p.Write(5, true)
	})
	require.NoError(t, err)
	assert.Equal(t, []Write{{Pin: 5, High: true}}, fake.Writes)
}

func TestBus_WriteError(t *testing.T) {
	fake := NewFakeBackend()
	fake.WriteErr[17] = errors.New("line busy")
	bus := NewBus(fake)

	err := bus.Activate(model.GPIOPin{Number: 17, ActiveHigh: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line busy")
	assert.Contains(t, err.Error(), "relay pin 17")
}

func TestBus_CloseDeactivatesRelays(t *testing.T) {
	fake := NewFakeBackend()
	bus := NewBus(fake)

	require.NoError(t, bus.Activate(model.GPIOPin{Number: 17, ActiveHigh: true}))
	require.NoError(t, bus.Activate(model.GPIOPin{Number: 27, ActiveHigh: false}))

	require.NoError(t, bus.Close())
	assert.False(t, fake.Level(17))
	assert.True(t, fake.Level(27))
	assert.True(t, fake.Closed)
}

func mockPins(t *testing.T, states map[int]pinctrl.PinState, err error, levels map[int]bool, levelErr error) {
	t.Helper()
	origAll, origLevel := readAllPins, readLevel
	readAllPins = func() (map[int]pinctrl.PinState, error) { return states, err }
	readLevel = func(pin int) (bool, error) { return levels[pin], levelErr }
	t.Cleanup(func() {
		readAllPins = origAll
		readLevel = origLevel
	})
}

func TestValidateStartupPins(t *testing.T) {
	relays := []model.GPIOPin{
		{Number: 17, ActiveHigh: true},
		{Number: 27, ActiveHigh: false},
	}

	parked := map[int]pinctrl.PinState{
		17: {Pin: 17, Mode: "op", Level: "lo"},
		27: {Pin: 27, Mode: "op", Level: "hi"},
	}

	tests := []struct {
		name     string
		states   map[int]pinctrl.PinState
		readErr  error
		levels   map[int]bool
		levelErr error
		wantErr  string
	}{
		{
			name:   "valid",
			states: parked,
			levels: map[int]bool{17: false, 27: true},
		},
		{
			name:    "level read disagrees",
			states:  parked,
			levels:  map[int]bool{17: true, 27: true},
			wantErr: "relay pin 17 is in wrong state at startup (reads active)",
		},
		{
			name:     "level read fails",
			states:   parked,
			levelErr: errors.New("pinctrl lev: exit status 1"),
			wantErr:  "failed to read level of relay pin 17",
		},
		{
			name: "active at startup",
			states: map[int]pinctrl.PinState{
				17: {Pin: 17, Mode: "op", Level: "hi"},
				27: {Pin: 27, Mode: "op", Level: "hi"},
			},
			wantErr: "relay pin 17 is in wrong state",
		},
		{
			name: "input mode",
			states: map[int]pinctrl.PinState{
				17: {Pin: 17, Mode: "op", Level: "lo"},
				27: {Pin: 27, Mode: "ip", Level: "hi"},
			},
			wantErr: "not configured as an output",
		},
		{
			name:    "missing pin",
			states:  map[int]pinctrl.PinState{17: {Pin: 17, Mode: "op", Level: "lo"}},
			wantErr: "pin 27 not found",
		},
		{
			name:    "pinctrl unavailable",
			readErr: errors.New("exec: pinctrl not found"),
			wantErr: "pinctrl not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPins(t, tt.states, tt.readErr, tt.levels, tt.levelErr)
			err := ValidateStartupPins(relays)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
