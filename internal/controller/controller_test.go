package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/device"
	"github.com/thatsimonsguy/propagator/internal/gpio"
	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/state"
)

var errNoConnection = errors.New("No Connection")

type result struct {
	value float64
	err   error
}

type relayCall struct {
	ch int
	on bool
}

type fakeHW struct {
	mu       sync.Mutex
	channels int
	script   map[int][]result
	air      []result
	relays   []relayCall
	relayErr map[int]error
}

func newFakeHW(channels int) *fakeHW {
	return &fakeHW{channels: channels, script: map[int][]result{}, relayErr: map[int]error{}}
}

func next(results []result) (result, []result) {
	if len(results) == 0 {
		return result{err: errors.New("no scripted reading")}, results
	}
	r := results[0]
	if len(results) > 1 {
		results = results[1:]
	}
	return r, results
}

func (f *fakeHW) Read(ch int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var r result
	r, f.script[ch] = next(f.script[ch])
	return r.value, r.err
}

func (f *fakeHW) ReferenceRead(ch int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.air) == 0 {
		return 21, nil
	}
	var r result
	r, f.air = next(f.air)
	return r.value, r.err
}

func (f *fakeHW) SetRelay(ch int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relays = append(f.relays, relayCall{ch, on})
	return f.relayErr[ch]
}

func (f *fakeHW) Channels() int { return f.channels }

func (f *fakeHW) relayHistory(ch int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, c := range f.relays {
		if c.ch == ch {
			out = append(out, c.on)
		}
	}
	return out
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Send(title, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

func testConfig(channels ...model.ChannelConfig) *config.Config {
	return &config.Config{
		Channels:        channels,
		Schedule:        []model.ScheduleEntry{{Time: 0, Setpoint: 20}},
		ControlInterval: time.Millisecond,
	}
}

func at(hour, min int) time.Time {
	return time.Date(2024, 3, 1, hour, min, 0, 0, time.Local)
}

func TestEvaluateRelay(t *testing.T) {
	tests := []struct {
		name     string
		reading  model.Reading
		setpoint float64
		expected bool
	}{
		{"below setpoint", model.Measured(18), 20, true},
		{"at setpoint", model.Measured(20), 20, false},
		{"above setpoint", model.Measured(22), 20, false},
		{"fault", model.Faulted("No Connection"), 20, false},
		{"pending", model.Reading{}, 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, evaluateRelay(tt.reading, tt.setpoint))
		})
	}
}

func TestTick_FaultForcesRelayOff(t *testing.T) {
	hw := newFakeHW(1)
	hw.script[0] = []result{{value: 18}, {value: 18}, {value: 18}, {err: errors.Wrap(errNoConnection, "read sensor \"Tray\"")}}
	cfg := testConfig(model.ChannelConfig{Name: "Tray"})
	tracker := state.NewTracker(cfg.ChannelNames())
	c := New(cfg, hw, tracker)

	var heaters []model.HeaterState
	for i := 0; i < 4; i++ {
		c.Tick(at(12, i))
		heaters = append(heaters, tracker.Snapshot().Heater)
	}

	assert.Equal(t, []bool{true, true, true, false}, hw.relayHistory(0))
	assert.Equal(t, []model.HeaterState{model.HeaterOn, model.HeaterOn, model.HeaterOn, model.HeaterErrorOff}, heaters)
	assert.Equal(t, "Error: No Connection", tracker.Snapshot().Channels[0].Reading.String())
}

func TestTick_DataLineStuckLowKeepsRelayOff(t *testing.T) {
	backend := gpio.NewFakeBackend()
	backend.ReadFunc = func(int) (bool, error) { return false, nil }
	cfg := testConfig(model.ChannelConfig{Name: "Tray", CSPin: 8, RelayPin: 17})
	cfg.Hardware = config.Hardware{ClockPin: 11, DataPin: 9, RelayActiveHigh: true}
	cfg.Units = model.Celsius
	tracker := state.NewTracker(cfg.ChannelNames())
	c := New(cfg, device.NewBoard(gpio.NewBus(backend), cfg), tracker)

	for i := 0; i < 3; i++ {
		tick := c.Tick(at(9, i))
		assert.Equal(t, model.HeaterErrorOff, tick.Channels[0].Heater)
		assert.Equal(t, "Error: No data from converter", tick.Channels[0].Reading.String())
	}

	for _, w := range backend.Writes {
		if w.Pin == 17 {
			assert.False(t, w.High, "relay energised while the data line reads all zeros")
		}
	}
	s := tracker.Snapshot()
	assert.Zero(t, s.OnTicks)
	assert.False(t, s.BoundsSeeded)
}

func TestTick_Calibration(t *testing.T) {
	hw := newFakeHW(1)
	hw.script[0] = []result{{value: 19}}
	cfg := testConfig(model.ChannelConfig{Name: "Tray", CalibrationOffset: 2, MeasuredOffset: 1})
	cfg.Schedule[0].Setpoint = 20.5
	c := New(cfg, hw, state.NewTracker(cfg.ChannelNames()))

	tick := c.Tick(at(9, 0))

	assert.Equal(t, model.Measured(20), tick.Channels[0].Reading)
	assert.Equal(t, model.HeaterOn, tick.Channels[0].Heater)
}

func TestTick_ChannelsAreIndependent(t *testing.T) {
	hw := newFakeHW(3)
	hw.script[0] = []result{{err: errNoConnection}}
	hw.script[1] = []result{{value: 18}}
	hw.script[2] = []result{{value: 25}}
	cfg := testConfig(
		model.ChannelConfig{Name: "A"},
		model.ChannelConfig{Name: "B"},
		model.ChannelConfig{Name: "C"},
	)
	tracker := state.NewTracker(cfg.ChannelNames())
	c := New(cfg, hw, tracker)

	tick := c.Tick(at(9, 0))

	assert.Equal(t, model.HeaterErrorOff, tick.Channels[0].Heater)
	assert.Equal(t, model.HeaterOn, tick.Channels[1].Heater)
	assert.Equal(t, model.HeaterOff, tick.Channels[2].Heater)
	assert.Equal(t, []bool{false}, hw.relayHistory(0))
	assert.Equal(t, []bool{true}, hw.relayHistory(1))

	s := tracker.Snapshot()
	assert.Equal(t, model.HeaterOff, s.Heater, "aggregate heater follows the last channel")
	assert.Equal(t, 1, s.OnTicks)
	assert.Equal(t, 1, s.OffTicks)
	assert.Equal(t, 18.0, s.Min)
	assert.Equal(t, 25.0, s.Max)
}

func TestTick_UsesSchedule(t *testing.T) {
	hw := newFakeHW(1)
	hw.script[0] = []result{{value: 20}}
	cfg := testConfig(model.ChannelConfig{Name: "Tray"})
	cfg.Schedule = []model.ScheduleEntry{
		{Time: model.TimeOfDay(6 * time.Hour), Setpoint: 18},
		{Time: model.TimeOfDay(20 * time.Hour), Setpoint: 22},
	}
	c := New(cfg, hw, state.NewTracker(cfg.ChannelNames()))

	assert.Equal(t, 18.0, c.Tick(at(7, 0)).Setpoint)
	assert.Equal(t, 22.0, c.Tick(at(21, 0)).Setpoint)
	assert.Equal(t, 18.0, c.Tick(at(3, 0)).Setpoint)
	assert.Equal(t, []bool{false, true, false}, hw.relayHistory(0))
}

func TestTick_AirReadFailureKeepsLastValue(t *testing.T) {
	hw := newFakeHW(1)
	hw.script[0] = []result{{value: 18}}
	hw.air = []result{{value: 15.5}, {err: errNoConnection}}
	cfg := testConfig(model.ChannelConfig{Name: "Tray"})
	tracker := state.NewTracker(cfg.ChannelNames())
	c := New(cfg, hw, tracker)

	c.Tick(at(9, 0))
	c.Tick(at(9, 1))

	assert.Equal(t, model.Measured(15.5), tracker.Snapshot().Air)
}

func TestTick_RelayFailureReportsErrorOff(t *testing.T) {
	hw := newFakeHW(1)
	hw.script[0] = []result{{value: 25}}
	hw.relayErr[0] = errors.New("line busy")
	cfg := testConfig(model.ChannelConfig{Name: "Tray"})
	c := New(cfg, hw, state.NewTracker(cfg.ChannelNames()))

	tick := c.Tick(at(9, 0))
	assert.Equal(t, model.HeaterErrorOff, tick.Channels[0].Heater)
	assert.Equal(t, model.Measured(25), tick.Channels[0].Reading)
}

func TestTick_NotifiesOncePerFault(t *testing.T) {
	hw := newFakeHW(1)
	hw.script[0] = []result{{err: errNoConnection}, {err: errNoConnection}, {value: 18}, {err: errNoConnection}}
	cfg := testConfig(model.ChannelConfig{Name: "Tray"})
	n := &fakeNotifier{}
	c := New(cfg, hw, state.NewTracker(cfg.ChannelNames()), WithNotifier(n))

	for i := 0; i < 4; i++ {
		c.Tick(at(9, i))
	}

	require.Len(t, n.messages, 2)
	assert.Contains(t, n.messages[0], "Tray: No Connection")
}

func TestSafeOff(t *testing.T) {
	hw := newFakeHW(2)
	cfg := testConfig(model.ChannelConfig{Name: "A"}, model.ChannelConfig{Name: "B"})
	c := New(cfg, hw, state.NewTracker(cfg.ChannelNames()))

	require.NoError(t, c.SafeOff())
	assert.Equal(t, []relayCall{{0, false}, {1, false}}, hw.relays)

	hw.relays = nil
	hw.relayErr[0] = errors.New("line busy")
	err := c.SafeOff()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A")
	assert.Equal(t, []bool{false}, hw.relayHistory(1), "remaining channels are still driven off")
}

func TestRun_StopsOnCancel(t *testing.T) {
	hw := newFakeHW(1)
	hw.script[0] = []result{{value: 18}}
	cfg := testConfig(model.ChannelConfig{Name: "Tray"})
	tracker := state.NewTracker(cfg.ChannelNames())
	c := New(cfg, hw, tracker, WithClock(func() time.Time { return at(9, 0) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return tracker.Snapshot().OnTicks >= 3
	}, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	history := hw.relayHistory(0)
	assert.False(t, history[0], "relays are driven off before the first tick")
	assert.False(t, history[len(history)-1], "relays are driven off on exit")
}
