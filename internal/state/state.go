// Package state holds the control state shared between the control loop,
// the data logger and the web views.
package state

import (
	"sync"
	"time"

	"github.com/thatsimonsguy/propagator/internal/model"
)

// Snapshot is a consistent copy of the shared control state.
type Snapshot struct {
	Setpoint     float64
	Air          model.Reading
	Heater       model.HeaterState
	Channels     []model.ChannelReading
	OnTicks      int
	OffTicks     int
	Min          float64
	Max          float64
	BoundsSeeded bool
	UpdatedAt    time.Time
}

// Tick is everything one control cycle produced. Air is only applied when it
// holds a measurement.
type Tick struct {
	Time     time.Time
	Setpoint float64
	Air      model.Reading
	Channels []model.ChannelReading
}

// Tracker guards the shared state. The control loop calls Commit, the logger
// calls Flush and ResetInterval, and everything else reads Snapshot.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewTracker(names []string) *Tracker {
	channels := make([]model.ChannelReading, len(names))
	for i, name := range names {
		channels[i] = model.ChannelReading{Name: name, Heater: model.HeaterOff}
	}
	return &Tracker{snap: Snapshot{
		Heater:   model.HeaterOff,
		Channels: channels,
	}}
}

// Commit applies a control tick: readings are replaced, bounds widened and
// duty counters advanced under one lock.
func (t *Tracker) Commit(tick Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.snap
	s.Setpoint = tick.Setpoint
	s.UpdatedAt = tick.Time
	if tick.Air.OK() {
		s.Air = tick.Air
	}

	s.Channels = append(s.Channels[:0:0], tick.Channels...)
	for _, ch := range tick.Channels {
		if ch.Reading.OK() {
			s.widen(ch.Reading.Temperature)
		}
		switch ch.Heater {
		case model.HeaterOn:
			s.OnTicks++
		case model.HeaterOff:
			s.OffTicks++
		}
		s.Heater = ch.Heater
	}
}

func (s *Snapshot) widen(v float64) {
	if !s.BoundsSeeded {
		s.Min, s.Max, s.BoundsSeeded = v, v, true
		return
	}
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
}

// reseed restarts the interval: counters to zero and bounds from the first
// channel's latest measurement, if it has one.
func (s *Snapshot) reseed() {
	s.OnTicks, s.OffTicks = 0, 0
	s.Min, s.Max, s.BoundsSeeded = 0, 0, false
	if len(s.Channels) > 0 && s.Channels[0].Reading.OK() {
		s.widen(s.Channels[0].Reading.Temperature)
	}
}

// Flush returns the state as of now and restarts the interval.
func (t *Tracker) Flush() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.snap.clone()
	t.snap.reseed()
	return out
}

// ResetInterval restarts the interval without reading it.
func (t *Tracker) ResetInterval() {
	t.mu.Lock()
	t.snap.reseed()
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.clone()
}

func (s Snapshot) clone() Snapshot {
	s.Channels = append([]model.ChannelReading(nil), s.Channels...)
	return s
}
