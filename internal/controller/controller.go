// Package controller runs the heater control loop: resolve the scheduled
// setpoint, read every channel, drive its relay and publish the result.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/datadog"
	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/schedule"
	"github.com/thatsimonsguy/propagator/internal/state"
)

// SensorActuator is the heater hardware, addressed by zero-based channel.
type SensorActuator interface {
	Read(ch int) (float64, error)
	ReferenceRead(ch int) (float64, error)
	SetRelay(ch int, on bool) error
	Channels() int
}

type Notifier interface {
	Send(title, message string) error
}

type Option func(*Controller)

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type Controller struct {
	hw       SensorActuator
	tracker  *state.Tracker
	channels []model.ChannelConfig
	schedule []model.ScheduleEntry
	interval time.Duration
	notifier Notifier
	now      func() time.Time
	faulted  []bool
}

func New(cfg *config.Config, hw SensorActuator, tracker *state.Tracker, opts ...Option) *Controller {
	c := &Controller{
		hw:       hw,
		tracker:  tracker,
		channels: cfg.Channels,
		schedule: cfg.Schedule,
		interval: cfg.ControlInterval,
		now:      time.Now,
		faulted:  make([]bool, len(cfg.Channels)),
	}
	if c.interval <= 0 {
		c.interval = config.DefaultControlInterval
	}
	for _, opt := range opts {
		opt(c)
	}
	if n := hw.Channels(); n != len(c.channels) {
		log.Warn().Int("hardware", n).Int("configured", len(c.channels)).Msg("Channel count mismatch")
	}
	return c
}

// SafeOff drives every relay off. All channels are attempted even if one fails.
func (c *Controller) SafeOff() error {
	var failed []string
	for i, ch := range c.channels {
		if err := c.hw.SetRelay(i, false); err != nil {
			log.Error().Err(err).Str("channel", ch.Name).Msg("Failed to drive relay off")
			failed = append(failed, ch.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not drive relays off: %v", failed)
	}
	return nil
}

// Run ticks until ctx is cancelled, then drives every relay off.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.SafeOff(); err != nil {
		return err
	}

	log.Info().
		Dur("interval", c.interval).
		Int("channels", len(c.channels)).
		Msg("Starting heater controller")

	for {
		c.Tick(c.now())

		select {
		case <-ctx.Done():
			if err := c.SafeOff(); err != nil {
				log.Error().Err(err).Msg("Relays may still be energised")
			}
			log.Info().Msg("Heater controller stopped")
			return nil
		case <-time.After(c.interval):
		}
	}
}

// Tick runs one control cycle and commits its outcome to the tracker.
func (c *Controller) Tick(now time.Time) state.Tick {
	setpoint := schedule.Resolve(c.schedule, now)
	tick := state.Tick{
		Time:     now,
		Setpoint: setpoint,
		Channels: make([]model.ChannelReading, len(c.channels)),
	}

	for i, ch := range c.channels {
		if i == 0 {
			tick.Air = c.readAir()
		}

		reading := c.read(i)
		on := evaluateRelay(reading, setpoint)
		heater := model.HeaterOff
		switch {
		case reading.IsFault():
			heater = model.HeaterErrorOff
		case on:
			heater = model.HeaterOn
		}

		if err := c.hw.SetRelay(i, on); err != nil {
			log.Error().Err(err).Str("channel", ch.Name).Bool("on", on).Msg("Failed to drive relay")
			heater = model.HeaterErrorOff
			if on {
				if err := c.hw.SetRelay(i, false); err != nil {
					log.Error().Err(err).Str("channel", ch.Name).Msg("Failed to drive relay off")
				}
			}
		}

		c.trackFault(i, reading)
		tick.Channels[i] = model.ChannelReading{Name: ch.Name, Reading: reading, Heater: heater}

		log.Debug().
			Str("channel", ch.Name).
			Str("temperature", reading.String()).
			Float64("setpoint", setpoint).
			Str("heater", string(heater)).
			Msg("Channel measured")

		if reading.OK() {
			datadog.Gauge("channel.temperature", reading.Temperature, "channel:"+ch.Name)
		}
		datadog.Gauge("heater.active", boolGauge(heater == model.HeaterOn), "channel:"+ch.Name)
	}

	c.tracker.Commit(tick)
	datadog.Gauge("setpoint", setpoint)
	return tick
}

func (c *Controller) read(i int) model.Reading {
	raw, err := c.hw.Read(i)
	if err != nil {
		return model.Faulted(faultReason(err))
	}
	return model.Measured(c.channels[i].Calibrate(raw))
}

func (c *Controller) readAir() model.Reading {
	air, err := c.hw.ReferenceRead(0)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read air temperature; keeping last value")
		return model.Faulted(faultReason(err))
	}
	datadog.Gauge("air.temperature", air)
	return model.Measured(air)
}

func (c *Controller) trackFault(i int, reading model.Reading) {
	name := c.channels[i].Name
	switch {
	case reading.IsFault() && !c.faulted[i]:
		c.faulted[i] = true
		log.Warn().Str("channel", name).Str("fault", reading.Fault).Msg("Sensor fault; relay forced off")
		if c.notifier != nil {
			msg := fmt.Sprintf("%s: %s. Heater relay forced off.", name, reading.Fault)
			if err := c.notifier.Send("Propagator sensor fault", msg); err != nil {
				log.Warn().Err(err).Msg("Failed to send fault notification")
			}
		}
	case reading.OK() && c.faulted[i]:
		c.faulted[i] = false
		log.Info().Str("channel", name).Float64("temperature", reading.Temperature).Msg("Sensor recovered")
	}
}

// evaluateRelay is the relay rule: on only for a good reading below setpoint.
func evaluateRelay(reading model.Reading, setpoint float64) bool {
	return reading.OK() && reading.Temperature < setpoint
}

// faultReason is the root cause of a read error, which is what the views show.
func faultReason(err error) string {
	return errors.Cause(err).Error()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
