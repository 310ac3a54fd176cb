package device

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/gpio"
	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/thermocouple"
)

// Board is the set of heater channels: one thermocouple converter and one
// relay each, sharing a clock and data line. Not safe for concurrent use.
type Board struct {
	bus      *gpio.Bus
	clock    int
	data     int
	units    model.Units
	channels []model.ChannelConfig
	relays   []model.GPIOPin
	relayOn  map[int]bool
}

func NewBoard(bus *gpio.Bus, cfg *config.Config) *Board {
	b := &Board{
		bus:      bus,
		clock:    cfg.Hardware.ClockPin,
		data:     cfg.Hardware.DataPin,
		units:    cfg.Units,
		channels: cfg.Channels,
		relayOn:  map[int]bool{},
	}
	for i := range cfg.Channels {
		b.relays = append(b.relays, cfg.RelayPin(i))
	}
	return b
}

func (b *Board) Channels() int {
	return len(b.channels)
}

// Read returns the uncalibrated thermocouple temperature of channel ch in
// display units.
func (b *Board) Read(ch int) (float64, error) {
	frame, err := b.frame(ch)
	if err != nil {
		return 0, err
	}
	c, err := frame.Thermocouple()
	if err != nil {
		return 0, err
	}
	return b.convert(c), nil
}

// ReferenceRead returns the converter's cold junction temperature, which is
// the air temperature around the board.
func (b *Board) ReferenceRead(ch int) (float64, error) {
	frame, err := b.frame(ch)
	if err != nil {
		return 0, err
	}
	c, err := frame.Reference()
	if err != nil {
		return 0, err
	}
	return b.convert(c), nil
}

func (b *Board) SetRelay(ch int, on bool) error {
	if ch < 0 || ch >= len(b.relays) {
		return errors.Errorf("no relay for channel %d", ch)
	}
	pin := b.relays[ch]
	name := b.channels[ch].Name

	var err error
	if on {
		err = b.bus.Activate(pin)
	} else {
		err = b.bus.Deactivate(pin)
	}
	if err != nil {
		delete(b.relayOn, ch)
		return err
	}

	if prev, known := b.relayOn[ch]; !known || prev != on {
		if b.bus.SafeMode() {
			log.Debug().Str("channel", name).Int("pin", pin.Number).Bool("on", on).Bool("safe_mode", true).
				Msg("Heater relay change not driven")
		} else if on {
			log.Info().Str("channel", name).Int("pin", pin.Number).Msg("Activating heater relay")
		} else {
			log.Info().Str("channel", name).Int("pin", pin.Number).Msg("Deactivating heater relay")
		}
	}
	b.relayOn[ch] = on
	return nil
}

func (b *Board) frame(ch int) (thermocouple.Frame, error) {
	if ch < 0 || ch >= len(b.channels) {
		return 0, errors.Errorf("no sensor for channel %d", ch)
	}
	w := thermocouple.Wiring{
		ChipSelect: b.channels[ch].CSPin,
		Clock:      b.clock,
		Data:       b.data,
	}

	var frame thermocouple.Frame
	err := b.bus.Exclusive(func(p gpio.Pins) error {
		var err error
		frame, err = thermocouple.ReadFrame(p, w)
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "read sensor %q", b.channels[ch].Name)
	}
	return frame, nil
}

func (b *Board) convert(celsius float64) float64 {
	if b.units == model.Fahrenheit {
		return celsius*9/5 + 32
	}
	return celsius
}
