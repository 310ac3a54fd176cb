// Package thermocouple reads MAX31855 thermocouple converters over a
// bit-banged clock/data pair with one chip-select per converter.
package thermocouple

import (
	"github.com/pkg/errors"

	"github.com/thatsimonsguy/propagator/internal/gpio"
)

var (
	ErrNoConnection  = errors.New("No Connection")
	ErrShortToGround = errors.New("Thermocouple short to ground")
	ErrShortToVCC    = errors.New("Thermocouple short to VCC")
	ErrUnknownFault  = errors.New("Unknown Error")
	ErrNoResponse    = errors.New("No response from converter")
	ErrDataStuckLow  = errors.New("No data from converter")
)

// Frame is one 32-bit conversion result as shifted out by the chip.
type Frame uint32

const (
	faultBit   = 1 << 16
	openBit    = 1 << 0
	shortGND   = 1 << 1
	shortVCC   = 1 << 2
	noResponse = Frame(0xFFFFFFFF)
	stuckLow   = Frame(0)
)

// busErr reports frames no working converter can produce: a data line held
// high or low for all 32 bits.
func (f Frame) busErr() error {
	switch f {
	case noResponse:
		return ErrNoResponse
	case stuckLow:
		return ErrDataStuckLow
	}
	return nil
}

// Err reports the fault encoded in the frame, or nil.
func (f Frame) Err() error {
	if err := f.busErr(); err != nil {
		return err
	}
	if f&faultBit == 0 {
		return nil
	}
	switch {
	case f&openBit != 0:
		return ErrNoConnection
	case f&shortGND != 0:
		return ErrShortToGround
	case f&shortVCC != 0:
		return ErrShortToVCC
	default:
		return ErrUnknownFault
	}
}

// Thermocouple returns the hot junction temperature in °C.
func (f Frame) Thermocouple() (float64, error) {
	if err := f.Err(); err != nil {
		return 0, err
	}
	raw := int32(f>>18) & 0x3FFF
	if raw&0x2000 != 0 {
		raw -= 0x4000
	}
	return float64(raw) * 0.25, nil
}

// Reference returns the cold junction (chip die) temperature in °C. It is
// valid even when the thermocouple itself is faulted.
func (f Frame) Reference() (float64, error) {
	if err := f.busErr(); err != nil {
		return 0, err
	}
	raw := int32(f>>4) & 0xFFF
	if raw&0x800 != 0 {
		raw -= 0x1000
	}
	return float64(raw) * 0.0625, nil
}

// Wiring names the pins of one converter.
type Wiring struct {
	ChipSelect int
	Clock      int
	Data       int
}

// ReadFrame clocks one frame out of the converter. The pins are released
// before returning whether or not the read succeeded.
func ReadFrame(p gpio.Pins, w Wiring) (frame Frame, err error) {
	defer func() {
		for _, pin := range []int{w.ChipSelect, w.Clock, w.Data} {
			if rerr := p.Release(pin); rerr != nil && err == nil {
				err = errors.Wrapf(rerr, "release pin %d", pin)
			}
		}
	}()

	if err := p.Write(w.ChipSelect, true); err != nil {
		return 0, errors.Wrap(err, "idle chip select")
	}
	if err := p.Write(w.Clock, false); err != nil {
		return 0, errors.Wrap(err, "idle clock")
	}
	if err := p.Write(w.ChipSelect, false); err != nil {
		return 0, errors.Wrap(err, "select converter")
	}

	var value uint32
	for i := 0; i < 32; i++ {
		if err := p.Write(w.Clock, false); err != nil {
			return 0, errors.Wrapf(err, "clock low (bit %d)", i)
		}
		high, err := p.Read(w.Data)
		if err != nil {
			return 0, errors.Wrapf(err, "read data (bit %d)", i)
		}
		value <<= 1
		if high {
			value |= 1
		}
		if err := p.Write(w.Clock, true); err != nil {
			return 0, errors.Wrapf(err, "clock high (bit %d)", i)
		}
	}

	if err := p.Write(w.ChipSelect, true); err != nil {
		return 0, errors.Wrap(err, "deselect converter")
	}
	return Frame(value), nil
}
