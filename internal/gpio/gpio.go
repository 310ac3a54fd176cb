// Package gpio drives relay outputs and exposes raw pin access for the
// thermocouple bus. Pin numbers are BCM numbers.
package gpio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/pinctrl"
)

// Pins is raw pin access. Write and Read reconfigure the pin direction as needed.
type Pins interface {
	Write(pin int, high bool) error
	Read(pin int) (bool, error)
	Release(pin int) error
}

// Backend is a GPIO implementation for a particular kernel interface.
type Backend interface {
	Pins
	Open() error
	Close() error
}

// Bus serialises access to a backend. Safe mode suppresses relay writes only;
// sensor reads keep working.
type Bus struct {
	mu       sync.Mutex
	backend  Backend
	safeMode bool
	relays   map[int]model.GPIOPin
}

func NewBus(backend Backend) *Bus {
	return &Bus{
		backend: backend,
		relays:  map[int]model.GPIOPin{},
	}
}

func (b *Bus) Open() error {
	return b.backend.Open()
}

func (b *Bus) SetSafeMode(enabled bool) {
	b.mu.Lock()
	b.safeMode = enabled
	b.mu.Unlock()
}

func (b *Bus) SafeMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.safeMode
}

func (b *Bus) Activate(pin model.GPIOPin) error {
	return b.drive(pin, true)
}

func (b *Bus) Deactivate(pin model.GPIOPin) error {
	return b.drive(pin, false)
}

func (b *Bus) drive(pin model.GPIOPin, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.safeMode {
		return nil
	}

	b.relays[pin.Number] = pin
	if err := b.backend.Write(pin.Number, pin.ActiveHigh == active); err != nil {
		return errors.Wrapf(err, "failed to drive relay pin %d (active=%v)", pin.Number, active)
	}
	return nil
}

// Exclusive runs fn with sole use of the pins until it returns.
func (b *Bus) Exclusive(fn func(p Pins) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.backend)
}

// Close deactivates every relay that has been driven and closes the backend.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if !b.safeMode {
		for _, pin := range b.relays {
			if err := b.backend.Write(pin.Number, !pin.ActiveHigh); err != nil {
				errs = append(errs, errors.Wrapf(err, "relay pin %d", pin.Number))
			}
		}
	}
	if err := b.backend.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close backend"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

var (
	readAllPins = pinctrl.ReadAllPins
	readLevel   = pinctrl.ReadLevel
)

// ValidateStartupPins checks via pinctrl that every relay pin is an output
// sitting at its inactive level, then confirms the level with `pinctrl lev`.
func ValidateStartupPins(relays []model.GPIOPin) error {
	states, err := readAllPins()
	if err != nil {
		return err
	}

	sorted := append([]model.GPIOPin(nil), relays...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	for _, pin := range sorted {
		st, ok := states[pin.Number]
		if !ok {
			return fmt.Errorf("pin %d not found in pinctrl output", pin.Number)
		}
		if st.Mode != "op" {
			return fmt.Errorf("relay pin %d is not configured as an output (mode %q)", pin.Number, st.Mode)
		}
		inactive := "lo"
		if !pin.ActiveHigh {
			inactive = "hi"
		}
		if st.Level != inactive {
			return fmt.Errorf("relay pin %d is in wrong state at startup (level %q, expected %q)", pin.Number, st.Level, inactive)
		}

		level, err := readLevel(pin.Number)
		if err != nil {
			return fmt.Errorf("failed to read level of relay pin %d: %w", pin.Number, err)
		}
		if level == pin.ActiveHigh {
			return fmt.Errorf("relay pin %d is in wrong state at startup (reads active)", pin.Number)
		}
		log.Debug().Int("pin", pin.Number).Str("level", st.Level).Msg("Relay pin verified inactive")
	}
	return nil
}
