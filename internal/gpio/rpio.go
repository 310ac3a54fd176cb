package gpio

import (
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPIOBackend uses /dev/gpiomem register access.
type RPIOBackend struct{}

func (RPIOBackend) Open() error {
	if err := rpio.Open(); err != nil {
		return errors.Wrap(err, "failed to open rpio")
	}
	return nil
}

func (RPIOBackend) Close() error {
	return rpio.Close()
}

func (RPIOBackend) Write(pin int, high bool) error {
	if pin < 0 || pin > 255 {
		return errors.Errorf("pin %d out of range (rpio takes uint8 pin)", pin)
	}
	p := rpio.Pin(pin)
	p.Output()
	if high {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (RPIOBackend) Read(pin int) (bool, error) {
	if pin < 0 || pin > 255 {
		return false, errors.Errorf("pin %d out of range (rpio takes uint8 pin)", pin)
	}
	p := rpio.Pin(pin)
	p.Input()
	return p.Read() == rpio.High, nil
}

func (RPIOBackend) Release(pin int) error {
	if pin < 0 || pin > 255 {
		return errors.Errorf("pin %d out of range (rpio takes uint8 pin)", pin)
	}
	rpio.Pin(pin).Input()
	return nil
}
