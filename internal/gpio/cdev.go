//go:build linux

package gpio

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// CdevBackend uses the Linux GPIO character device.
type CdevBackend struct {
	chipName string
	chip     *gpiocdev.Chip
	lines    map[int]*gpiocdev.Line
	outputs  map[int]bool
}

func NewCdevBackend(chipName string) *CdevBackend {
	return &CdevBackend{
		chipName: chipName,
		lines:    map[int]*gpiocdev.Line{},
		outputs:  map[int]bool{},
	}
}

func (c *CdevBackend) Open() error {
	chip, err := gpiocdev.NewChip(c.chipName)
	if err != nil {
		return errors.Wrapf(err, "open gpio chip %s", c.chipName)
	}
	c.chip = chip
	return nil
}

func (c *CdevBackend) Write(pin int, high bool) error {
	if c.chip == nil {
		return errors.New("gpio chip not open")
	}
	value := 0
	if high {
		value = 1
	}

	line, ok := c.lines[pin]
	switch {
	case !ok:
		l, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(value))
		if err != nil {
			return errors.Wrapf(err, "request pin %d as output", pin)
		}
		c.lines[pin] = l
		c.outputs[pin] = true
		return nil
	case !c.outputs[pin]:
		if err := line.Reconfigure(gpiocdev.AsOutput(value)); err != nil {
			return errors.Wrapf(err, "reconfigure pin %d as output", pin)
		}
		c.outputs[pin] = true
		return nil
	default:
		return errors.Wrapf(line.SetValue(value), "set pin %d", pin)
	}
}

func (c *CdevBackend) Read(pin int) (bool, error) {
	if c.chip == nil {
		return false, errors.New("gpio chip not open")
	}

	line, ok := c.lines[pin]
	if !ok {
		l, err := c.chip.RequestLine(pin, gpiocdev.AsInput)
		if err != nil {
			return false, errors.Wrapf(err, "request pin %d as input", pin)
		}
		c.lines[pin] = l
		line = l
	} else if c.outputs[pin] {
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			return false, errors.Wrapf(err, "reconfigure pin %d as input", pin)
		}
	}
	c.outputs[pin] = false

	v, err := line.Value()
	if err != nil {
		return false, errors.Wrapf(err, "read pin %d", pin)
	}
	return v == 1, nil
}

// Release hands the line back to the kernel.
func (c *CdevBackend) Release(pin int) error {
	line, ok := c.lines[pin]
	if !ok {
		return nil
	}
	delete(c.lines, pin)
	delete(c.outputs, pin)
	return errors.Wrapf(line.Close(), "release pin %d", pin)
}

func (c *CdevBackend) Close() error {
	var errs []error
	for pin, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	c.lines = map[int]*gpiocdev.Line{}
	c.outputs = map[int]bool{}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
