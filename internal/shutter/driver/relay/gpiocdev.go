//go:build linux

package relay

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// GpiocdevChip is an opened GPIO character device.
type GpiocdevChip = gpiocdev.Chip

// GpiocdevPin is an output line of a Linux GPIO character device, e.g. a
// Raspberry Pi header pin.
type GpiocdevPin struct {
	line *gpiocdev.Line
}

// NewGpiocdevPin requests offset on chip as an output starting at the given level.
func NewGpiocdevPin(chip *GpiocdevChip, offset int, high bool) (*GpiocdevPin, error) {
	initial := 0
	if high {
		initial = 1
	}

	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer("shuttercontrol"))
	if err != nil {
		return nil, errors.Wrapf(err, "gpiocdev: request line %d", offset)
	}

	return &GpiocdevPin{line: line}, nil
}

func (g *GpiocdevPin) High() error {
	return g.line.SetValue(1)
}

func (g *GpiocdevPin) Low() error {
	return g.line.SetValue(0)
}

func (g *GpiocdevPin) Close() error {
	return g.line.Close()
}

func OpenGpiocdevChip(name string) (*GpiocdevChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, errors.Wrapf(err, "gpiocdev: open chip %s", name)
	}
	return chip, nil
}
