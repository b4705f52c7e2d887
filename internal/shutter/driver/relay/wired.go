package relay

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
)

type SetPin interface {
	High() error
	Low() error
}

type Mcp23017Pin struct {
	device *mcp23017.Device
	pin    uint8
}

func NewMcp23017Pin(device *mcp23017.Device, pin uint8) (p *Mcp23017Pin, err error) {
	p = &Mcp23017Pin{device: device, pin: pin}
	if err = p.device.PinMode(pin, mcp23017.OUTPUT); err != nil {
		return nil, errors.Wrapf(err, "mcp23017: pin %d mode", pin)
	}
	return p, nil
}

func (m *Mcp23017Pin) High() error {
	return m.device.DigitalWrite(m.pin, mcp23017.HIGH)
}

func (m *Mcp23017Pin) Low() error {
	return m.device.DigitalWrite(m.pin, mcp23017.LOW)
}

// Wired drives a relay through an output pin. Unless NormalClosed is set the
// relay board is active low: the pin idles high and is pulled low to enable.
type Wired struct {
	Pin          SetPin
	NormalClosed bool
}

// Idle puts the pin to its inactive level.
func (p *Wired) Idle() error {
	return p.disable()
}

func (p *Wired) EnableFor(ctx context.Context, duration time.Duration) error {
	if err := p.enable(); err != nil {
		return errors.Wrap(err, "wired relay enable")
	}
	defer func() {
		if err := p.disable(); err != nil {
			logrus.Errorf("wired relay disable: %s", err)
		}
	}()

	t := time.NewTimer(duration)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		logrus.Debug("wired relay context exit")
		return nil
	}
}

func (p *Wired) enable() error {
	if !p.NormalClosed {
		return p.Pin.Low()
	}

	return p.Pin.High()
}

func (p *Wired) disable() error {
	if !p.NormalClosed {
		return p.Pin.High()
	}

	return p.Pin.Low()
}
