//go:build !linux

package relay

import "github.com/pkg/errors"

// GpiocdevPin is not available on non-Linux platforms.
type GpiocdevPin struct{}

// GpiocdevChip stands in for the Linux chip handle.
type GpiocdevChip struct{}

func (c *GpiocdevChip) Close() error {
	return nil
}

func NewGpiocdevPin(_ *GpiocdevChip, offset int, _ bool) (*GpiocdevPin, error) {
	return nil, errors.Errorf("gpiocdev: line %d: not supported on this platform (requires Linux)", offset)
}

func (g *GpiocdevPin) High() error {
	return errors.New("gpiocdev: not supported")
}

func (g *GpiocdevPin) Low() error {
	return errors.New("gpiocdev: not supported")
}

func (g *GpiocdevPin) Close() error {
	return nil
}

func OpenGpiocdevChip(name string) (*GpiocdevChip, error) {
	return nil, errors.Errorf("gpiocdev: chip %s: not supported on this platform (requires Linux)", name)
}
