package relay

import (
	"context"
	"time"
)

// NewRelayPair ties the open and close relays of one shutter together:
// a pulse on either waits until the other one is released.
func NewRelayPair(openRelay, closeRelay Relay) (PairedRelay, PairedRelay) {
	slot := make(chan struct{}, 1)

	return PairedRelay{slot: slot, r: openRelay}, PairedRelay{slot: slot, r: closeRelay}
}

type PairedRelay struct {
	slot chan struct{}
	r    Relay
}

// EnableFor gives up with ctx.Err() if ctx ends while the other relay of the
// pair is still enabled.
func (r *PairedRelay) EnableFor(ctx context.Context, duration time.Duration) error {
	select {
	case r.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.slot }()

	return r.r.EnableFor(ctx, duration)
}
