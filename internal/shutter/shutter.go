package shutter

import (
	"context"

	"github.com/pkg/errors"
)

type State string

const (
	ShutterOpenState    State = "open"
	ShutterClosedState  State = "closed"
	ShutterUnknownState State = "unknown"
)

func ParseState(value string) (State, error) {
	switch s := State(value); s {
	case ShutterOpenState, ShutterClosedState, ShutterUnknownState:
		return s, nil
	}
	return ShutterUnknownState, errors.Errorf("%q is not a shutter state", value)
}

type ShutterUpdateHandler func(state State)

// Shutter is driven by two momentary inputs, one per direction. Open and
// Close block for the actuation pulse and do nothing when the shutter is
// already known to be in the requested state.
type Shutter interface {
	Name() string
	State() State

	// OnUpdate registers h to be called after every state change.
	OnUpdate(h ShutterUpdateHandler)

	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// StatelessShutter cannot sense its position, its state can be restored from
// an external record.
type StatelessShutter interface {
	Shutter

	ResetState(state State) error
}
