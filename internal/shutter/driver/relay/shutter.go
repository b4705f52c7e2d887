package relay

import (
	"context"
	"sync"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PulseShutter actuates a shutter by enabling its open or close relay for a
// short pulse. It remembers the last actuated state and skips actuations that
// would not change it.
type PulseShutter struct {
	rOpen  Relay
	rClose Relay

	name  string
	pulse time.Duration

	// actuating serializes pulses, mu guards the fields below it.
	actuating sync.Mutex

	mu             sync.Mutex
	currentState   shutter.State
	updateHandlers []shutter.ShutterUpdateHandler
}

func NewPulseShutter(name string, open Relay, close Relay, pulse time.Duration) *PulseShutter {
	return &PulseShutter{
		rOpen:        open,
		rClose:       close,
		name:         name,
		pulse:        pulse,
		currentState: shutter.ShutterUnknownState,
	}
}

func (s *PulseShutter) Name() string {
	return s.name
}

func (s *PulseShutter) State() shutter.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentState
}

func (s *PulseShutter) OnUpdate(h shutter.ShutterUpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateHandlers = append(s.updateHandlers, h)
}

func (s *PulseShutter) ResetState(state shutter.State) error {
	if _, err := shutter.ParseState(string(state)); err != nil {
		return errors.Wrap(err, s.name)
	}

	s.mu.Lock()
	s.currentState = state
	s.mu.Unlock()

	logrus.Infof("%s: state reset to %s", s.name, state)
	return nil
}

func (s *PulseShutter) Open(ctx context.Context) error {
	return s.actuate(ctx, shutter.ShutterOpenState, s.rOpen)
}

func (s *PulseShutter) Close(ctx context.Context) error {
	return s.actuate(ctx, shutter.ShutterClosedState, s.rClose)
}

func (s *PulseShutter) actuate(ctx context.Context, target shutter.State, relay Relay) error {
	s.actuating.Lock()
	defer s.actuating.Unlock()

	if s.State() == target {
		logrus.Debugf("%s: already %s", s.name, target)
		return nil
	}

	logrus.Infof("%s: %s pulse for %s", s.name, target, s.pulse.String())
	if err := relay.EnableFor(ctx, s.pulse); err != nil {
		return errors.Wrapf(err, "%s: %s pulse failed", s.name, target)
	}

	s.mu.Lock()
	s.currentState = target
	handlers := append([]shutter.ShutterUpdateHandler(nil), s.updateHandlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(target)
	}

	logrus.Infof("%s: updated state %s", s.name, target)
	return nil
}
