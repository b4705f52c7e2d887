package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultPollInterval = 10 * time.Second

// Actuator moves the shutter. Both calls block for the actuation pulse.
type Actuator interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Update describes what the engine just did. Fired is nil for plain
// recomputations, Next is nil while idle.
type Update struct {
	Fired   *Event
	Trigger Trigger
	Next    *Event
	Err     error
}

type UpdateHandler func(u Update)

type Option func(e *Engine)

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type manualRequest struct {
	action Action
	done   chan error
}

type rescheduleResult struct {
	next *Event
	err  error
}

// Engine owns the cached next event. Its Run goroutine is the only writer of
// that event and the only caller of the actuator.
type Engine struct {
	store    settings.Store
	dawn     DawnProvider
	actuator Actuator

	pollInterval time.Duration
	location     *time.Location
	now          func() time.Time

	notify     chan struct{}
	manual     chan manualRequest
	reschedule chan chan rescheduleResult

	mu       sync.RWMutex
	current  *Event
	handlers []UpdateHandler
}

func NewEngine(store settings.Store, dawn DawnProvider, actuator Actuator, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		dawn:         dawn,
		actuator:     actuator,
		pollInterval: DefaultPollInterval,
		location:     time.Local,
		now:          time.Now,
		notify:       make(chan struct{}, 1),
		manual:       make(chan manualRequest),
		reschedule:   make(chan chan rescheduleResult),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnUpdate registers h. Handlers run on the engine goroutine and must not block.
func (e *Engine) OnUpdate(h UpdateHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers = append(e.handlers, h)
}

// Current returns a copy of the cached next event, nil while idle.
func (e *Engine) Current() *Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.current == nil {
		return nil
	}
	ev := *e.current
	return &ev
}

// Notify asks the engine to recompute. It never blocks; signals sent while
// one is already pending are merged.
func (e *Engine) Notify() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Actuate hands a manual open or close to the engine goroutine and waits for
// the pulse to finish.
func (e *Engine) Actuate(ctx context.Context, action Action) error {
	req := manualRequest{action: action, done: make(chan error, 1)}

	select {
	case e.manual <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reschedule makes the engine recompute against the current settings and
// returns the resulting event. A due event is fired first, as on any wake.
func (e *Engine) Reschedule(ctx context.Context) (*Event, error) {
	done := make(chan rescheduleResult, 1)

	select {
	case e.reschedule <- done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-done:
		return res.next, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the schedule until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	logrus.Infof("scheduler: started, poll interval %s", e.pollInterval)
	e.recompute(ctx, e.clock(), nil, "")

	for {
		timer := time.NewTimer(e.wait(e.clock()))

		select {
		case <-ctx.Done():
			timer.Stop()
			logrus.Info("scheduler: stopped")
			return ctx.Err()
		case <-e.notify:
			timer.Stop()
			logrus.Debug("scheduler: recompute requested")
			e.step(ctx)
		case req := <-e.manual:
			timer.Stop()
			ev := &Event{Action: req.action, At: e.clock()}
			req.done <- e.fire(ctx, ev.Action, TriggerManual)
			e.recompute(ctx, e.clock(), ev, TriggerManual)
		case done := <-e.reschedule:
			timer.Stop()
			err := e.step(ctx)
			done <- rescheduleResult{next: e.Current(), err: err}
		case <-timer.C:
			e.step(ctx)
		}
	}
}

// step fires the cached event when due, then recomputes. A due event is
// always fired before anything else may replace it.
func (e *Engine) step(ctx context.Context) error {
	now := e.clock()
	ev := e.Current()
	if ev == nil || now.Before(ev.At) {
		return e.recompute(ctx, now, nil, "")
	}

	if err := e.fire(ctx, ev.Action, TriggerSchedule); err != nil {
		logrus.Errorf("scheduler: %s failed: %s", ev, err)
	}

	now = e.clock()
	if !now.After(ev.At) {
		now = ev.At.Add(time.Nanosecond)
	}
	return e.recompute(ctx, now, ev, TriggerSchedule)
}

func (e *Engine) fire(ctx context.Context, action Action, trigger Trigger) error {
	logrus.Infof("scheduler: %s (%s)", action, trigger)

	switch action {
	case Open:
		return e.actuator.Open(ctx)
	case Close:
		return e.actuator.Close(ctx)
	default:
		return errors.Errorf("unknown action %q", action)
	}
}

func (e *Engine) recompute(ctx context.Context, now time.Time, fired *Event, trigger Trigger) error {
	next, err := e.compute(ctx, now)
	if err != nil {
		logrus.Errorf("scheduler: no event determined: %s", err)
	}

	e.mu.Lock()
	prev := e.current
	e.current = next
	handlers := e.handlers
	e.mu.Unlock()

	if fired == nil && err == nil && sameEvent(prev, next) {
		return nil
	}

	if next != nil {
		logrus.Infof("scheduler: next event %s", next)
	} else if err == nil {
		logrus.Info("scheduler: idle, nothing scheduled")
	}

	u := Update{Fired: fired, Trigger: trigger, Next: next, Err: err}
	for _, h := range handlers {
		h(u)
	}

	return err
}

func (e *Engine) compute(ctx context.Context, now time.Time) (*Event, error) {
	s, err := e.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}

	return Next(s, now, e.dawn)
}

func (e *Engine) wait(now time.Time) time.Duration {
	d := e.pollInterval
	if ev := e.Current(); ev != nil {
		if until := ev.At.Sub(now); until < d {
			d = until
		}
	}
	if d < 0 {
		return 0
	}
	return d
}

func (e *Engine) clock() time.Time {
	return e.now().In(e.location)
}

func sameEvent(a, b *Event) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Action == b.Action && a.At.Equal(b.At)
}
