package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakeActuator struct {
	mu    sync.Mutex
	calls []Action
}

func (a *fakeActuator) Open(context.Context) error {
	a.record(Open)
	return nil
}

func (a *fakeActuator) Close(context.Context) error {
	a.record(Close)
	return nil
}

func (a *fakeActuator) record(action Action) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, action)
}

func (a *fakeActuator) Calls() []Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Action(nil), a.calls...)
}

type engineFixture struct {
	engine   *Engine
	clock    *fakeClock
	actuator *fakeActuator
	store    *settings.MemoryStore
}

func startEngine(t *testing.T, s settings.Settings, now time.Time, dawn DawnProvider) *engineFixture {
	t.Helper()

	f := &engineFixture{
		clock:    &fakeClock{t: now},
		actuator: &fakeActuator{},
		store:    settings.NewMemoryStore(s),
	}
	f.engine = NewEngine(f.store, dawn, f.actuator,
		WithPollInterval(5*time.Millisecond),
		WithLocation(berlin),
		WithClock(f.clock.Now),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return f
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, time.Second, time.Millisecond, msg)
}

func TestEngineFiresDueEvent(t *testing.T) {
	f := startEngine(t, settings.Default(), at(10, 5, 0), regularDawn)

	eventually(t, func() bool {
		ev := f.engine.Current()
		return ev != nil && ev.At.Equal(at(10, 6, 10))
	}, "close at today's dawn expected")
	assert.Empty(t, f.actuator.Calls())

	f.clock.Set(at(10, 6, 10))

	eventually(t, func() bool {
		return len(f.actuator.Calls()) == 1
	}, "close expected to fire")
	assert.Equal(t, []Action{Close}, f.actuator.Calls())

	eventually(t, func() bool {
		ev := f.engine.Current()
		return ev != nil && ev.Action == Close && ev.At.Equal(at(11, 6, 9))
	}, "next close expected tomorrow")

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.actuator.Calls(), 1, "fired event must not fire twice")
}

func TestEngineNotifyRecomputes(t *testing.T) {
	s := settings.Settings{Depression: settings.Nautical}
	f := startEngine(t, s, at(10, 5, 0), regularDawn)

	time.Sleep(10 * time.Millisecond)
	assert.Nil(t, f.engine.Current())

	_, err := f.store.Save(context.Background(), settings.SetOpenAt(settings.NewTimeOfDay(7, 0, 0)))
	require.NoError(t, err)
	f.engine.Notify()
	f.engine.Notify()

	eventually(t, func() bool {
		ev := f.engine.Current()
		return ev != nil && ev.Action == Open && ev.At.Equal(at(10, 7, 0))
	}, "open expected after settings change")
}

func TestEngineRescheduleReturnsFreshEvent(t *testing.T) {
	s := settings.Settings{Depression: settings.Nautical}
	f := startEngine(t, s, at(10, 5, 0), regularDawn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := f.engine.Reschedule(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev)

	_, err = f.store.Save(ctx, settings.SetOpenAt(settings.NewTimeOfDay(5, 30, 0)))
	require.NoError(t, err)

	ev, err = f.engine.Reschedule(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, Open, ev.Action)
	assert.True(t, ev.At.Equal(at(10, 5, 30)))
	assert.Equal(t, ev, f.engine.Current())
}

func TestEngineRescheduleReportsDawnFailure(t *testing.T) {
	dawn := DawnFunc(func(time.Time, float64) (time.Time, error) {
		return time.Time{}, errors.New("no location data")
	})
	f := startEngine(t, settings.Default(), at(10, 5, 0), dawn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := f.engine.Reschedule(ctx)
	assert.Error(t, err)
	assert.Nil(t, ev)
}

func TestEngineRescheduleHonoursContext(t *testing.T) {
	e := NewEngine(settings.NewMemoryStore(settings.Default()), regularDawn, &fakeActuator{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := e.Reschedule(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestEngineFiresDueEventBeforeRecompute(t *testing.T) {
	f := startEngine(t, settings.Default(), at(10, 5, 0), regularDawn)

	eventually(t, func() bool { return f.engine.Current() != nil }, "event expected")

	f.clock.Set(at(10, 6, 11))
	f.engine.Notify()

	eventually(t, func() bool {
		return len(f.actuator.Calls()) == 1
	}, "due close expected to fire despite recompute request")
}

func TestEngineManualActuation(t *testing.T) {
	f := startEngine(t, settings.Default(), at(10, 5, 0), regularDawn)
	eventually(t, func() bool { return f.engine.Current() != nil }, "event expected")

	var updates []Update
	var mu sync.Mutex
	f.engine.OnUpdate(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, f.engine.Actuate(ctx, Open))
	require.NoError(t, f.engine.Actuate(ctx, Close))
	assert.Equal(t, []Action{Open, Close}, f.actuator.Calls())

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) >= 2
	}, "manual actuation updates expected")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, TriggerManual, updates[0].Trigger)
	require.NotNil(t, updates[0].Fired)
	assert.Equal(t, Open, updates[0].Fired.Action)
	require.NotNil(t, updates[0].Next)
	assert.True(t, updates[0].Next.At.Equal(at(10, 6, 10)))
}

func TestEngineActuateHonoursContext(t *testing.T) {
	e := NewEngine(settings.NewMemoryStore(settings.Default()), regularDawn, &fakeActuator{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	assert.Equal(t, context.DeadlineExceeded, e.Actuate(ctx, Open))
}

func TestEngineRetriesAfterDawnFailure(t *testing.T) {
	var mu sync.Mutex
	failing := true
	dawn := DawnFunc(func(date time.Time, depression float64) (time.Time, error) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return time.Time{}, errors.New("no location data")
		}
		return regularDawn(date, depression)
	})

	f := startEngine(t, settings.Default(), at(10, 5, 0), dawn)

	time.Sleep(10 * time.Millisecond)
	assert.Nil(t, f.engine.Current())

	mu.Lock()
	failing = false
	mu.Unlock()

	eventually(t, func() bool {
		ev := f.engine.Current()
		return ev != nil && ev.At.Equal(at(10, 6, 10))
	}, "event expected once dawn recovers")
}

func TestEnginePollPicksUpExternalChanges(t *testing.T) {
	f := startEngine(t, settings.Settings{Depression: settings.Nautical}, at(10, 5, 0), regularDawn)

	_, err := f.store.Save(context.Background(), settings.SetCloseAtDawn(true))
	require.NoError(t, err)

	eventually(t, func() bool {
		ev := f.engine.Current()
		return ev != nil && ev.Action == Close
	}, "poll expected to pick up change without notify")
}

func TestEngineWait(t *testing.T) {
	e := NewEngine(settings.NewMemoryStore(settings.Default()), regularDawn, &fakeActuator{}, WithPollInterval(time.Minute))

	assert.Equal(t, time.Minute, e.wait(at(10, 5, 0)))

	e.current = &Event{Action: Close, At: at(10, 5, 0).Add(10 * time.Second)}
	assert.Equal(t, 10*time.Second, e.wait(at(10, 5, 0)))
	assert.Equal(t, time.Duration(0), e.wait(at(10, 6, 0)))
}
