package scheduler

import (
	"testing"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var berlin = mustLoadLocation("Europe/Berlin")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.May, day, hour, minute, 0, 0, berlin)
}

func tod(hour, minute int) *settings.TimeOfDay {
	t := settings.NewTimeOfDay(hour, minute, 0)
	return &t
}

// dawnByDay returns dawn at the given time of day for each day of May 2024.
func dawnByDay(times map[int]*settings.TimeOfDay) DawnFunc {
	return func(date time.Time, _ float64) (time.Time, error) {
		t, ok := times[date.Day()]
		if !ok {
			return time.Time{}, errors.Errorf("no dawn for %s", date)
		}
		return t.On(date), nil
	}
}

// dawn on May 10th at 06:10, on May 11th at 06:09.
var regularDawn = dawnByDay(map[int]*settings.TimeOfDay{10: tod(6, 10), 11: tod(6, 9)})

func TestNextScenarios(t *testing.T) {
	tests := []struct {
		name     string
		settings settings.Settings
		now      time.Time
		dawn     DawnFunc
		want     *Event
	}{
		{
			name:     "close at dawn only",
			settings: settings.Settings{CloseAtDawn: true, Depression: settings.Nautical},
			now:      at(10, 5, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Close, At: at(10, 6, 10)},
		},
		{
			name:     "close before later open",
			settings: settings.Settings{CloseAtDawn: true, OpenAt: tod(7, 0), Depression: settings.Nautical},
			now:      at(10, 5, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Close, At: at(10, 6, 10)},
		},
		{
			name:     "past dawn opens today",
			settings: settings.Settings{CloseAtDawn: true, OpenAt: tod(7, 0), Depression: settings.Nautical},
			now:      at(10, 6, 30),
			dawn:     regularDawn,
			want:     &Event{Action: Open, At: at(10, 7, 0)},
		},
		{
			name:     "open only in the future",
			settings: settings.Settings{OpenAt: tod(7, 0), Depression: settings.Nautical},
			now:      at(10, 5, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Open, At: at(10, 7, 0)},
		},
		{
			name:     "nothing enabled",
			settings: settings.Settings{Depression: settings.Nautical, Latest: tod(5, 0)},
			now:      at(10, 5, 0),
			dawn:     regularDawn,
			want:     nil,
		},
		{
			name:     "latest caps dawn",
			settings: settings.Settings{CloseAtDawn: true, Depression: settings.Nautical, Latest: tod(5, 45)},
			now:      at(10, 5, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Close, At: at(10, 5, 45)},
		},
		{
			name:     "passed latest rolls to tomorrow",
			settings: settings.Settings{CloseAtDawn: true, Depression: settings.Nautical, Latest: tod(5, 45)},
			now:      at(10, 5, 50),
			dawn:     regularDawn,
			want:     &Event{Action: Close, At: at(11, 5, 45)},
		},
		{
			name:     "latest after dawn is ignored",
			settings: settings.Settings{CloseAtDawn: true, Depression: settings.Nautical, Latest: tod(8, 0)},
			now:      at(10, 5, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Close, At: at(10, 6, 10)},
		},
		{
			name:     "latest has no effect without dawn close",
			settings: settings.Settings{OpenAt: tod(9, 0), Depression: settings.Nautical, Latest: tod(5, 0)},
			now:      at(10, 4, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Open, At: at(10, 9, 0)},
		},
		{
			name:     "tie goes to close",
			settings: settings.Settings{CloseAtDawn: true, OpenAt: tod(6, 10), Depression: settings.Nautical},
			now:      at(10, 5, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Close, At: at(10, 6, 10)},
		},
		{
			name:     "open now is not passed yet",
			settings: settings.Settings{OpenAt: tod(7, 0), Depression: settings.Nautical},
			now:      at(10, 7, 0),
			dawn:     regularDawn,
			want:     &Event{Action: Open, At: at(10, 7, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.settings, tt.now, tt.dawn)
			require.NoError(t, err)
			assertEvent(t, tt.want, got)
		})
	}
}

func TestNextKeepOpenToday(t *testing.T) {
	// dawn today is still ahead of now, but the open time has passed
	lateDawn := dawnByDay(map[int]*settings.TimeOfDay{10: tod(21, 0), 11: tod(6, 9)})

	t.Run("close of today is never returned", func(t *testing.T) {
		s := settings.Settings{CloseAtDawn: true, OpenAt: tod(8, 0), Depression: settings.Nautical}
		got, err := Next(s, at(10, 9, 0), lateDawn)
		require.NoError(t, err)
		assertEvent(t, &Event{Action: Close, At: at(11, 6, 9)}, got)
	})

	t.Run("tomorrow open wins when earlier than tomorrow close", func(t *testing.T) {
		lateTomorrow := dawnByDay(map[int]*settings.TimeOfDay{10: tod(21, 0), 11: tod(9, 0)})
		s := settings.Settings{CloseAtDawn: true, OpenAt: tod(8, 0), Depression: settings.Nautical}
		got, err := Next(s, at(10, 9, 0), lateTomorrow)
		require.NoError(t, err)
		assertEvent(t, &Event{Action: Open, At: at(11, 8, 0)}, got)
	})

	t.Run("open without dawn close moves to tomorrow", func(t *testing.T) {
		s := settings.Settings{OpenAt: tod(8, 0), Depression: settings.Nautical}
		got, err := Next(s, at(10, 9, 0), regularDawn)
		require.NoError(t, err)
		assertEvent(t, &Event{Action: Open, At: at(11, 8, 0)}, got)
	})
}

func TestNextIsIdempotent(t *testing.T) {
	s := settings.Settings{CloseAtDawn: true, OpenAt: tod(7, 0), Depression: settings.Nautical, Latest: tod(6, 0)}

	first, err := Next(s, at(10, 5, 0), regularDawn)
	require.NoError(t, err)
	second, err := Next(s, at(10, 5, 0), regularDawn)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNextPassesDepression(t *testing.T) {
	var got []float64
	dawn := DawnFunc(func(date time.Time, depression float64) (time.Time, error) {
		got = append(got, depression)
		return settings.NewTimeOfDay(6, 0, 0).On(date), nil
	})

	_, err := Next(settings.Settings{CloseAtDawn: true, Depression: settings.Astronomical}, at(10, 5, 0), dawn)
	require.NoError(t, err)
	assert.Equal(t, []float64{settings.Astronomical}, got)
}

func TestNextDawnFailure(t *testing.T) {
	failing := DawnFunc(func(time.Time, float64) (time.Time, error) {
		return time.Time{}, errors.New("no location data")
	})

	t.Run("propagates with dawn close", func(t *testing.T) {
		got, err := Next(settings.Default(), at(10, 5, 0), failing)
		assert.Error(t, err)
		assert.Nil(t, got)
	})

	t.Run("not consulted without dawn close", func(t *testing.T) {
		s := settings.Settings{OpenAt: tod(7, 0), Depression: settings.Nautical}
		got, err := Next(s, at(10, 5, 0), failing)
		require.NoError(t, err)
		assertEvent(t, &Event{Action: Open, At: at(10, 7, 0)}, got)
	})
}

func TestNextUsesLocationOfNow(t *testing.T) {
	utcDawn := DawnFunc(func(date time.Time, _ float64) (time.Time, error) {
		// 04:10 UTC is 06:10 in Berlin during summer time
		y, m, d := date.Date()
		return time.Date(y, m, d, 4, 10, 0, 0, time.UTC), nil
	})

	s := settings.Settings{CloseAtDawn: true, Depression: settings.Nautical, Latest: tod(6, 0)}
	got, err := Next(s, at(10, 5, 0), utcDawn)
	require.NoError(t, err)
	assertEvent(t, &Event{Action: Close, At: at(10, 6, 0)}, got)
	assert.Equal(t, berlin, got.At.Location())
}

func TestEarlier(t *testing.T) {
	dawn := at(10, 6, 10)

	t.Run("nil latest keeps instant", func(t *testing.T) {
		assert.True(t, Earlier(dawn, nil).Equal(dawn))
	})

	t.Run("earlier latest replaces instant", func(t *testing.T) {
		assert.True(t, Earlier(dawn, tod(5, 30)).Equal(at(10, 5, 30)))
	})

	t.Run("later latest keeps instant", func(t *testing.T) {
		assert.True(t, Earlier(dawn, tod(7, 0)).Equal(dawn))
	})

	t.Run("equal latest keeps instant", func(t *testing.T) {
		assert.True(t, Earlier(dawn, tod(6, 10)).Equal(dawn))
	})
}

func assertEvent(t *testing.T, want, got *Event) {
	t.Helper()

	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.Equal(t, want.Action, got.Action)
	assert.True(t, want.At.Equal(got.At), "want %s, got %s", want.At, got.At)
}
