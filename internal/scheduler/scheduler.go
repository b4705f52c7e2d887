// Package scheduler decides when the shutter opens or closes next and drives
// the actuator at that instant.
package scheduler

import (
	"fmt"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/pkg/errors"
)

// TimestampLayout is the layout events are shown in.
const TimestampLayout = "2006-01-02 15:04:05-07:00"

type Action string

const (
	Open  Action = "open"
	Close Action = "close"
)

// Event is the next transition of the shutter. It is derived, never stored.
type Event struct {
	Action Action
	At     time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s at %s", e.Action, e.At.Format(TimestampLayout))
}

// DawnProvider returns the dawn instant of date's calendar day.
type DawnProvider interface {
	Dawn(date time.Time, depression float64) (time.Time, error)
}

// DawnFunc adapts a function to DawnProvider.
type DawnFunc func(date time.Time, depression float64) (time.Time, error)

func (f DawnFunc) Dawn(date time.Time, depression float64) (time.Time, error) {
	return f(date, depression)
}

// Next returns the next event for s as seen at now, or nil when nothing is
// scheduled. Dates are taken in now's location. Next has no side effects.
//
// When today's open time has already passed, the open moves to tomorrow and
// no close may fire before it: the shutter stays open for the rest of today.
// Equal open and close instants resolve to close.
func Next(s settings.Settings, now time.Time, dawn DawnProvider) (*Event, error) {
	today := midnight(now)
	tomorrow := today.AddDate(0, 0, 1)

	var openAt *time.Time
	keepOpenToday := false
	if s.OpenAt != nil {
		t := s.OpenAt.On(today)
		if t.Before(now) {
			t = s.OpenAt.On(tomorrow)
			keepOpenToday = true
		}
		openAt = &t
	}

	var closeAt *time.Time
	if s.CloseAtDawn {
		t, err := closeOn(today, now.Location(), s, dawn)
		if err != nil {
			return nil, err
		}
		if t.Before(now) || keepOpenToday {
			if t, err = closeOn(tomorrow, now.Location(), s, dawn); err != nil {
				return nil, err
			}
		}
		closeAt = &t
	}

	switch {
	case openAt == nil && closeAt == nil:
		return nil, nil
	case openAt == nil:
		return &Event{Action: Close, At: *closeAt}, nil
	case closeAt == nil || openAt.Before(*closeAt):
		return &Event{Action: Open, At: *openAt}, nil
	default:
		return &Event{Action: Close, At: *closeAt}, nil
	}
}

// Earlier caps instant by latest on instant's own date. A nil latest leaves
// instant unchanged.
func Earlier(instant time.Time, latest *settings.TimeOfDay) time.Time {
	if latest == nil {
		return instant
	}
	if capped := latest.On(instant); capped.Before(instant) {
		return capped
	}
	return instant
}

func closeOn(day time.Time, loc *time.Location, s settings.Settings, dawn DawnProvider) (time.Time, error) {
	d, err := dawn.Dawn(day, s.Depression)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "dawn of %s", day.Format("2006-01-02"))
	}
	return Earlier(d.In(loc), s.Latest), nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
