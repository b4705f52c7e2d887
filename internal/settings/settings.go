// Package settings holds the persisted user settings of the shutter schedule
// and the stores that keep them.
package settings

import (
	"math"

	"github.com/pkg/errors"
)

// Solar depression presets, in degrees below the horizon.
const (
	Civil        = 6.0
	Nautical     = 12.0
	Astronomical = 18.0
)

// Settings is an immutable snapshot of the schedule settings.
type Settings struct {
	// CloseAtDawn enables the dawn triggered close.
	CloseAtDawn bool
	// OpenAt is the wake-up time. Nil disables the scheduled open.
	OpenAt *TimeOfDay
	// Depression is the solar depression angle used for the dawn computation.
	Depression float64
	// Latest caps the dawn close. Nil disables the cap.
	Latest *TimeOfDay
}

// Default returns the settings used before the first mutation.
func Default() Settings {
	return Settings{
		CloseAtDawn: true,
		Depression:  Nautical,
	}
}

// Validate reports whether the settings can be handed to the scheduler.
func (s Settings) Validate() error {
	if math.IsNaN(s.Depression) || s.Depression <= -90 || s.Depression >= 90 {
		return errors.Errorf("depression %v is out of range (-90, 90)", s.Depression)
	}
	if s.OpenAt != nil {
		if err := s.OpenAt.Validate(); err != nil {
			return errors.Wrap(err, "open at")
		}
	}
	if s.Latest != nil {
		if err := s.Latest.Validate(); err != nil {
			return errors.Wrap(err, "latest")
		}
	}
	return nil
}

// Change mutates a single field of a settings copy.
type Change func(*Settings)

// Apply returns a copy of s with the changes applied in order.
func (s Settings) Apply(changes ...Change) Settings {
	for _, c := range changes {
		c(&s)
	}
	return s
}

func SetCloseAtDawn(enabled bool) Change {
	return func(s *Settings) { s.CloseAtDawn = enabled }
}

func SetOpenAt(t TimeOfDay) Change {
	return func(s *Settings) { s.OpenAt = &t }
}

func DisableOpenAt() Change {
	return func(s *Settings) { s.OpenAt = nil }
}

func SetDepression(degrees float64) Change {
	return func(s *Settings) { s.Depression = degrees }
}

func SetLatest(t TimeOfDay) Change {
	return func(s *Settings) { s.Latest = &t }
}

func DisableLatest() Change {
	return func(s *Settings) { s.Latest = nil }
}
