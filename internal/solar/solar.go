// Package solar computes dawn instants for a fixed observer location.
package solar

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/pkg/errors"
)

// ErrNoDawn is returned when the sun never reaches the requested depression
// on the requested date, e.g. astronomical dawn during a high latitude summer.
var ErrNoDawn = errors.New("sun does not reach the requested depression")

// Location is the observer the dawn instants are computed for.
type Location struct {
	Name      string
	Region    string
	Latitude  float64
	Longitude float64
	Timezone  *time.Location
}

// Provider returns the instant the sun rises through depression degrees
// below the horizon on the calendar date of date.
type Provider interface {
	Dawn(date time.Time, depression float64) (time.Time, error)
}

// Sunrise is a Provider backed by go-sunrise.
type Sunrise struct {
	loc Location
}

func NewSunrise(loc Location) *Sunrise {
	if loc.Timezone == nil {
		loc.Timezone = time.Local
	}
	return &Sunrise{loc: loc}
}

func (s *Sunrise) Location() Location {
	return s.loc
}

func (s *Sunrise) Dawn(date time.Time, depression float64) (time.Time, error) {
	year, month, day := date.Date()

	morning, _ := sunrise.TimeOfElevation(s.loc.Latitude, s.loc.Longitude, -depression, year, month, day)
	if morning.IsZero() {
		return time.Time{}, errors.Wrapf(ErrNoDawn, "%s: %04d-%02d-%02d at %v°", s.loc.Name, year, month, day, depression)
	}

	return morning.In(s.loc.Timezone), nil
}
