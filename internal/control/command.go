// Package control turns user commands into settings changes and actuations
// and renders the status shown to the user. It knows nothing about the
// transport the commands arrive on.
package control

import (
	"math"
	"strconv"
	"strings"

	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/pkg/errors"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrInvalidArgument = errors.New("wrong argument format")
)

type Kind int

const (
	KindChange Kind = iota
	KindOpen
	KindClose
	KindStatus
	KindHelp
)

// Command is a parsed user command. Changes is only set for KindChange.
type Command struct {
	Kind    Kind
	Changes []settings.Change
}

func change(c settings.Change) Command {
	return Command{Kind: KindChange, Changes: []settings.Change{c}}
}

type vocabulary map[string]struct{}

func words(w ...string) vocabulary {
	v := make(vocabulary, len(w))
	for _, s := range w {
		v[s] = struct{}{}
	}
	return v
}

func (v vocabulary) has(s string) bool {
	_, ok := v[s]
	return ok
}

var (
	cmdsOff          = words("off", "aus")
	cmdsUp           = words("up", "open", "rauf", "auf", "hoch")
	cmdsDown         = words("down", "close", "runter", "zu")
	cmdsDawn         = words("dawn", "dämmerung ein", "dämmerung")
	cmdsNoDawn       = words("nodawn", "dämmerung aus")
	cmdsCivil        = words("depression civil", "depression zivil", "civil", "zivil")
	cmdsNautical     = words("depression nautical", "depression nautisch", "nautical", "nautisch")
	cmdsAstronomical = words("depression astronomical", "depression astronomisch", "astronomical", "astronomisch")
	cmdsDepression   = words("depression")
	cmdsLatest       = words("latest", "max", "spätestens")
	cmdsStatus       = words("status")
	cmdsHelp         = words("help", "hilfe")
)

// Parse maps a command text to a Command. Input is matched case-insensitively
// after trimming. Nothing is parsed partially: any malformed argument fails
// the whole command.
func Parse(text string) (Command, error) {
	msg := strings.ToLower(strings.TrimSpace(text))
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return Command{}, ErrUnknownCommand
	}

	if t, err := settings.ParseTimeOfDay(msg); err == nil {
		return change(settings.SetOpenAt(t)), nil
	}

	switch {
	case cmdsOff.has(msg):
		return change(settings.DisableOpenAt()), nil
	case cmdsDawn.has(msg):
		return change(settings.SetCloseAtDawn(true)), nil
	case cmdsNoDawn.has(msg):
		return change(settings.SetCloseAtDawn(false)), nil
	case cmdsUp.has(msg):
		return Command{Kind: KindOpen}, nil
	case cmdsDown.has(msg):
		return Command{Kind: KindClose}, nil
	case cmdsCivil.has(msg):
		return change(settings.SetDepression(settings.Civil)), nil
	case cmdsNautical.has(msg):
		return change(settings.SetDepression(settings.Nautical)), nil
	case cmdsAstronomical.has(msg):
		return change(settings.SetDepression(settings.Astronomical)), nil
	case cmdsDepression.has(fields[0]):
		return parseDepression(fields[1:])
	case cmdsLatest.has(fields[0]):
		return parseLatest(fields[1:])
	case cmdsStatus.has(msg):
		return Command{Kind: KindStatus}, nil
	case cmdsHelp.has(msg):
		return Command{Kind: KindHelp}, nil
	}

	return Command{}, ErrUnknownCommand
}

func parseDepression(args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, ErrInvalidArgument
	}

	degrees, err := ParseDepression(args[0])
	if err != nil {
		return Command{}, err
	}

	return change(settings.SetDepression(degrees)), nil
}

// ParseDepression accepts a twilight preset name or degrees below the horizon.
func ParseDepression(value string) (float64, error) {
	switch v := strings.ToLower(strings.TrimSpace(value)); {
	case cmdsCivil.has(v):
		return settings.Civil, nil
	case cmdsNautical.has(v):
		return settings.Nautical, nil
	case cmdsAstronomical.has(v):
		return settings.Astronomical, nil
	}

	degrees, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(degrees) || degrees <= -90 || degrees >= 90 {
		return 0, errors.Wrapf(ErrInvalidArgument, "depression %q", value)
	}

	return degrees, nil
}

func parseLatest(args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, ErrInvalidArgument
	}

	if cmdsOff.has(args[0]) {
		return change(settings.DisableLatest()), nil
	}

	t, err := settings.ParseTimeOfDay(args[0])
	if err != nil {
		return Command{}, errors.Wrapf(ErrUnknownCommand, "latest %q", args[0])
	}

	return change(settings.SetLatest(t)), nil
}
