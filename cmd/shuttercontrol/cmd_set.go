package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jkaflik/shuttercontrol/internal/control"
	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	setDawnClose  bool
	setOpenAt     string
	setDepression string
	setLatest     string
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the persisted settings",
	Long: `Change the persisted settings. Only the given flags are changed.

A running daemon picks the change up within its poll interval.

Examples:
  # Open at 7:15, close at civil dawn but never after 6:00
  shuttercontrol set --open-at 7:15 --dawn-close --depression civil --latest 6:00

  # Stop opening automatically
  shuttercontrol set --open-at off
`,
	Args: cobra.NoArgs,
	RunE: runSet,
}

func init() {
	setCmd.Flags().BoolVar(&setDawnClose, "dawn-close", true, "Close at dawn")
	setCmd.Flags().StringVar(&setOpenAt, "open-at", "", "Wake up time as hh:mm[:ss], or off")
	setCmd.Flags().StringVar(&setDepression, "depression", "", "civil, nautical, astronomical or degrees below the horizon")
	setCmd.Flags().StringVar(&setLatest, "latest", "", "Close at this time at the latest, hh:mm[:ss] or off")
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	changes, err := changesFromFlags(cmd)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return errors.New("nothing to set")
	}

	store, closeStore, err := settingsStoreFromConfig()
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := store.Save(context.Background(), changes...)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), control.StatusText(control.Status{Settings: s}))
	return nil
}

func changesFromFlags(cmd *cobra.Command) ([]settings.Change, error) {
	var changes []settings.Change
	flags := cmd.Flags()

	if flags.Changed("dawn-close") {
		changes = append(changes, settings.SetCloseAtDawn(setDawnClose))
	}

	if flags.Changed("open-at") {
		c, err := timeOfDayChange(setOpenAt, settings.SetOpenAt, settings.DisableOpenAt)
		if err != nil {
			return nil, errors.Wrap(err, "--open-at")
		}
		changes = append(changes, c)
	}

	if flags.Changed("depression") {
		d, err := control.ParseDepression(setDepression)
		if err != nil {
			return nil, errors.Wrap(err, "--depression")
		}
		changes = append(changes, settings.SetDepression(d))
	}

	if flags.Changed("latest") {
		c, err := timeOfDayChange(setLatest, settings.SetLatest, settings.DisableLatest)
		if err != nil {
			return nil, errors.Wrap(err, "--latest")
		}
		changes = append(changes, c)
	}

	return changes, nil
}

func timeOfDayChange(value string, set func(settings.TimeOfDay) settings.Change, disable func() settings.Change) (settings.Change, error) {
	if strings.EqualFold(value, "off") {
		return disable(), nil
	}

	t, err := settings.ParseTimeOfDay(value)
	if err != nil {
		return nil, err
	}
	return set(t), nil
}
