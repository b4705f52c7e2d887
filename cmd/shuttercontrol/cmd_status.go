package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/control"
	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/jkaflik/shuttercontrol/internal/solar"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the settings and the next event computed from them",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	loc, err := locationFromConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := settingsStoreFromConfig()
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := store.Load(context.Background())
	if err != nil {
		return err
	}

	next, err := scheduler.Next(s, time.Now().In(loc.Timezone), solar.NewSunrise(loc))
	if err != nil {
		logrus.Errorf("no event determined: %s", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), control.StatusText(control.Status{Settings: s, Next: next}))
	return nil
}
