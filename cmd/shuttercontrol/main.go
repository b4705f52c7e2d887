package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shuttercontrol",
	Short: "Open and close window shutters at wake-up time and dawn",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(configPath)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config.yaml file path")
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
