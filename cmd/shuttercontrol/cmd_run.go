package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jkaflik/shuttercontrol/internal/control"
	"github.com/jkaflik/shuttercontrol/internal/metrics"
	"github.com/jkaflik/shuttercontrol/internal/mqtt"
	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/jkaflik/shuttercontrol/internal/shutter"
	"github.com/jkaflik/shuttercontrol/internal/solar"
	"github.com/jkaflik/shuttercontrol/internal/telegram"
	"github.com/jkaflik/shuttercontrol/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and the configured control surfaces",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loc, err := locationFromConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := settingsStoreFromConfig()
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logrus.Errorf("settings: close failed: %s", err)
		}
	}()

	s := shutterFromConfig(ctx)
	engine := scheduler.NewEngine(store, solar.NewSunrise(loc), s, engineOptionsFromConfig(loc)...)
	ctrl := control.NewController(store, engine, s)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	engine.OnUpdate(m.ObserveScheduler)
	s.OnUpdate(m.ObserveShutter)

	logrus.Infof("%s: dawn at %s, %s (%.4f, %.4f)", s.Name(), loc.Name, loc.Region, loc.Latitude, loc.Longitude)

	if Cfg.MQTT.Enabled {
		bridge := startMQTT(ctx, s, ctrl)
		engine.OnUpdate(bridge.OnSchedulerUpdate)
	}

	if Cfg.Telegram.Enabled {
		if err := startTelegram(ctx, ctrl, engine); err != nil {
			return err
		}
	}

	if Cfg.HTTP.Enabled {
		go func() {
			if err := web.Serve(ctx, Cfg.HTTP.Listen, web.NewRouter(ctrl, reg)); err != nil {
				logrus.Error(err)
			}
		}()
	}

	err = engine.Run(ctx)

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime.String())
	time.Sleep(cleanupTime)

	if err == context.Canceled {
		return nil
	}
	return err
}

func startMQTT(ctx context.Context, s shutter.Shutter, ctrl *control.Controller) *mqtt.Bridge {
	var bridge *mqtt.Bridge

	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		if bridge != nil {
			subscribe(ctx, m, bridge)
		}
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(cfg)
	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	bridge = mqtt.NewBridge(m, s, ctrl)
	if Cfg.MQTT.RestoreState {
		if err := bridge.RestoreState(); err != nil {
			logrus.Error(err)
		}
	}
	subscribe(ctx, m, bridge)

	go func() {
		<-ctx.Done()
		m.Disconnect(250)
	}()

	return bridge
}

func subscribe(ctx context.Context, m paho.Client, bridge *mqtt.Bridge) {
	if Cfg.HASS.Enabled {
		if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, bridge); err != nil {
			logrus.Error(err)
		}
	}

	if err := bridge.Subscribe(ctx); err != nil {
		logrus.Error(err)
	}

	if err := bridge.PublishStatus(ctx); err != nil {
		logrus.Error(err)
	}
}

func startTelegram(ctx context.Context, ctrl *control.Controller, engine *scheduler.Engine) error {
	api, err := telegram.Connect(ctx, Cfg.Telegram.Token, Cfg.Telegram.RetryDelay)
	if err != nil {
		return err
	}

	bot := telegram.NewBot(api, ctrl, Cfg.Telegram.AllowedUsers)
	engine.OnUpdate(bot.OnSchedulerUpdate)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	go func() {
		if err := bot.Serve(ctx, updates); err != nil && err != context.Canceled {
			logrus.Error(err)
		}
	}()

	return nil
}
