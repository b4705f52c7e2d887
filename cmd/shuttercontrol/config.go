package main

import (
	"context"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/jkaflik/shuttercontrol/internal/shutter/driver/relay"
	"github.com/jkaflik/shuttercontrol/internal/solar"
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type cfgLocation struct {
	Name      string  `yaml:"name" default:"Stuttgart" env:"NAME"`
	Region    string  `yaml:"region" default:"Germany" env:"REGION"`
	Timezone  string  `yaml:"timezone" default:"Europe/Berlin" env:"TIMEZONE"`
	Latitude  float64 `yaml:"latitude" default:"48.7758" env:"LATITUDE"`
	Longitude float64 `yaml:"longitude" default:"9.1829" env:"LONGITUDE"`
}

type cfgScheduler struct {
	PollInterval time.Duration `yaml:"poll_interval" default:"10s" env:"POLL_INTERVAL"`
}

type cfgSettings struct {
	Driver string `yaml:"driver" default:"file" env:"DRIVER"`
	Path   string `yaml:"path" default:"settings.yaml" env:"PATH"`
}

type cfgWiredRelaySetPin struct {
	Kind string `yaml:"kind"`

	Pin uint8 `yaml:"pin"`

	Mcp23017 int `yaml:"mcp23017"`
}

type cfgRelay struct {
	Kind string `yaml:"kind"`

	Pin          cfgWiredRelaySetPin `yaml:"pin"`
	NormalClosed bool                `yaml:"normal_closed"`
}

type cfgShutterRelays struct {
	Open  cfgRelay `yaml:"open"`
	Close cfgRelay `yaml:"close"`
}

type cfgShutter struct {
	Name  string        `yaml:"name" default:"shutter" env:"NAME"`
	Pulse time.Duration `yaml:"pulse" default:"300ms" env:"PULSE"`

	Relays cfgShutterRelays `yaml:"relays"`
}

type cfgDrivers struct {
	Relay struct {
		Pool     int `yaml:"pool" default:"0"`
		Mcp23017 map[int]struct {
			Bus          uint8 `yaml:"bus" default:"1"`
			DeviceNumber uint8 `yaml:"device_number" default:"0"`
		} `yaml:"mcp23017"`
		Gpiocdev struct {
			Chip string `yaml:"chip" default:"gpiochip0"`
		} `yaml:"gpiocdev"`
	} `yaml:"relay"`
}

type cfgTelegram struct {
	Enabled      bool          `yaml:"enabled" default:"false" env:"ENABLED"`
	Token        string        `yaml:"token" env:"TOKEN"`
	AllowedUsers []string      `yaml:"allowed_users" env:"ALLOWED_USERS"`
	RetryDelay   time.Duration `yaml:"retry_delay" default:"5s" env:"RETRY_DELAY"`
}

type cfgMQTT struct {
	Enabled      bool   `yaml:"enabled" default:"false" env:"ENABLED"`
	ClientID     string `yaml:"client_id" default:"shuttercontrol" env:"CLIENT_ID"`
	Broker       string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username     string `yaml:"username" env:"USERNAME"`
	Password     string `yaml:"password" env:"PASSWORD"`
	RestoreState bool   `yaml:"restore_state" default:"true" env:"RESTORE_STATE"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type cfgHTTP struct {
	Enabled bool   `yaml:"enabled" default:"false" env:"ENABLED"`
	Listen  string `yaml:"listen" default:":9120" env:"LISTEN"`
}

var Cfg struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	Location  cfgLocation  `yaml:"location" env:"LOCATION"`
	Scheduler cfgScheduler `yaml:"scheduler" env:"SCHEDULER"`
	Settings  cfgSettings  `yaml:"settings" env:"SETTINGS"`

	Shutter cfgShutter `yaml:"shutter" env:"SHUTTER"`
	Drivers cfgDrivers `yaml:"drivers"`

	Telegram cfgTelegram `yaml:"telegram" env:"TELEGRAM"`
	MQTT     cfgMQTT     `yaml:"mqtt" env:"MQTT"`
	HASS     cfgHASS     `yaml:"hass" env:"HASS"`
	HTTP     cfgHTTP     `yaml:"http" env:"HTTP"`
}

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "SC",
	SkipFlags: true,
})

var relaysPool chan struct{}

// loadConfig applies defaults and environment, then the YAML file on top.
// A missing file is not an error.
func loadConfig(filename string) error {
	if err := configLoader.Load(); err != nil {
		return err
	}

	if err := loadConfigFromYamlFile(filename); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	if Cfg.Drivers.Relay.Pool > 0 {
		relaysPool = make(chan struct{}, Cfg.Drivers.Relay.Pool)
	}

	return nil
}

func loadConfigFromYamlFile(filename string) error {
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		logrus.Warnf("config: %s not found, using defaults", filename)
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
		return errors.Wrapf(err, "config: %s", filename)
	}

	return nil
}

func locationFromConfig() (solar.Location, error) {
	tz, err := time.LoadLocation(Cfg.Location.Timezone)
	if err != nil {
		return solar.Location{}, errors.Wrap(err, "config: location.timezone")
	}

	return solar.Location{
		Name:      Cfg.Location.Name,
		Region:    Cfg.Location.Region,
		Latitude:  Cfg.Location.Latitude,
		Longitude: Cfg.Location.Longitude,
		Timezone:  tz,
	}, nil
}

// settingsStoreFromConfig returns the store and a function releasing it.
func settingsStoreFromConfig() (settings.Store, func() error, error) {
	noop := func() error { return nil }

	switch Cfg.Settings.Driver {
	case "file":
		return settings.NewFileStore(Cfg.Settings.Path), noop, nil
	case "sqlite":
		s, err := settings.OpenSQLiteStore(Cfg.Settings.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return settings.NewMemoryStore(settings.Default()), noop, nil
	}

	return nil, nil, errors.Errorf("%s is not supported settings driver", Cfg.Settings.Driver)
}

func engineOptionsFromConfig(loc solar.Location) []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithPollInterval(Cfg.Scheduler.PollInterval),
		scheduler.WithLocation(loc.Timezone),
	}
}

func shutterFromConfig(ctx context.Context) *relay.PulseShutter {
	openRelay, closeRelay := relay.NewRelayPair(
		relayFromConfig(ctx, Cfg.Shutter.Relays.Open, Cfg.Shutter.Name+" open"),
		relayFromConfig(ctx, Cfg.Shutter.Relays.Close, Cfg.Shutter.Name+" close"),
	)

	return relay.NewPulseShutter(Cfg.Shutter.Name, &openRelay, &closeRelay, Cfg.Shutter.Pulse)
}

func relayFromConfig(ctx context.Context, cfg cfgRelay, name string) relay.Relay {
	if cfg.Kind == "wired" {
		w := &relay.Wired{
			Pin:          wiredRelaySetPinFromConfig(ctx, cfg.Pin, !cfg.NormalClosed),
			NormalClosed: cfg.NormalClosed,
		}
		if err := w.Idle(); err != nil {
			logrus.Fatalf("%s: %s", name, err)
		}
		return wrapRelayWithPoolProxy(w)
	}

	if cfg.Kind == "dumb" || cfg.Kind == "" {
		return wrapRelayWithPoolProxy(&relay.Dumb{Name: name})
	}

	logrus.Fatalf("%s is not supported relay kind", cfg.Kind)
	return nil
}

func wrapRelayWithPoolProxy(r relay.Relay) relay.Relay {
	if relaysPool == nil {
		return r
	}

	return relay.NewPoolProxy(r, relaysPool)
}

func wiredRelaySetPinFromConfig(ctx context.Context, cfg cfgWiredRelaySetPin, idleHigh bool) relay.SetPin {
	switch cfg.Kind {
	case "mcp23017":
		device := mcp23017DeviceFromConfigByID(ctx, cfg.Mcp23017)

		p, err := relay.NewMcp23017Pin(device, cfg.Pin)
		if err != nil {
			logrus.Fatal(err)
		}
		return p
	case "gpiocdev":
		p, err := relay.NewGpiocdevPin(gpiocdevChipFromConfig(ctx), int(cfg.Pin), idleHigh)
		if err != nil {
			logrus.Fatal(err)
		}
		go func() {
			<-ctx.Done()
			if err := p.Close(); err != nil {
				logrus.Errorf("gpiocdev: line %d close failed %s", cfg.Pin, err)
			}
		}()
		return p
	}

	logrus.Fatalf("%s is not supported wired relay set pin kind", cfg.Kind)
	return nil
}

var gpiocdevChip *relay.GpiocdevChip

func gpiocdevChipFromConfig(ctx context.Context) *relay.GpiocdevChip {
	if gpiocdevChip != nil {
		return gpiocdevChip
	}

	chip, err := relay.OpenGpiocdevChip(Cfg.Drivers.Relay.Gpiocdev.Chip)
	if err != nil {
		logrus.Fatal(err)
	}
	go func() {
		<-ctx.Done()
		if err := chip.Close(); err != nil {
			logrus.Errorf("gpiocdev: close failed %s", err)
			return
		}

		logrus.Infof("gpiocdev: close")
	}()

	gpiocdevChip = chip
	return chip
}

var mcpDevices = map[int]*mcp23017.Device{}

func mcp23017DeviceFromConfigByID(ctx context.Context, id int) *mcp23017.Device {
	if Cfg.Drivers.Relay.Mcp23017 == nil {
		logrus.Fatal("drivers.relay.mcp23017 not defined")
	}

	cfg, found := Cfg.Drivers.Relay.Mcp23017[id]
	if !found {
		logrus.Fatalf("%d is not valid defined drivers.relay.mcp23017", id)
		return nil
	}

	dev := mcpDevices[id]
	if dev == nil {
		var err error
		dev, err = mcp23017.Open(cfg.Bus, cfg.DeviceNumber)
		if err != nil {
			logrus.Fatal(err)
		}
		go func() {
			<-ctx.Done()
			if err := dev.Close(); err != nil {
				logrus.Errorf("mcp23017: close failed %s", err)
				return
			}

			logrus.Infof("mcp23017: close")
		}()
		if err := dev.Reset(); err != nil {
			logrus.Fatal(err)
		}

		mcpDevices[id] = dev
	}

	return dev
}

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetOrderMatters(false).
		SetAutoReconnect(true)
}
