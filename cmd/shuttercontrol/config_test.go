package main

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
log_level: debug
location:
  name: Oslo
  timezone: Europe/Oslo
  latitude: 59.91
  longitude: 10.75
settings:
  driver: memory
shutter:
  name: bedroom
  pulse: 500ms
  relays:
    open:
      kind: dumb
    close:
      kind: dumb
telegram:
  allowed_users: [anna, ben]
`), 0o600))

	require.NoError(t, loadConfig(path))

	assert.Equal(t, "debug", Cfg.LogLevel)
	assert.Equal(t, "bedroom", Cfg.Shutter.Name)
	assert.Equal(t, 500*time.Millisecond, Cfg.Shutter.Pulse)
	assert.Equal(t, []string{"anna", "ben"}, Cfg.Telegram.AllowedUsers)
	assert.Equal(t, 10*time.Second, Cfg.Scheduler.PollInterval, "default kept")
	assert.Equal(t, "homeassistant", Cfg.HASS.TopicPrefix, "default kept")

	loc, err := locationFromConfig()
	require.NoError(t, err)
	assert.Equal(t, "Oslo", loc.Name)
	assert.Equal(t, "Europe/Oslo", loc.Timezone.String())

	store, closeStore, err := settingsStoreFromConfig()
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &settings.MemoryStore{}, store)
}

func TestTimeOfDayChange(t *testing.T) {
	base := settings.Default()

	c, err := timeOfDayChange("6:30", settings.SetLatest, settings.DisableLatest)
	require.NoError(t, err)
	s := base.Apply(c)
	require.NotNil(t, s.Latest)
	assert.Equal(t, settings.NewTimeOfDay(6, 30, 0), *s.Latest)

	c, err = timeOfDayChange("OFF", settings.SetLatest, settings.DisableLatest)
	require.NoError(t, err)
	assert.Nil(t, s.Apply(c).Latest)

	_, err = timeOfDayChange("half past six", settings.SetLatest, settings.DisableLatest)
	assert.Error(t, err)
}
