package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	setup(t)
	require.NoError(t, Load(""))

	host, port := Healthcheck()
	assert.Equal(t, "0.0.0.0", host)
	assert.Equal(t, int32(5000), port)
	assert.Equal(t, "info", Get(KeyLogLevel))
}

func TestLoadFile(t *testing.T) {
	home := setup(t)
	path := filepath.Join(home, "custom.yaml")
	content := "bus:\n  url: amqp://rabbit:5672/\n  exchange_topic: scans\n  vhost: /prod\nhealthcheck:\n  port: 6000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, Load(path))

	bus := Bus()
	assert.Equal(t, "amqp://rabbit:5672/", bus.URL)
	assert.Equal(t, "scans", bus.ExchangeTopic)
	assert.Equal(t, "/prod", bus.Vhost)
	assert.Empty(t, bus.ManagementURL)

	_, port := Healthcheck()
	assert.Equal(t, int32(6000), port)
}

func TestLoadInvalidFile(t *testing.T) {
	home := setup(t)
	path := filepath.Join(home, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bus: [unclosed"), 0644))

	assert.Error(t, Load(path))
}

func TestEnvOverride(t *testing.T) {
	setup(t)
	t.Setenv("AGENTSCAN_BUS_URL", "amqp://from-env/")
	require.NoError(t, Load(""))

	assert.Equal(t, "amqp://from-env/", Bus().URL)
}

func TestSet(t *testing.T) {
	home := setup(t)
	require.NoError(t, Load(""))
	require.NoError(t, Set(KeyBusExchangeTopic, "scans"))

	data, err := os.ReadFile(filepath.Join(home, ".agentscan", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "exchange_topic: scans")
	assert.Equal(t, "scans", Get(KeyBusExchangeTopic))
}

func TestSetUnknownKey(t *testing.T) {
	setup(t)
	assert.ErrorIs(t, Set("bus.password", "secret"), ErrUnknownKey)
}
