package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agentx-labs/agentscan/internal/branding"
	"github.com/agentx-labs/agentscan/internal/settings"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Configuration keys.
const (
	KeyBusURL           = "bus.url"
	KeyBusExchangeTopic = "bus.exchange_topic"
	KeyBusManagementURL = "bus.management_url"
	KeyBusVhost         = "bus.vhost"
	KeyHealthcheckHost  = "healthcheck.host"
	KeyHealthcheckPort  = "healthcheck.port"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
)

// Keys lists every key accepted by Set.
var Keys = []string{
	KeyBusURL,
	KeyBusExchangeTopic,
	KeyBusManagementURL,
	KeyBusVhost,
	KeyHealthcheckHost,
	KeyHealthcheckPort,
	KeyLogLevel,
	KeyLogFormat,
}

var ErrUnknownKey = errors.New("unknown config key")

// Dir returns the path to the config directory (~/.agentscan/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.agentscan/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
// path overrides the default config file location when non-empty. A missing
// file is not an error; a file that cannot be parsed is.
func Load(path string) error {
	if path == "" {
		path = FilePath()
	}
	viper.SetConfigFile(path)
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(KeyHealthcheckHost, settings.DefaultHealthcheckHost)
	viper.SetDefault(KeyHealthcheckPort, settings.DefaultHealthcheckPort)
	viper.SetDefault(KeyLogLevel, "info")
	viper.SetDefault(KeyLogFormat, "text")

	if err := viper.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w %q (known keys: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = FilePath()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Bus returns the configured message bus location.
func Bus() settings.BusConfig {
	return settings.BusConfig{
		URL:           viper.GetString(KeyBusURL),
		ExchangeTopic: viper.GetString(KeyBusExchangeTopic),
		ManagementURL: viper.GetString(KeyBusManagementURL),
		Vhost:         viper.GetString(KeyBusVhost),
	}
}

// Healthcheck returns the configured health check address.
func Healthcheck() (host string, port int32) {
	return viper.GetString(KeyHealthcheckHost), viper.GetInt32(KeyHealthcheckPort)
}
