// Package config manages user-level settings stored at ~/.agentscan/config.yaml.
// Values can be overridden with AGENTSCAN_* environment variables, e.g.
// AGENTSCAN_BUS_URL for bus.url. Command-line flags take precedence over both.
package config
