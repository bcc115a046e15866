package branding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddedBranding(t *testing.T) {
	assert.Equal(t, "agentscan", CLIName())
	assert.Equal(t, ".agentscan", HomeDir())
	assert.Equal(t, "AGENTSCAN", EnvPrefix())
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "AGENTSCAN_BUS_URL", EnvVar("bus_url"))
}
