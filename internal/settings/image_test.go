package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageName(t *testing.T) {
	assert.Equal(t, "agent_ostorlab_nmap", ImageName("agent/ostorlab/nmap"))
}

func TestResolveImage(t *testing.T) {
	available := []string{
		"agent_ostorlab_nmap:v1.2.0",
		"agent_ostorlab_nmap:v1.10.0",
		"agent_ostorlab_nmap:v0.9.3",
		"agent_ostorlab_nmap:latest",
		"agent_ostorlab_tsunami:v9.0.0",
		"busybox",
	}

	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{"highest version", "", "agent_ostorlab_nmap:v1.10.0"},
		{"pattern filters tags", `v1\.2`, "agent_ostorlab_nmap:v1.2.0"},
		{"pattern anchored at start", `v0`, "agent_ostorlab_nmap:v0.9.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveImage("agent/ostorlab/nmap", available, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveImage_KeepsAvailableTag(t *testing.T) {
	got, err := ResolveImage("agent/ostorlab/nmap", []string{
		"agent_ostorlab_nmap:v1.2",
		"agent_ostorlab_nmap:v1.1.9",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "agent_ostorlab_nmap:v1.2", got)

	got, err = ResolveImage("agent/ostorlab/nmap", []string{
		"agent_ostorlab_nmap:3.0.0",
		"agent_ostorlab_nmap:v1.0.0-rc.1",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "agent_ostorlab_nmap:v1.0.0-rc.1", got)
}

func TestResolveImage_NotFound(t *testing.T) {
	_, err := ResolveImage("agent/ostorlab/whatweb", []string{"agent_ostorlab_nmap:v1.0.0"}, "")
	assert.ErrorIs(t, err, ErrImageNotFound)

	_, err = ResolveImage("agent/ostorlab/nmap", []string{"agent_ostorlab_nmap:latest"}, "")
	assert.ErrorIs(t, err, ErrImageNotFound)

	_, err = ResolveImage("agent/ostorlab/nmap", []string{"agent_ostorlab_nmap:1.2.3"}, "")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestResolveImage_BadPattern(t *testing.T) {
	_, err := ResolveImage("agent/ostorlab/nmap", nil, "v[")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrImageNotFound)
}

func TestContainerImage(t *testing.T) {
	s := &AgentInstanceSettings{Key: "agent/ostorlab/nmap#abc"}
	got, err := s.ContainerImage([]string{"agent_ostorlab_nmap:v2.0.1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "agent_ostorlab_nmap:v2.0.1", got)
}
