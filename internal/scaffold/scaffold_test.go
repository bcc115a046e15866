package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/agentscan/internal/manifest"
	"github.com/agentx-labs/agentscan/internal/settings"
)

func TestNewData(t *testing.T) {
	d := NewData("nmap", "ostorlab")
	assert.Equal(t, "agent/ostorlab/nmap", d.Key)
	assert.Equal(t, "0.1.0", d.Version)
	assert.NotZero(t, d.Year)
}

func TestGenerateAgent(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "nmap")

	result, err := Generate(manifest.KindAgent, NewData("nmap", "ostorlab"), outDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dockerfile", "README.md", "agent.yaml"}, result.Files)

	content := readGenerated(t, outDir, "agent.yaml")
	assert.Contains(t, content, "kind: Agent")
	assert.Contains(t, content, "name: nmap")
	assert.Contains(t, content, "  - v3.asset.ip")
	assert.Contains(t, content, "default_value: MzA=")

	assert.Contains(t, readGenerated(t, outDir, "Dockerfile"), `agent.key="agent/ostorlab/nmap"`)
	assert.Empty(t, result.Warnings)
}

func TestGeneratedAgentBuilds(t *testing.T) {
	outDir := t.TempDir()
	_, err := Generate(manifest.KindAgent, NewData("scanner", "acme"), outDir)
	require.NoError(t, err)

	def, err := manifest.ParseAgent(filepath.Join(outDir, "agent.yaml"))
	require.NoError(t, err)

	s, err := settings.NewBuilder().Build(def, settings.Request{
		Bus: settings.BusConfig{URL: "amqp://localhost/", ExchangeTopic: "topic"},
	})
	require.NoError(t, err)

	a, ok := s.Arg("timeout")
	require.True(t, ok)
	assert.Equal(t, []byte("30"), a.Value)
}

func TestGenerateGroup(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "network-scan")

	result, err := Generate(manifest.KindAgentGroup, NewData("network-scan", "ostorlab"), outDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"group.yaml"}, result.Files)

	content := readGenerated(t, outDir, "group.yaml")
	assert.Contains(t, content, "kind: AgentGroup")
	assert.Contains(t, content, "key: agent/ostorlab/network-scan")
	assert.Empty(t, result.Warnings)
}

func TestGenerateUnknownKind(t *testing.T) {
	_, err := Generate("Pipeline", NewData("x", "y"), t.TempDir())
	assert.Error(t, err)
}

func TestGenerateNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("hello"), 0644))

	_, err := Generate(manifest.KindAgent, NewData("nmap", "ostorlab"), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")
}

func TestGenerateReportsInvalidDefinition(t *testing.T) {
	result, err := Generate(manifest.KindAgent, NewData("Bad Name", "ostorlab"), t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings, "expected warnings for an invalid agent name")
}

func readGenerated(t *testing.T, dir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)
	return string(data)
}
