package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/settings"
	"github.com/agentx-labs/agentscan/internal/wire"
)

var busFlags = []string{"--bus-url", "amqp://localhost:5672/", "--bus-topic", "ostorlab_topic"}

// run executes the command tree with an isolated home directory and
// returns what it wrote to stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func readSettings(t *testing.T, path string) *settings.AgentInstanceSettings {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s, err := decodeSettings(data)
	require.NoError(t, err, "decoding %s", path)
	return s
}

func argValue(t *testing.T, s *settings.AgentInstanceSettings, name string) any {
	t.Helper()
	a, ok := s.Arg(name)
	require.True(t, ok, "argument %q not found in %+v", name, s.Args)
	v, err := agentarg.Read(a)
	require.NoError(t, err, "reading argument %q", name)
	return v
}

func TestTypes(t *testing.T) {
	out, _, err := run(t, "types")
	require.NoError(t, err)
	for _, want := range []string{"binary", "boolean", "int", "integer", "string"} {
		assert.Contains(t, out, want+"\n")
	}
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, buildVersion, strings.TrimSpace(out))
}

func TestValidate(t *testing.T) {
	out, _, err := run(t, "validate", "testdata/agents/nmap.yaml", "testdata/agents/tsunami.yaml")
	require.NoError(t, err, out)
	assert.Contains(t, out, "testdata/agents/nmap.yaml: valid")
}

func TestValidateInvalid(t *testing.T) {
	out, _, err := run(t, "validate", "testdata/invalid-agent.yaml")
	require.ErrorIs(t, err, errValidationFailed)
	for _, want := range []string{"invalid", "/name", "/restart_policy", "/args/0/type"} {
		assert.Contains(t, out, want)
	}
}

func TestValidateJSON(t *testing.T) {
	out, _, err := run(t, "validate", "--json", "--agents-dir", "testdata/agents", "testdata/group.yaml")
	require.NoError(t, err, out)

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	require.Len(t, results, 1)
	assert.True(t, results[0].Result.Valid)
	assert.Empty(t, results[0].Result.Issues)
}

func TestValidateMissingFile(t *testing.T) {
	_, _, err := run(t, "validate", "testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errValidationFailed)
}

func TestBuild(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "nmap.pb")
	args := append([]string{"build", "testdata/agents/nmap.yaml",
		"--key", "agent/ostorlab/nmap",
		"--arg", "timeout=60",
		"--arg", `ports=["22","443"]`,
		"--replicas", "3",
		"--out", outPath,
	}, busFlags...)

	_, stderr, err := run(t, args...)
	require.NoError(t, err, stderr)

	s := readSettings(t, outPath)
	assert.Equal(t, "agent/ostorlab/nmap", s.AgentKey())
	assert.Equal(t, int64(60), argValue(t, s, "timeout"))
	assert.Equal(t, "fast", argValue(t, s, "mode"))
	assert.Equal(t, []any{"22", "443"}, argValue(t, s, "ports"))

	_, ok := s.Arg("fingerprint")
	assert.False(t, ok, "fingerprint has no value and should be omitted")

	assert.Equal(t, int32(3), s.Replicas)
	assert.Equal(t, "on-failure", s.RestartPolicy)
	assert.Equal(t, []settings.PortMapping{{SourcePort: 8080, DestinationPort: 80}}, s.OpenPorts)
	assert.Equal(t, "0.0.0.0", s.HealthcheckHost)
	assert.Equal(t, int32(5000), s.HealthcheckPort)
}

func TestBuildJSON(t *testing.T) {
	args := append([]string{"build", "testdata/agents/nmap.yaml", "--json", "--port", "9000:90"}, busFlags...)
	out, stderr, err := run(t, args...)
	require.NoError(t, err, stderr)

	s, err := wire.UnmarshalJSON([]byte(out))
	require.NoError(t, err, out)
	assert.Equal(t, "agent/nmap", s.AgentKey())
	require.Len(t, s.OpenPorts, 1)
	assert.Equal(t, int32(9000), s.OpenPorts[0].SourcePort)
}

func TestBuildUsesConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	content := "bus:\n  url: amqp://rabbit/\n  exchange_topic: scans\nhealthcheck:\n  port: 7000\n"
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0644))

	out, stderr, err := run(t, "--config", cfg, "build", "testdata/agents/nmap.yaml", "--json", "--bus-topic", "override")
	require.NoError(t, err, stderr)

	s, err := wire.UnmarshalJSON([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "amqp://rabbit/", s.BusURL, "value from config")
	assert.Equal(t, "override", s.BusExchangeTopic, "flag value")
	assert.Equal(t, int32(7000), s.HealthcheckPort)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown argument", []string{"--arg", "retries=3"}, settings.ErrUnknownArgument},
		{"missing required argument", []string{"--require", "fingerprint"}, settings.ErrMissingRequiredArgument},
		{"bad restart policy", []string{"--restart-policy", "always"}, settings.ErrInvalidSettings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"build", "testdata/agents/nmap.yaml", "--json"}, busFlags...)
			_, _, err := run(t, append(args, tt.args...)...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildInvalidDefinition(t *testing.T) {
	args := append([]string{"build", "testdata/invalid-agent.yaml"}, busFlags...)
	_, stderr, err := run(t, args...)
	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, stderr, "/restart_policy", "stderr should list validation issues")
}

func TestGroupBuild(t *testing.T) {
	outDir := t.TempDir()
	args := append([]string{"group", "build", "testdata/group.yaml", "--agents-dir", "testdata/agents", "--out-dir", outDir}, busFlags...)

	out, stderr, err := run(t, args...)
	require.NoError(t, err, stderr)
	assert.Equal(t, 2, strings.Count(out, "\n"), out)

	nmap := readSettings(t, filepath.Join(outDir, "00-agent_ostorlab_nmap.pb"))
	assert.Equal(t, int64(45), argValue(t, nmap, "timeout"), "group default")
	assert.Equal(t, "slow", argValue(t, nmap, "mode"), "member value")
	assert.Equal(t, int32(2), nmap.Replicas)

	tsunami := readSettings(t, filepath.Join(outDir, "01-agent_ostorlab_tsunami.pb"))
	assert.Equal(t, []any{"cve"}, argValue(t, tsunami, "plugins"))
	_, ok := tsunami.Arg("timeout")
	assert.False(t, ok, "tsunami does not declare timeout")
}

func TestInspect(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "nmap.pb")
	args := append([]string{"build", "testdata/agents/nmap.yaml", "--key", "agent/ostorlab/nmap", "--bus-vhost", "/scan", "--out", outPath}, busFlags...)
	_, stderr, err := run(t, args...)
	require.NoError(t, err, stderr)

	out, _, err := run(t, "inspect", outPath, "--image", "agent_ostorlab_nmap:v1.0.0", "--image", "agent_ostorlab_nmap:v1.2")
	require.NoError(t, err)
	for _, want := range []string{
		"agent:              agent/ostorlab/nmap",
		"bus_vhost:          /scan",
		"port:               8080 -> 80",
		`timeout (int) = 30`,
		`mode (string) = "fast"`,
		"image:              agent_ostorlab_nmap:v1.2\n",
	} {
		assert.Contains(t, out, want)
	}
}

func TestInspectMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pb")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xff}, 0644))

	_, _, err := run(t, "inspect", path)
	assert.ErrorIs(t, err, wire.ErrMalformedPayload)
}

func TestCreateAgent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scanner")
	out, _, err := run(t, "create", "agent", "scanner", "--org", "acme", "--output-dir", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "Warnings")

	_, _, err = run(t, "validate", filepath.Join(dir, "agent.yaml"))
	assert.NoError(t, err, "generated definition does not validate")
}

func TestCreateRequiresOrg(t *testing.T) {
	_, _, err := run(t, "create", "agent", "scanner", "--output-dir", t.TempDir())
	assert.Error(t, err)
}

func TestParseOverrides(t *testing.T) {
	decls := []agentarg.Declaration{
		{Name: "timeout", Type: "int"},
		{Name: "label", Type: "string"},
		{Name: "blob", Type: "binary"},
		{Name: "ports", Type: "array"},
		{Name: "verbose", Type: "boolean"},
	}

	got, err := parseOverrides([]string{"timeout=60", "label=42", "blob=raw", "ports=[80, 443]", "verbose=true"}, decls)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"timeout": 60,
		"label":   "42",
		"blob":    []byte("raw"),
		"ports":   []any{80, 443},
		"verbose": true,
	}, got)

	_, err = parseOverrides([]string{"timeout"}, decls)
	assert.Error(t, err, "pair without '='")
	_, err = parseOverrides([]string{"ports=[80"}, decls)
	assert.Error(t, err, "malformed YAML")
}

func TestParsePorts(t *testing.T) {
	got, err := parsePorts([]string{"8080:80", "9000:90"})
	require.NoError(t, err)
	assert.Equal(t, []settings.PortMapping{
		{SourcePort: 8080, DestinationPort: 80},
		{SourcePort: 9000, DestinationPort: 90},
	}, got)

	for _, bad := range []string{"8080", "a:80", "80:b"} {
		_, err := parsePorts([]string{bad})
		assert.Error(t, err, "parsePorts(%q)", bad)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("debug", "json", &buf)
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger("verbose", "text", &buf)
	assert.Error(t, err, "unknown level")
	_, err = newLogger("info", "xml", &buf)
	assert.Error(t, err, "unknown format")
}
