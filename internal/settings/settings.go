// Package settings holds AgentInstanceSettings, the launch envelope for one
// running agent instance, and the Builder that resolves an agent definition
// into it.
package settings

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/manifest"
)

var (
	ErrInvalidSettings         = errors.New("invalid instance settings")
	ErrMissingRequiredArgument = errors.New("missing required argument")
	ErrUnknownArgument         = errors.New("unknown argument")
)

// Defaults applied when neither the definition nor the caller sets a value.
const (
	DefaultRestartPolicy   = manifest.RestartAny
	DefaultReplicas        = 1
	DefaultHealthcheckHost = "0.0.0.0"
	DefaultHealthcheckPort = 5000
)

// keySeparator splits an instance key into the agent key and the instance id.
const keySeparator = "#"

// PortMapping exposes DestinationPort of the agent on SourcePort of the
// wildcard host address.
type PortMapping struct {
	SourcePort      int32 `json:"source_port"`
	DestinationPort int32 `json:"destination_port"`
}

// AgentInstanceSettings is everything the runtime needs to launch one
// instance of an agent. Values are not mutated after they are built; a
// relaunch builds a new value with a new key.
type AgentInstanceSettings struct {
	Key              string         `json:"key"`
	BusURL           string         `json:"bus_url"`
	BusExchangeTopic string         `json:"bus_exchange_topic"`
	BusManagementURL *string        `json:"bus_management_url,omitempty"`
	BusVhost         *string        `json:"bus_vhost,omitempty"`
	Args             []agentarg.Arg `json:"args,omitempty"`
	Constraints      []string       `json:"constraints,omitempty"`
	Mounts           []string       `json:"mounts,omitempty"`
	RestartPolicy    string         `json:"restart_policy"`
	MemLimit         *int64         `json:"mem_limit,omitempty"`
	OpenPorts        []PortMapping  `json:"open_ports,omitempty"`
	Replicas         int32          `json:"replicas"`
	HealthcheckHost  string         `json:"healthcheck_host"`
	HealthcheckPort  int32          `json:"healthcheck_port"`
}

// AgentKey returns the agent part of the instance key
// ("agent/ostorlab/nmap" for "agent/ostorlab/nmap#<id>").
func (s *AgentInstanceSettings) AgentKey() string {
	key, _, _ := strings.Cut(s.Key, keySeparator)
	return key
}

// Arg returns the argument called name.
func (s *AgentInstanceSettings) Arg(name string) (agentarg.Arg, bool) {
	for _, a := range s.Args {
		if a.Name == name {
			return a, true
		}
	}
	return agentarg.Arg{}, false
}

// Validate checks the invariants every launchable settings value satisfies.
func (s *AgentInstanceSettings) Validate() error {
	var problems []string

	if s.Key == "" {
		problems = append(problems, "key is empty")
	}
	if s.BusURL == "" {
		problems = append(problems, "bus_url is empty")
	}
	if s.BusExchangeTopic == "" {
		problems = append(problems, "bus_exchange_topic is empty")
	}
	if s.Replicas < 1 {
		problems = append(problems, fmt.Sprintf("replicas must be at least 1, got %d", s.Replicas))
	}
	if !slices.Contains(manifest.ValidRestartPolicies, s.RestartPolicy) {
		problems = append(problems, fmt.Sprintf("restart_policy %q is not one of %s", s.RestartPolicy, strings.Join(manifest.ValidRestartPolicies, ", ")))
	}
	if s.MemLimit != nil && *s.MemLimit < 1 {
		problems = append(problems, fmt.Sprintf("mem_limit must be positive, got %d", *s.MemLimit))
	}
	if !validPort(s.HealthcheckPort) {
		problems = append(problems, fmt.Sprintf("healthcheck_port %d is out of range", s.HealthcheckPort))
	}

	names := make(map[string]bool, len(s.Args))
	for _, a := range s.Args {
		if names[a.Name] {
			problems = append(problems, fmt.Sprintf("argument %q appears more than once", a.Name))
		}
		names[a.Name] = true
	}

	sources := make(map[int32]bool, len(s.OpenPorts))
	for _, p := range s.OpenPorts {
		if !validPort(p.SourcePort) || !validPort(p.DestinationPort) {
			problems = append(problems, fmt.Sprintf("port mapping %d:%d is out of range", p.SourcePort, p.DestinationPort))
		}
		if sources[p.SourcePort] {
			problems = append(problems, fmt.Sprintf("source port %d is mapped more than once", p.SourcePort))
		}
		sources[p.SourcePort] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

func validPort(p int32) bool {
	return p > 0 && p <= 65535
}
