package manifest

import (
	"encoding/base64"
	"fmt"
	"path"

	"github.com/agentx-labs/agentscan/internal/agentarg"
)

// BaseDefinition contains fields shared by all definition kinds.
type BaseDefinition struct {
	Kind        string `yaml:"kind" json:"kind"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// AgentDefinition describes a single agent: what it consumes, what it emits,
// how it should be run and which arguments it accepts.
type AgentDefinition struct {
	BaseDefinition  `yaml:",inline"`
	Image           string                `yaml:"image,omitempty" json:"image,omitempty"`
	Source          string                `yaml:"source,omitempty" json:"source,omitempty"`
	License         string                `yaml:"license,omitempty" json:"license,omitempty"`
	Durability      string                `yaml:"durability,omitempty" json:"durability,omitempty"`
	DockerFilePath  string                `yaml:"docker_file_path,omitempty" json:"docker_file_path,omitempty"`
	DockerBuildRoot string                `yaml:"docker_build_root,omitempty" json:"docker_build_root,omitempty"`
	InSelectors     []string              `yaml:"in_selectors,omitempty" json:"in_selectors,omitempty"`
	OutSelectors    []string              `yaml:"out_selectors,omitempty" json:"out_selectors,omitempty"`
	RestartPolicy   string                `yaml:"restart_policy,omitempty" json:"restart_policy,omitempty"`
	Constraints     []string              `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Mounts          []string              `yaml:"mounts,omitempty" json:"mounts,omitempty"`
	MemLimit        *int64                `yaml:"mem_limit,omitempty" json:"mem_limit,omitempty"`
	Portmap         []PortMap             `yaml:"portmap,omitempty" json:"portmap,omitempty"`
	Args            []ArgumentDeclaration `yaml:"args,omitempty" json:"args,omitempty"`
}

// Declarations converts the argument list into codec declarations,
// decoding base64 defaults.
func (d *AgentDefinition) Declarations() ([]agentarg.Declaration, error) {
	return declarations(d.Args)
}

// AgentGroupDefinition composes several agents into one scan.
type AgentGroupDefinition struct {
	BaseDefinition `yaml:",inline"`
	InSelectors    []string              `yaml:"in_selectors,omitempty" json:"in_selectors,omitempty"`
	Agents         []GroupMember         `yaml:"agents" json:"agents"`
	Args           []ArgumentDeclaration `yaml:"args,omitempty" json:"args,omitempty"`
}

// Declarations converts the group-level argument list into codec declarations.
func (g *AgentGroupDefinition) Declarations() ([]agentarg.Declaration, error) {
	return declarations(g.Args)
}

// GroupMember references an agent by key and carries the concrete values
// and resource settings used to launch it.
type GroupMember struct {
	Key           string      `yaml:"key" json:"key"`
	Version       string      `yaml:"version,omitempty" json:"version,omitempty"`
	Args          []MemberArg `yaml:"args,omitempty" json:"args,omitempty"`
	Constraints   []string    `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Mounts        []string    `yaml:"mounts,omitempty" json:"mounts,omitempty"`
	RestartPolicy string      `yaml:"restart_policy,omitempty" json:"restart_policy,omitempty"`
	MemLimit      *int64      `yaml:"mem_limit,omitempty" json:"mem_limit,omitempty"`
	OpenPorts     []OpenPort  `yaml:"open_ports,omitempty" json:"open_ports,omitempty"`
	Replicas      int32       `yaml:"replicas,omitempty" json:"replicas,omitempty"`
}

// ArgumentDeclaration is an argument as written in a definition document.
// DefaultValue holds the base64 form of the wire bytes.
type ArgumentDeclaration struct {
	Name         string  `yaml:"name" json:"name"`
	Type         string  `yaml:"type" json:"type"`
	Description  string  `yaml:"description,omitempty" json:"description,omitempty"`
	DefaultValue *string `yaml:"default_value,omitempty" json:"default_value,omitempty"`
}

// Declaration decodes the document form into a codec declaration.
func (a ArgumentDeclaration) Declaration() (agentarg.Declaration, error) {
	decl := agentarg.Declaration{Name: a.Name, Type: a.Type, Description: a.Description}
	if a.DefaultValue != nil {
		raw, err := base64.StdEncoding.DecodeString(*a.DefaultValue)
		if err != nil {
			return agentarg.Declaration{}, fmt.Errorf("argument %q: default_value is not base64: %w", a.Name, err)
		}
		if raw == nil {
			raw = []byte{}
		}
		decl.DefaultValue = raw
	}
	return decl, nil
}

// MemberArg is a concrete argument value supplied to a group member.
type MemberArg struct {
	Name        string      `yaml:"name" json:"name"`
	Type        string      `yaml:"type" json:"type"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Value       interface{} `yaml:"value" json:"value"`
}

// PortMap maps a port on the wildcard host address to a port in the agent.
type PortMap struct {
	SourcePort      int32 `yaml:"source_port" json:"source_port"`
	DestinationPort int32 `yaml:"destination_port" json:"destination_port"`
}

// OpenPort is the group-member spelling of a port mapping.
type OpenPort struct {
	SrcPort  int32 `yaml:"src_port" json:"src_port"`
	DestPort int32 `yaml:"dest_port" json:"dest_port"`
}

// Catalog resolves group member keys to agent definitions.
type Catalog interface {
	Lookup(key string) (*AgentDefinition, bool)
}

// MapCatalog is a Catalog backed by a map. Keys may be full agent keys
// ("agent/ostorlab/nmap") or bare agent names ("nmap").
type MapCatalog map[string]*AgentDefinition

// Lookup returns the definition for key, falling back to the last path
// element of the key.
func (c MapCatalog) Lookup(key string) (*AgentDefinition, bool) {
	if d, ok := c[key]; ok {
		return d, true
	}
	d, ok := c[path.Base(key)]
	return d, ok
}

// Definition kinds for the kind discriminator field.
const (
	KindAgent      = "Agent"
	KindAgentGroup = "AgentGroup"
)

// ValidKinds contains all valid definition kinds.
var ValidKinds = []string{
	KindAgent,
	KindAgentGroup,
}

// Restart policies accepted by the runtime.
const (
	RestartOnFailure = "on-failure"
	RestartAny       = "any"
	RestartNone      = "none"
)

// ValidRestartPolicies contains all valid restart policy values.
var ValidRestartPolicies = []string{
	RestartOnFailure,
	RestartAny,
	RestartNone,
}

func declarations(args []ArgumentDeclaration) ([]agentarg.Declaration, error) {
	decls := make([]agentarg.Declaration, 0, len(args))
	for _, a := range args {
		decl, err := a.Declaration()
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}
