package settings

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/manifest"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BusConfig locates the message bus the instance connects to.
// Empty ManagementURL and Vhost leave the corresponding fields unset.
type BusConfig struct {
	URL           string
	ExchangeTopic string
	ManagementURL string
	Vhost         string
}

// ResourceConfig carries the launch resources chosen by the operator.
// Zero values fall back to the agent definition, then to the package defaults.
type ResourceConfig struct {
	Constraints     []string
	Mounts          []string
	RestartPolicy   string
	MemLimit        *int64
	OpenPorts       []PortMapping
	Replicas        int32
	HealthcheckHost string
	HealthcheckPort int32
}

// Request is the operator input for a single build.
type Request struct {
	// AgentKey identifies the agent, e.g. "agent/ostorlab/nmap". It defaults
	// to "agent/<definition name>".
	AgentKey string
	// Overrides maps argument names to native values.
	Overrides map[string]any
	// Required names arguments that must resolve to a value.
	Required  []string
	Bus       BusConfig
	Resources ResourceConfig
}

// GroupRequest is the operator input for building every member of a group.
type GroupRequest struct {
	Bus BusConfig
	// Resources supplies fallbacks for every member; member settings win.
	Resources ResourceConfig
}

// Builder resolves agent definitions into instance settings.
// A Builder is safe for concurrent use.
type Builder struct {
	codec  *agentarg.Codec
	logger *slog.Logger
	newKey func(agentKey string) string
}

// Option configures a Builder.
type Option func(*Builder)

// WithCodec sets the argument codec. Defaults to the default type registry.
func WithCodec(c *agentarg.Codec) Option {
	return func(b *Builder) { b.codec = c }
}

// WithLogger sets the logger used for resolution decisions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithKeyFunc replaces the instance key generator.
func WithKeyFunc(f func(agentKey string) string) Option {
	return func(b *Builder) { b.newKey = f }
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		codec:  agentarg.NewCodec(nil),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newKey: NewKey,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewKey returns a fresh instance key for agentKey.
func NewKey(agentKey string) string {
	return agentKey + keySeparator + uuid.NewString()
}

// Build resolves def and req into a validated settings value. The first
// argument that cannot be encoded or resolved aborts the build.
func (b *Builder) Build(def *manifest.AgentDefinition, req Request) (*AgentInstanceSettings, error) {
	if def == nil {
		return nil, errors.New("building settings: nil agent definition")
	}
	decls, err := def.Declarations()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w: %w", def.Name, agentarg.ErrInvalidDefault, err)
	}
	return b.build(def, decls, req)
}

func (b *Builder) build(def *manifest.AgentDefinition, decls []agentarg.Declaration, req Request) (*AgentInstanceSettings, error) {
	agentKey := req.AgentKey
	if agentKey == "" {
		if def.Name == "" {
			return nil, fmt.Errorf("building settings: %w: no agent key and no definition name", ErrInvalidSettings)
		}
		agentKey = "agent/" + def.Name
	}

	args, err := b.resolveArgs(agentKey, decls, req.Overrides, req.Required)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", agentKey, err)
	}

	res := req.Resources
	s := &AgentInstanceSettings{
		Key:              b.newKey(agentKey),
		BusURL:           req.Bus.URL,
		BusExchangeTopic: req.Bus.ExchangeTopic,
		BusManagementURL: optionalString(req.Bus.ManagementURL),
		BusVhost:         optionalString(req.Bus.Vhost),
		Args:             args,
		Constraints:      firstNonNil(res.Constraints, def.Constraints),
		Mounts:           firstNonNil(res.Mounts, def.Mounts),
		RestartPolicy:    firstNonEmpty(res.RestartPolicy, def.RestartPolicy, DefaultRestartPolicy),
		MemLimit:         cloneInt64(res.MemLimit, def.MemLimit),
		OpenPorts:        openPorts(res.OpenPorts, def.Portmap),
		Replicas:         res.Replicas,
		HealthcheckHost:  firstNonEmpty(res.HealthcheckHost, DefaultHealthcheckHost),
		HealthcheckPort:  res.HealthcheckPort,
	}
	if s.Replicas == 0 {
		s.Replicas = DefaultReplicas
	}
	if s.HealthcheckPort == 0 {
		s.HealthcheckPort = DefaultHealthcheckPort
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("building %s: %w", agentKey, err)
	}

	b.logger.Debug("built instance settings",
		slog.String("key", s.Key),
		slog.Int("args", len(s.Args)),
		slog.Int("replicas", int(s.Replicas)),
	)
	return s, nil
}

func (b *Builder) resolveArgs(agentKey string, decls []agentarg.Declaration, overrides map[string]any, required []string) ([]agentarg.Arg, error) {
	declared := make(map[string]bool, len(decls))
	for _, d := range decls {
		if declared[d.Name] {
			return nil, fmt.Errorf("%w: argument %q is declared more than once", ErrInvalidSettings, d.Name)
		}
		declared[d.Name] = true
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !declared[name] {
			return nil, fmt.Errorf("%w %q", ErrUnknownArgument, name)
		}
	}
	for _, name := range required {
		if !declared[name] {
			return nil, fmt.Errorf("%w %q: not declared", ErrMissingRequiredArgument, name)
		}
	}

	args := make([]agentarg.Arg, 0, len(decls))
	for _, d := range decls {
		if v, ok := overrides[d.Name]; ok {
			arg, err := b.codec.Build(d.Name, d.Type, v)
			if err != nil {
				return nil, err
			}
			b.logger.Debug("resolved argument", slog.String("agent", agentKey), slog.String("arg", d.Name), slog.String("source", "override"))
			args = append(args, arg)
			continue
		}
		if d.HasDefault() {
			arg, err := b.codec.ResolveDefault(d)
			if err != nil {
				return nil, err
			}
			b.logger.Debug("resolved argument", slog.String("agent", agentKey), slog.String("arg", d.Name), slog.String("source", "default"))
			args = append(args, arg)
			continue
		}
		if slices.Contains(required, d.Name) {
			return nil, fmt.Errorf("%w %q", ErrMissingRequiredArgument, d.Name)
		}
		b.logger.Debug("argument left unset", slog.String("agent", agentKey), slog.String("arg", d.Name))
	}
	return args, nil
}

// BuildGroup builds settings for every member of group, in member order.
// Members are resolved against catalog; a member missing from the catalog
// is built from the group and member argument lists alone. Argument values
// take precedence member value > group default > agent default.
func (b *Builder) BuildGroup(group *manifest.AgentGroupDefinition, catalog manifest.Catalog, req GroupRequest) ([]*AgentInstanceSettings, error) {
	if group == nil {
		return nil, errors.New("building group: nil group definition")
	}
	groupDecls, err := group.Declarations()
	if err != nil {
		return nil, fmt.Errorf("building group %s: %w: %w", group.Name, agentarg.ErrInvalidDefault, err)
	}

	out := make([]*AgentInstanceSettings, len(group.Agents))
	var g errgroup.Group
	for i, member := range group.Agents {
		i, member := i, member
		g.Go(func() error {
			s, err := b.buildMember(member, groupDecls, catalog, req)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building group %s: %w", group.Name, err)
	}

	seen := make(map[string]bool, len(out))
	for _, s := range out {
		if seen[s.Key] {
			return nil, fmt.Errorf("building group %s: %w: duplicate instance key %s", group.Name, ErrInvalidSettings, s.Key)
		}
		seen[s.Key] = true
	}
	return out, nil
}

func (b *Builder) buildMember(m manifest.GroupMember, groupDecls []agentarg.Declaration, catalog manifest.Catalog, req GroupRequest) (*AgentInstanceSettings, error) {
	var def *manifest.AgentDefinition
	if catalog != nil {
		def, _ = catalog.Lookup(m.Key)
	}
	known := def != nil
	if !known {
		def = &manifest.AgentDefinition{}
	}

	decls, err := def.Declarations()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", m.Key, agentarg.ErrInvalidDefault, err)
	}

	index := make(map[string]int, len(decls))
	for i, d := range decls {
		index[d.Name] = i
	}
	merge := func(d agentarg.Declaration, addUnknown bool) error {
		i, ok := index[d.Name]
		if !ok {
			if addUnknown {
				index[d.Name] = len(decls)
				decls = append(decls, d)
			}
			return nil
		}
		if decls[i].Type != d.Type {
			return fmt.Errorf("%s: %w: argument %q is %s for the agent but %s here", m.Key, ErrInvalidSettings, d.Name, decls[i].Type, d.Type)
		}
		if d.HasDefault() {
			decls[i].DefaultValue = d.DefaultValue
		}
		return nil
	}

	for _, gd := range groupDecls {
		if err := merge(gd, !known); err != nil {
			return nil, err
		}
	}
	overrides := make(map[string]any, len(m.Args))
	for _, a := range m.Args {
		if err := merge(agentarg.Declaration{Name: a.Name, Type: a.Type}, true); err != nil {
			return nil, err
		}
		overrides[a.Name] = a.Value
	}

	ports := make([]PortMapping, 0, len(m.OpenPorts))
	for _, p := range m.OpenPorts {
		ports = append(ports, PortMapping{SourcePort: p.SrcPort, DestinationPort: p.DestPort})
	}
	if len(ports) == 0 {
		ports = req.Resources.OpenPorts
	}

	res := ResourceConfig{
		Constraints:     firstNonNil(m.Constraints, req.Resources.Constraints),
		Mounts:          firstNonNil(m.Mounts, req.Resources.Mounts),
		RestartPolicy:   firstNonEmpty(m.RestartPolicy, req.Resources.RestartPolicy),
		MemLimit:        m.MemLimit,
		OpenPorts:       ports,
		Replicas:        m.Replicas,
		HealthcheckHost: req.Resources.HealthcheckHost,
		HealthcheckPort: req.Resources.HealthcheckPort,
	}
	if res.MemLimit == nil {
		res.MemLimit = req.Resources.MemLimit
	}
	if res.Replicas == 0 {
		res.Replicas = req.Resources.Replicas
	}

	return b.build(def, decls, Request{
		AgentKey:  m.Key,
		Overrides: overrides,
		Bus:       req.Bus,
		Resources: res,
	})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...[]string) []string {
	for _, v := range values {
		if v != nil {
			return slices.Clone(v)
		}
	}
	return nil
}

func cloneInt64(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			n := *v
			return &n
		}
	}
	return nil
}

func openPorts(explicit []PortMapping, portmap []manifest.PortMap) []PortMapping {
	if explicit != nil {
		return slices.Clone(explicit)
	}
	if len(portmap) == 0 {
		return nil
	}
	out := make([]PortMapping, 0, len(portmap))
	for _, p := range portmap {
		out = append(out, PortMapping{SourcePort: p.SourcePort, DestinationPort: p.DestinationPort})
	}
	return out
}
