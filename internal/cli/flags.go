package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/argtype"
	"github.com/agentx-labs/agentscan/internal/config"
	"github.com/agentx-labs/agentscan/internal/settings"
	"github.com/agentx-labs/agentscan/internal/wire"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

// launchFlags are the bus and resource flags shared by build and group build.
type launchFlags struct {
	busURL           string
	busTopic         string
	busManagementURL string
	busVhost         string
	restartPolicy    string
	replicas         int32
	memLimit         int64
	ports            []string
	constraints      []string
	mounts           []string
	healthcheckHost  string
	healthcheckPort  int32
}

func (f *launchFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.busURL, "bus-url", "", "Message bus URL (default from config bus.url)")
	fs.StringVar(&f.busTopic, "bus-topic", "", "Bus exchange topic (default from config bus.exchange_topic)")
	fs.StringVar(&f.busManagementURL, "bus-management-url", "", "Bus management API URL")
	fs.StringVar(&f.busVhost, "bus-vhost", "", "Bus virtual host")
	fs.StringVar(&f.restartPolicy, "restart-policy", "", "Restart policy: on-failure, any or none")
	fs.Int32Var(&f.replicas, "replicas", 0, "Number of replicas")
	fs.Int64Var(&f.memLimit, "mem-limit", 0, "Memory limit in bytes")
	fs.StringArrayVar(&f.ports, "port", nil, "Port mapping <source>:<destination> (repeatable)")
	fs.StringArrayVar(&f.constraints, "constraint", nil, "Placement constraint (repeatable)")
	fs.StringArrayVar(&f.mounts, "mount", nil, "Mount <host>:<container> (repeatable)")
	fs.StringVar(&f.healthcheckHost, "healthcheck-host", "", "Health check host (default from config healthcheck.host)")
	fs.Int32Var(&f.healthcheckPort, "healthcheck-port", 0, "Health check port (default from config healthcheck.port)")
}

// resolve merges the flags over the loaded configuration. Flags that were
// not given leave the corresponding value to the definition or defaults.
func (f *launchFlags) resolve(cmd *cobra.Command) (settings.BusConfig, settings.ResourceConfig, error) {
	changed := cmd.Flags().Changed

	bus := config.Bus()
	if changed("bus-url") {
		bus.URL = f.busURL
	}
	if changed("bus-topic") {
		bus.ExchangeTopic = f.busTopic
	}
	if changed("bus-management-url") {
		bus.ManagementURL = f.busManagementURL
	}
	if changed("bus-vhost") {
		bus.Vhost = f.busVhost
	}

	var res settings.ResourceConfig
	res.RestartPolicy = f.restartPolicy
	res.Replicas = f.replicas
	if changed("mem-limit") {
		n := f.memLimit
		res.MemLimit = &n
	}
	if changed("constraint") {
		res.Constraints = f.constraints
	}
	if changed("mount") {
		res.Mounts = f.mounts
	}
	if changed("port") {
		ports, err := parsePorts(f.ports)
		if err != nil {
			return bus, res, err
		}
		res.OpenPorts = ports
	}

	res.HealthcheckHost, res.HealthcheckPort = config.Healthcheck()
	if changed("healthcheck-host") {
		res.HealthcheckHost = f.healthcheckHost
	}
	if changed("healthcheck-port") {
		res.HealthcheckPort = f.healthcheckPort
	}
	return bus, res, nil
}

func parsePorts(values []string) ([]settings.PortMapping, error) {
	ports := make([]settings.PortMapping, 0, len(values))
	for _, v := range values {
		src, dst, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("invalid port mapping %q: want <source>:<destination>", v)
		}
		s, err := strconv.ParseInt(src, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid source port in %q: %w", v, err)
		}
		d, err := strconv.ParseInt(dst, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid destination port in %q: %w", v, err)
		}
		ports = append(ports, settings.PortMapping{SourcePort: int32(s), DestinationPort: int32(d)})
	}
	return ports, nil
}

// parseOverrides turns name=value pairs into native values. Values are YAML
// scalars or flow collections, except for string and binary arguments whose
// value is taken literally.
func parseOverrides(pairs []string, decls []agentarg.Declaration) (map[string]any, error) {
	types := make(map[string]string, len(decls))
	for _, d := range decls {
		types[d.Name] = d.Type
	}

	overrides := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q: want <name>=<value>", p)
		}

		switch types[name] {
		case argtype.TypeString:
			overrides[name] = raw
		case argtype.TypeBinary:
			overrides[name] = []byte(raw)
		default:
			var v any
			if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("parsing value of argument %q: %w", name, err)
			}
			overrides[name] = v
		}
	}
	return overrides, nil
}

// encodeSettings renders s in the binary wire format, or the JSON mapping.
func encodeSettings(s *settings.AgentInstanceSettings, asJSON bool) ([]byte, error) {
	if asJSON {
		b, err := wire.MarshalJSON(s)
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	return wire.Marshal(s)
}

func writeOutput(cmd *cobra.Command, path string, b []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(b)
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
