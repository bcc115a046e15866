package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/settings"
	"github.com/agentx-labs/agentscan/internal/wire"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		asJSON bool
		images []string
		tagRe  string
	)

	cmd := &cobra.Command{
		Use:   "inspect <settings-file>",
		Short: "Decode a serialized settings file",
		Long: `Decode an AgentInstanceSettings file written by build (binary or JSON) and
print its fields with every argument decoded under its declared type.

With --image, the container image to launch is resolved from the given
image references (name:tag), picking the highest v<semver> tag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			s, err := decodeSettings(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				b, err := wire.MarshalJSON(s)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}

			if err := printSettings(out, s); err != nil {
				return err
			}
			if len(images) > 0 {
				image, err := s.ContainerImage(images, tagRe)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "image:              %s\n", image)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the JSON mapping")
	cmd.Flags().StringArrayVar(&images, "image", nil, "Available image reference name:tag (repeatable)")
	cmd.Flags().StringVar(&tagRe, "version-pattern", "", "Regular expression the image tag must match")
	return cmd
}

// decodeSettings accepts either the binary wire format or its JSON mapping.
func decodeSettings(data []byte) (*settings.AgentInstanceSettings, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return wire.UnmarshalJSON(trimmed)
	}
	return wire.Unmarshal(data)
}

func printSettings(w io.Writer, s *settings.AgentInstanceSettings) error {
	row := func(label, value string) {
		fmt.Fprintf(w, "%-19s %s\n", label+":", value)
	}

	row("key", s.Key)
	row("agent", s.AgentKey())
	row("bus_url", s.BusURL)
	row("bus_exchange_topic", s.BusExchangeTopic)
	if s.BusManagementURL != nil {
		row("bus_management_url", *s.BusManagementURL)
	}
	if s.BusVhost != nil {
		row("bus_vhost", *s.BusVhost)
	}
	row("restart_policy", s.RestartPolicy)
	row("replicas", fmt.Sprint(s.Replicas))
	if s.MemLimit != nil {
		row("mem_limit", fmt.Sprint(*s.MemLimit))
	}
	row("healthcheck", fmt.Sprintf("%s:%d", s.HealthcheckHost, s.HealthcheckPort))
	if len(s.Constraints) > 0 {
		row("constraints", strings.Join(s.Constraints, ", "))
	}
	if len(s.Mounts) > 0 {
		row("mounts", strings.Join(s.Mounts, ", "))
	}
	for _, p := range s.OpenPorts {
		row("port", fmt.Sprintf("%d -> %d", p.SourcePort, p.DestinationPort))
	}

	if len(s.Args) > 0 {
		fmt.Fprintln(w, "args:")
	}
	for _, a := range s.Args {
		v, err := agentarg.Read(a)
		if err != nil {
			return fmt.Errorf("decoding argument %q: %w", a.Name, err)
		}
		fmt.Fprintf(w, "  %s (%s) = %s\n", a.Name, a.Type, formatValue(v))
	}
	return nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case []byte:
		return fmt.Sprintf("%d bytes", len(t))
	case string:
		return fmt.Sprintf("%q", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
