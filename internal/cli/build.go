package cli

import (
	"fmt"
	"log/slog"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/manifest"
	"github.com/agentx-labs/agentscan/internal/settings"
	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var (
		launch   launchFlags
		argPairs []string
		required []string
		agentKey string
		outPath  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "build <agent.yaml>",
		Short: "Build launch settings for one agent instance",
		Long: `Build the AgentInstanceSettings for one instance of an agent and write it
in the binary wire format (or the JSON mapping with --json).

Argument values come from --arg, then from the declared default_value.
Arguments named with --require must resolve to a value.

Examples:
  agentscan build agent.yaml --arg timeout=60 --out settings.pb
  agentscan build agent.yaml --arg 'ports=["80","443"]' --replicas 3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			res, err := manifest.ValidateFile(path)
			if err != nil {
				return err
			}
			if !res.Valid {
				printValidation(cmd.ErrOrStderr(), path, res)
				return errValidationFailed
			}

			def, err := manifest.ParseAgent(path)
			if err != nil {
				return err
			}
			if def.Kind != manifest.KindAgent {
				return fmt.Errorf("%s is a %s definition; use '%s group build'", path, def.Kind, cmd.Root().Name())
			}
			decls, err := def.Declarations()
			if err != nil {
				return fmt.Errorf("%w: %w", agentarg.ErrInvalidDefault, err)
			}
			overrides, err := parseOverrides(argPairs, decls)
			if err != nil {
				return err
			}
			bus, resources, err := launch.resolve(cmd)
			if err != nil {
				return err
			}

			b := settings.NewBuilder(settings.WithLogger(slog.Default()))
			s, err := b.Build(def, settings.Request{
				AgentKey:  agentKey,
				Overrides: overrides,
				Required:  required,
				Bus:       bus,
				Resources: resources,
			})
			if err != nil {
				return err
			}
			slog.Info("built instance settings", "key", s.Key, "args", len(s.Args))

			out, err := encodeSettings(s, asJSON)
			if err != nil {
				return err
			}
			return writeOutput(cmd, outPath, out)
		},
	}

	launch.register(cmd)
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "Argument override <name>=<value> (repeatable)")
	cmd.Flags().StringSliceVar(&required, "require", nil, "Arguments that must resolve to a value")
	cmd.Flags().StringVar(&agentKey, "key", "", "Agent key (default agent/<name>)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the JSON mapping instead of the binary wire format")
	return cmd
}
