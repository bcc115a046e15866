package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"

	"github.com/agentx-labs/agentscan/internal/manifest"
	"github.com/agentx-labs/agentscan/internal/scaffold"
	"github.com/spf13/cobra"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func newCreateCmd() *cobra.Command {
	var (
		outputDir    string
		organization string
		description  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Scaffold a new agent or agent group definition",
	}
	cmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "Output directory (default: ./<name>)")
	cmd.PersistentFlags().StringVar(&organization, "org", "", "Organization in the agent key agent/<org>/<name> (required)")
	cmd.PersistentFlags().StringVar(&description, "description", "", "Description")

	generate := func(cmd *cobra.Command, kind, name string) error {
		if err := validateName(name); err != nil {
			return err
		}
		if organization == "" {
			return fmt.Errorf("--org is required")
		}
		if err := validateName(organization); err != nil {
			return fmt.Errorf("invalid organization: %w", err)
		}

		data := scaffold.NewData(name, organization)
		if description != "" {
			data.Description = description
		}
		dir := outputDir
		if dir == "" {
			dir = filepath.Join(".", name)
		}

		result, err := scaffold.Generate(kind, data, dir)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), kind, result)
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "agent <name>",
		Short: "Scaffold a new agent definition",
		Long: `Scaffold an agent definition, Dockerfile and README.

Example:
  agentscan create agent nmap --org ostorlab`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generate(cmd, manifest.KindAgent, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
			fmt.Fprintln(cmd.OutOrStdout(), "  1. Edit agent.yaml to declare selectors and arguments")
			fmt.Fprintln(cmd.OutOrStdout(), "  2. Run 'agentscan validate agent.yaml'")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "group <name>",
		Short: "Scaffold a new agent group definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(cmd, manifest.KindAgentGroup, args[0])
		},
	})
	return cmd
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q: must match pattern %s", name, namePattern)
	}
	return nil
}

func printResult(w io.Writer, kind string, result *scaffold.Result) {
	fmt.Fprintf(w, "Created %s at %s/\n", kind, result.OutputDir)
	for _, f := range result.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, msg := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
}
