package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/agentx-labs/agentscan/internal/manifest"
	"github.com/spf13/cobra"
)

var errValidationFailed = errors.New("validation failed")

type fileResult struct {
	File   string                     `json:"file"`
	Result *manifest.ValidationResult `json:"result"`
}

func newValidateCmd() *cobra.Command {
	var (
		agentsDir string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate agent and agent group definitions",
		Long: `Validate agent and agent group definition files against their schemas and
the argument type registry. Every violation is reported, not just the first.

With --agents-dir, group members are resolved against the agent definitions
found in that directory: member argument types are checked against the
agent's declarations and selector wiring is reported as warnings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(agentsDir)
			if err != nil {
				return err
			}

			v := manifest.NewValidator(nil)
			results := make([]fileResult, 0, len(args))
			failed := false
			for _, path := range args {
				res, err := v.ValidateFile(path, catalog)
				if err != nil {
					return err
				}
				slog.Debug("validated definition", "file", path, "valid", res.Valid, "issues", len(res.Issues))
				if !res.Valid {
					failed = true
				}
				results = append(results, fileResult{File: path, Result: res})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				b, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling validation results: %w", err)
				}
				fmt.Fprintln(out, string(b))
			} else {
				for _, r := range results {
					printValidation(out, r.File, r.Result)
				}
			}

			if failed {
				return errValidationFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentsDir, "agents-dir", "", "Directory of agent definitions used to resolve group members")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func loadCatalog(dir string) (manifest.Catalog, error) {
	if dir == "" {
		return nil, nil
	}
	catalog, err := manifest.LoadCatalog(dir)
	if err != nil {
		return nil, err
	}
	slog.Debug("loaded agent catalog", "dir", dir, "agents", len(catalog))
	return catalog, nil
}

func printValidation(w io.Writer, file string, res *manifest.ValidationResult) {
	if res.Valid {
		fmt.Fprintf(w, "%s: valid\n", file)
	} else {
		fmt.Fprintf(w, "%s: invalid\n", file)
	}
	for _, issue := range res.Issues {
		path := issue.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(w, "  %-7s %s: %s (%s)\n", issue.Severity, path, issue.Message, issue.Keyword)
	}
}
