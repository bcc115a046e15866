package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentx-labs/agentscan/internal/manifest"
	"github.com/agentx-labs/agentscan/internal/settings"
	"github.com/spf13/cobra"
)

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Work with agent groups",
	}
	cmd.AddCommand(newGroupBuildCmd())
	return cmd
}

func newGroupBuildCmd() *cobra.Command {
	var (
		launch    launchFlags
		agentsDir string
		outDir    string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "build <group.yaml>",
		Short: "Build launch settings for every member of an agent group",
		Long: `Build one AgentInstanceSettings per group member and write each to --out-dir.

Member argument values win over group defaults, which win over the agent's
own defaults. Members are resolved against --agents-dir when given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			catalog, err := loadCatalog(agentsDir)
			if err != nil {
				return err
			}
			res, err := manifest.NewValidator(nil).ValidateFile(path, catalog)
			if err != nil {
				return err
			}
			if !res.Valid {
				printValidation(cmd.ErrOrStderr(), path, res)
				return errValidationFailed
			}
			for _, w := range res.Warnings() {
				slog.Warn(w.Message, "path", w.Path, "keyword", w.Keyword)
			}

			group, err := manifest.ParseAgentGroup(path)
			if err != nil {
				return err
			}
			if group.Kind != manifest.KindAgentGroup {
				return fmt.Errorf("%s is a %s definition, not %s", path, group.Kind, manifest.KindAgentGroup)
			}
			bus, resources, err := launch.resolve(cmd)
			if err != nil {
				return err
			}

			b := settings.NewBuilder(settings.WithLogger(slog.Default()))
			built, err := b.BuildGroup(group, catalog, settings.GroupRequest{Bus: bus, Resources: resources})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			ext := ".pb"
			if asJSON {
				ext = ".json"
			}
			for i, s := range built {
				data, err := encodeSettings(s, asJSON)
				if err != nil {
					return err
				}
				name := fmt.Sprintf("%02d-%s%s", i, settings.ImageName(s.AgentKey()), ext)
				file := filepath.Join(outDir, name)
				if err := os.WriteFile(file, data, 0644); err != nil {
					return fmt.Errorf("writing %s: %w", file, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Key, file)
			}
			slog.Info("built group settings", "group", group.Name, "members", len(built))
			return nil
		},
	}

	launch.register(cmd)
	cmd.Flags().StringVar(&agentsDir, "agents-dir", "", "Directory of agent definitions used to resolve members")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory to write one settings file per member")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the JSON mapping instead of the binary wire format")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}
