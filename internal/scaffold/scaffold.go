package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/agentx-labs/agentscan/internal/manifest"
)

//go:embed templates
var templateFS embed.FS

// Kinds that can be scaffolded, mapped to their template set.
var templateSets = map[string]string{
	manifest.KindAgent:      "agent",
	manifest.KindAgentGroup: "group",
}

// Data holds all template variables available to scaffold templates.
type Data struct {
	Name         string // e.g., "nmap"
	Organization string // e.g., "ostorlab"
	Key          string // Derived: agent/<organization>/<name>
	Description  string
	Version      string // Semver, e.g., "0.1.0"
	License      string
	InSelectors  []string
	OutSelectors []string
	Year         int
}

// Result holds the outcome of a scaffold generation.
type Result struct {
	OutputDir string
	Files     []string
	Warnings  []string
}

// NewData creates a Data with derived fields populated.
func NewData(name, organization string) *Data {
	return &Data{
		Name:         name,
		Organization: organization,
		Key:          fmt.Sprintf("agent/%s/%s", organization, name),
		Description:  fmt.Sprintf("Agent %s", name),
		Version:      "0.1.0",
		License:      "Apache-2.0",
		InSelectors:  []string{"v3.asset.ip"},
		OutSelectors: []string{"v3.report.vulnerability"},
		Year:         time.Now().Year(),
	}
}

// ManifestFile returns the definition file name produced for a kind.
func ManifestFile(kind string) string {
	if kind == manifest.KindAgentGroup {
		return "group.yaml"
	}
	return "agent.yaml"
}

// Generate renders the template set for kind into outputDir, which must be
// empty or missing. The generated definition is validated; issues are
// reported as warnings.
func Generate(kind string, data *Data, outputDir string) (*Result, error) {
	set, ok := templateSets[kind]
	if !ok {
		return nil, fmt.Errorf("no templates for kind %q", kind)
	}
	templatesDir := path.Join("templates", set)

	entries, err := fs.ReadDir(templateFS, templatesDir)
	if err != nil {
		return nil, fmt.Errorf("template set %q not found: %w", set, err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	// Refuse to overwrite existing work.
	existing, err := os.ReadDir(outputDir)
	if err == nil && len(existing) > 0 {
		return nil, fmt.Errorf("output directory %s is not empty; remove existing files first", outputDir)
	}

	result := &Result{OutputDir: outputDir}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		tmplPath := path.Join(templatesDir, entry.Name())
		tmplBytes, err := fs.ReadFile(templateFS, tmplPath)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", tmplPath, err)
		}

		tmpl, err := template.New(entry.Name()).Parse(string(tmplBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", entry.Name(), err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("executing template %s: %w", entry.Name(), err)
		}

		outName := strings.TrimSuffix(entry.Name(), ".tmpl")
		outPath := filepath.Join(outputDir, outName)
		if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", outPath, err)
		}

		result.Files = append(result.Files, outName)
	}

	manifestPath := filepath.Join(outputDir, ManifestFile(kind))
	valResult, valErr := manifest.ValidateFile(manifestPath)
	if valErr != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Could not validate definition: %v", valErr))
	} else {
		for _, issue := range valResult.Issues {
			msg := issue.Message
			if issue.Path != "" {
				msg = issue.Path + ": " + msg
			}
			result.Warnings = append(result.Warnings, msg)
		}
	}

	return result, nil
}
