package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Parse reads a definition file and returns only the base fields.
// Useful for quick kind detection without full parsing.
func Parse(path string) (*BaseDefinition, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var base BaseDefinition
	if err := yaml.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("parsing definition %s: %w", path, err)
	}

	return &base, nil
}

// ParseFile reads a definition file, detects its kind, and returns the
// fully typed struct: *AgentDefinition or *AgentGroupDefinition.
func ParseFile(path string) (interface{}, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data, path)
}

// ParseBytes is ParseFile for in-memory documents. name is used in errors.
func ParseBytes(data []byte, name string) (interface{}, error) {
	kind, err := detectKind(data)
	if err != nil {
		return nil, fmt.Errorf("detecting definition kind in %s: %w", name, err)
	}

	switch kind {
	case KindAgent:
		return parseTyped[AgentDefinition](data, name)
	case KindAgentGroup:
		return parseTyped[AgentGroupDefinition](data, name)
	default:
		return nil, fmt.Errorf("unknown definition kind %q in %s", kind, name)
	}
}

// ParseAgent reads a definition file and parses it as an AgentDefinition.
func ParseAgent(path string) (*AgentDefinition, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return parseTyped[AgentDefinition](data, path)
}

// ParseAgentGroup reads a definition file and parses it as an AgentGroupDefinition.
func ParseAgentGroup(path string) (*AgentGroupDefinition, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return parseTyped[AgentGroupDefinition](data, path)
}

// LoadCatalog parses every agent definition under dir (recursively) and
// indexes it by name. Files of other kinds are skipped.
func LoadCatalog(dir string) (MapCatalog, error) {
	catalog := make(MapCatalog)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		base, err := Parse(p)
		if err != nil {
			return err
		}
		if base.Kind != KindAgent {
			return nil
		}
		def, err := ParseAgent(p)
		if err != nil {
			return err
		}
		if def.Name == "" {
			return fmt.Errorf("agent definition %s has no name", p)
		}
		if _, dup := catalog[def.Name]; dup {
			return fmt.Errorf("duplicate agent %q in %s", def.Name, p)
		}
		catalog[def.Name] = def
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading agent catalog from %s: %w", dir, err)
	}
	return catalog, nil
}

// parseTyped unmarshals YAML data into a typed definition struct.
func parseTyped[T any](data []byte, path string) (*T, error) {
	var m T
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing definition %s: %w", path, err)
	}
	return &m, nil
}

// detectKind unmarshals YAML data into a generic map and extracts the kind field.
func detectKind(data []byte) (string, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("unmarshaling YAML: %w", err)
	}

	kindVal, ok := raw["kind"]
	if !ok {
		return "", fmt.Errorf("definition missing required 'kind' field")
	}

	kind, ok := kindVal.(string)
	if !ok {
		return "", fmt.Errorf("definition 'kind' field is not a string")
	}

	return kind, nil
}

func isYAML(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
