package manifest

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/agentx-labs/agentscan/internal/agentarg"
	"github.com/agentx-labs/agentscan/internal/argtype"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	KindAgent:      "agent.schema.json",
	KindAgentGroup: "agent_group.schema.json",
}

var (
	compiledSchemas map[string]*jsonschema.Schema
	compileOnce     sync.Once
	compileErr      error
	printer         = message.NewPrinter(language.English)
)

// Severity grades a validation issue. Only errors make a document invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationResult contains the outcome of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// ValidationIssue represents a single violation.
type ValidationIssue struct {
	Path     string   `json:"path"`    // Instance location (e.g., "/name", "/args/0/type")
	Keyword  string   `json:"keyword"` // Violation kind: a schema keyword or a cross-field rule
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Errors returns the issues that invalidate the document.
func (r *ValidationResult) Errors() []ValidationIssue {
	return r.filter(SeverityError)
}

// Warnings returns advisory issues.
func (r *ValidationResult) Warnings() []ValidationIssue {
	return r.filter(SeverityWarning)
}

func (r *ValidationResult) filter(s Severity) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == s {
			out = append(out, issue)
		}
	}
	return out
}

func (r *ValidationResult) errorf(path, keyword, format string, args ...any) {
	r.Issues = append(r.Issues, ValidationIssue{
		Path:     path,
		Keyword:  keyword,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	})
	r.Valid = false
}

func (r *ValidationResult) warnf(path, keyword, format string, args ...any) {
	r.Issues = append(r.Issues, ValidationIssue{
		Path:     path,
		Keyword:  keyword,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
	})
}

// getSchemas compiles the embedded JSON schemas once and returns them by kind.
func getSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, file := range schemaFiles {
			raw, err := schemaFS.ReadFile("schema/" + file)
			if err != nil {
				compileErr = fmt.Errorf("reading schema %s: %w", file, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				compileErr = fmt.Errorf("unmarshaling schema %s: %w", file, err)
				return
			}
			if err := c.AddResource(file, doc); err != nil {
				compileErr = fmt.Errorf("adding schema resource %s: %w", file, err)
				return
			}
		}

		schemas := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for k, file := range schemaFiles {
			s, err := c.Compile(file)
			if err != nil {
				compileErr = fmt.Errorf("compiling schema %s: %w", file, err)
				return
			}
			schemas[k] = s
		}
		compiledSchemas = schemas
	})
	return compiledSchemas, compileErr
}

// Validator checks definition documents structurally and against a type registry.
type Validator struct {
	codec *agentarg.Codec
}

// NewValidator returns a Validator that resolves argument types in types.
// A nil registry selects argtype.Default().
func NewValidator(types *argtype.Registry) *Validator {
	return &Validator{codec: agentarg.NewCodec(types)}
}

// Validate validates raw YAML bytes of any definition kind. members is used
// for agent group cross-checks and may be nil.
// The error return is for unreadable input or schema compilation failures.
// Validation issues are returned in the ValidationResult.
func (v *Validator) Validate(data []byte, members Catalog) (*ValidationResult, error) {
	k, err := detectKind(data)
	if err != nil {
		// Let the schema report the missing or malformed kind alongside
		// every other violation.
		var raw interface{}
		if yerr := yaml.Unmarshal(data, &raw); yerr != nil {
			return nil, fmt.Errorf("parsing YAML: %w", yerr)
		}
		return v.ValidateAgent(data)
	}

	switch k {
	case KindAgent:
		return v.ValidateAgent(data)
	case KindAgentGroup:
		return v.ValidateAgentGroup(data, members)
	default:
		result := &ValidationResult{Valid: true}
		result.errorf("/kind", "enum", "value must be one of %s", strings.Join(quoted(ValidKinds), ", "))
		return result, nil
	}
}

// ValidateFile reads a file and validates it.
func (v *Validator) ValidateFile(path string, members Catalog) (*ValidationResult, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return v.Validate(data, members)
}

// ValidateAgent validates an agent definition.
func (v *Validator) ValidateAgent(data []byte) (*ValidationResult, error) {
	result, err := validateStructure(KindAgent, data)
	if err != nil {
		return nil, err
	}

	// Cross-field checks need the typed form. Fields with the wrong shape are
	// left zero by the decoder and have already been reported by the schema.
	var def AgentDefinition
	if typedDecode(data, &def) {
		v.checkDeclarations("/args", def.Args, result)
		checkPorts("/portmap", "source_port", len(def.Portmap), func(i int) int32 { return def.Portmap[i].SourcePort }, result)
	}
	return result, nil
}

// ValidateAgentGroup validates an agent group definition. When members is
// non-nil, member argument types are checked against each agent's own
// declarations and selector wiring is checked (advisory).
func (v *Validator) ValidateAgentGroup(data []byte, members Catalog) (*ValidationResult, error) {
	result, err := validateStructure(KindAgentGroup, data)
	if err != nil {
		return nil, err
	}

	var group AgentGroupDefinition
	if typedDecode(data, &group) {
		v.checkGroup(&group, members, result)
	}
	return result, nil
}

// typedDecode decodes data into dst and reports whether the result is usable.
// A *yaml.TypeError still leaves every well-shaped field populated.
func typedDecode(data []byte, dst any) bool {
	err := yaml.Unmarshal(data, dst)
	var typeErr *yaml.TypeError
	return err == nil || errors.As(err, &typeErr)
}

func validateStructure(k string, data []byte) (*ValidationResult, error) {
	schemas, err := getSchemas()
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	// Unmarshal YAML to a generic structure.
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	// Convert YAML maps to JSON-compatible types and marshal to JSON,
	// then unmarshal with json.Number support for the schema validator.
	raw = normalizeYAML(raw)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("converting to JSON: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("preparing JSON for validation: %w", err)
	}

	if err := schemas[k].Validate(inst); err != nil {
		validationErr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return nil, fmt.Errorf("unexpected validation error type: %w", err)
		}
		return &ValidationResult{Valid: false, Issues: extractIssues(validationErr)}, nil
	}

	return &ValidationResult{Valid: true}, nil
}

func (v *Validator) checkDeclarations(base string, args []ArgumentDeclaration, result *ValidationResult) {
	seen := make(map[string]int, len(args))
	for i, a := range args {
		p := fmt.Sprintf("%s/%d", base, i)
		if a.Name != "" {
			if first, dup := seen[a.Name]; dup {
				result.errorf(p+"/name", "uniqueArgs", "argument %q is already declared at %s/%d", a.Name, base, first)
			} else {
				seen[a.Name] = i
			}
		}

		if a.Type == "" {
			continue
		}
		if !v.codec.Types().IsSupported(a.Type) {
			result.errorf(p+"/type", "argType", "unsupported argument type %q (supported: %s)", a.Type, strings.Join(v.codec.Types().Tags(), ", "))
			continue
		}

		if a.DefaultValue == nil {
			continue
		}
		decl, err := a.Declaration()
		if err != nil {
			result.errorf(p+"/default_value", "defaultValue", "default_value is not valid base64")
			continue
		}
		if _, err := v.codec.ResolveDefault(decl); err != nil {
			result.errorf(p+"/default_value", "defaultValue", "default_value does not decode as %s", a.Type)
		}
	}
}

func (v *Validator) checkGroup(group *AgentGroupDefinition, members Catalog, result *ValidationResult) {
	v.checkDeclarations("/args", group.Args, result)

	groupTypes := declaredTypes(group.Args)
	defs := make([]*AgentDefinition, len(group.Agents))

	for i, m := range group.Agents {
		mp := fmt.Sprintf("/agents/%d", i)

		var agentTypes map[string]string
		if members != nil && m.Key != "" {
			def, ok := members.Lookup(m.Key)
			if ok {
				defs[i] = def
				agentTypes = declaredTypes(def.Args)
			} else {
				result.warnf(mp+"/key", "unknownAgent", "agent %q is not in the catalog", m.Key)
			}
		}

		seen := make(map[string]int, len(m.Args))
		for j, a := range m.Args {
			ap := fmt.Sprintf("%s/args/%d", mp, j)
			if first, dup := seen[a.Name]; dup && a.Name != "" {
				result.errorf(ap+"/name", "uniqueArgs", "argument %q is already set at %s/args/%d", a.Name, mp, first)
			} else {
				seen[a.Name] = j
			}

			if a.Type == "" {
				continue
			}
			if !v.codec.Types().IsSupported(a.Type) {
				result.errorf(ap+"/type", "argType", "unsupported argument type %q", a.Type)
				continue
			}
			if t, ok := groupTypes[a.Name]; ok && t != a.Type {
				result.errorf(ap+"/type", "argTypeMismatch", "argument %q is declared by the group as %s, got %s", a.Name, t, a.Type)
			} else if t, ok := agentTypes[a.Name]; ok && t != a.Type {
				result.errorf(ap+"/type", "argTypeMismatch", "argument %q is declared by %s as %s, got %s", a.Name, m.Key, t, a.Type)
			}
			if _, err := v.codec.Build(a.Name, a.Type, a.Value); err != nil {
				result.errorf(ap+"/value", "argValue", "value is not a valid %s", a.Type)
			}
		}

		checkPorts(mp+"/open_ports", "src_port", len(m.OpenPorts), func(k int) int32 { return m.OpenPorts[k].SrcPort }, result)
	}

	if members != nil {
		checkSelectors(group, defs, result)
	}
}

// checkSelectors warns about member in_selectors that nothing in the group
// produces. Producers may live outside the group, so this never invalidates.
func checkSelectors(group *AgentGroupDefinition, defs []*AgentDefinition, result *ValidationResult) {
	for i, def := range defs {
		if def == nil {
			continue
		}
		for _, sel := range def.InSelectors {
			if producedByInput(sel, group.InSelectors) || producedByMember(sel, i, defs) {
				continue
			}
			result.warnf(fmt.Sprintf("/agents/%d", i), "selector",
				"in_selector %q of %s is not produced by any other member or the group input", sel, group.Agents[i].Key)
		}
	}
}

func producedByInput(sel string, inputs []string) bool {
	for _, in := range inputs {
		if selectorMatches(sel, in) || selectorMatches(in, sel) {
			return true
		}
	}
	return false
}

func producedByMember(sel string, self int, defs []*AgentDefinition) bool {
	for j, other := range defs {
		if j == self || other == nil {
			continue
		}
		for _, out := range other.OutSelectors {
			if selectorMatches(sel, out) {
				return true
			}
		}
	}
	return false
}

// selectorMatches reports whether a subscriber on in receives messages
// emitted under out. Selectors are hierarchical: v3.asset receives v3.asset.ip.
func selectorMatches(in, out string) bool {
	return out == in || strings.HasPrefix(out, in+".")
}

func checkPorts(base, field string, n int, source func(int) int32, result *ValidationResult) {
	seen := make(map[int32]int, n)
	for i := 0; i < n; i++ {
		port := source(i)
		if port == 0 {
			continue
		}
		if first, dup := seen[port]; dup {
			result.errorf(fmt.Sprintf("%s/%d/%s", base, i, field), "uniquePorts", "port %d is already mapped at %s/%d", port, base, first)
			continue
		}
		seen[port] = i
	}
}

func declaredTypes(args []ArgumentDeclaration) map[string]string {
	types := make(map[string]string, len(args))
	for _, a := range args {
		if a.Name != "" && a.Type != "" {
			types[a.Name] = a.Type
		}
	}
	return types
}

// extractIssues walks the ValidationError tree and returns leaf-level issues.
func extractIssues(ve *jsonschema.ValidationError) []ValidationIssue {
	var issues []ValidationIssue
	collectValidationIssues(ve, &issues)

	if len(issues) == 0 {
		return []ValidationIssue{{
			Message:  ve.Error(),
			Severity: SeverityError,
		}}
	}
	return deduplicateIssues(issues)
}

// collectValidationIssues recursively walks the error tree to find leaf errors
// with specific property information. Failures naming several properties
// (required, additionalProperties) are split into one issue per property.
func collectValidationIssues(ve *jsonschema.ValidationError, issues *[]ValidationIssue) {
	if len(ve.Causes) == 0 {
		// Leaf error.
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		if len(ve.InstanceLocation) == 0 {
			path = ""
		}

		keyword := ""
		if ve.ErrorKind != nil {
			kwPath := ve.ErrorKind.KeywordPath()
			if len(kwPath) > 0 {
				keyword = kwPath[len(kwPath)-1]
			}
		}

		// Skip generic container errors that aren't informative.
		if keyword == "oneOf" || keyword == "allOf" || keyword == "$ref" || keyword == "" {
			return
		}

		switch k := ve.ErrorKind.(type) {
		case *kind.Required:
			for _, name := range k.Missing {
				*issues = append(*issues, ValidationIssue{
					Path:     path + "/" + name,
					Message:  fmt.Sprintf("missing property %q", name),
					Keyword:  keyword,
					Severity: SeverityError,
				})
			}
			return
		case *kind.AdditionalProperties:
			for _, name := range k.Properties {
				*issues = append(*issues, ValidationIssue{
					Path:     path + "/" + name,
					Message:  fmt.Sprintf("additional property %q not allowed", name),
					Keyword:  keyword,
					Severity: SeverityError,
				})
			}
			return
		}

		*issues = append(*issues, ValidationIssue{
			Path:     path,
			Message:  ve.ErrorKind.LocalizedString(printer),
			Keyword:  keyword,
			Severity: SeverityError,
		})
		return
	}

	for _, cause := range ve.Causes {
		collectValidationIssues(cause, issues)
	}
}

// deduplicateIssues removes duplicate issues (same path + keyword + message).
func deduplicateIssues(issues []ValidationIssue) []ValidationIssue {
	seen := make(map[string]bool)
	var result []ValidationIssue
	for _, issue := range issues {
		key := issue.Path + "|" + issue.Keyword + "|" + issue.Message
		if !seen[key] {
			seen[key] = true
			result = append(result, issue)
		}
	}
	return result
}

// normalizeYAML recursively converts YAML-decoded values to JSON-compatible types.
// Maps with non-string keys are re-keyed with their string form.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, v := range val {
			m[k] = normalizeYAML(v)
		}
		return m
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, v := range val {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case []interface{}:
		a := make([]interface{}, len(val))
		for i, v := range val {
			a[i] = normalizeYAML(v)
		}
		return a
	default:
		return val
	}
}

func quoted(values []string) []string {
	out := make([]string, len(values))
	for i, s := range values {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

var defaultValidator = NewValidator(nil)

// Validate validates raw YAML bytes with the default type registry.
func Validate(data []byte) (*ValidationResult, error) {
	return defaultValidator.Validate(data, nil)
}

// ValidateFile reads a file and validates it with the default type registry.
func ValidateFile(path string) (*ValidationResult, error) {
	return defaultValidator.ValidateFile(path, nil)
}
