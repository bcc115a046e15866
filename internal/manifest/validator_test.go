package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestCatalog(t *testing.T) MapCatalog {
	t.Helper()
	catalog, err := LoadCatalog(testPath("catalog"))
	require.NoError(t, err)
	return catalog
}

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, issue := range issues {
		paths = append(paths, issue.Path)
	}
	return paths
}

func issueKeywords(issues []ValidationIssue) map[string]string {
	keywords := make(map[string]string, len(issues))
	for _, issue := range issues {
		keywords[issue.Path] = issue.Keyword
	}
	return keywords
}

func TestValidateFile_ValidDefinitions(t *testing.T) {
	validFiles := []string{
		"valid-agent.yaml",
		"valid-agent-group.yaml",
		"catalog/nmap.yaml",
		"catalog/tsunami.yaml",
	}

	for _, file := range validFiles {
		t.Run(file, func(t *testing.T) {
			result, err := ValidateFile(testPath(file))
			require.NoError(t, err)
			assert.True(t, result.Valid, "issues: %+v", result.Issues)
		})
	}
}

func TestValidateFile_InvalidDefinitions(t *testing.T) {
	invalidFiles := []struct {
		file string
		desc string
	}{
		{"invalid-missing-name.yaml", "missing required name field"},
		{"invalid-missing-kind.yaml", "missing required kind field"},
		{"invalid-bad-kind.yaml", "unknown kind value"},
		{"invalid-bad-restart-policy.yaml", "restart policy outside the enum"},
		{"invalid-arg-type.yaml", "argument type not in the registry"},
		{"invalid-default-value.yaml", "defaults that do not decode"},
		{"invalid-group-structure.yaml", "group member violates structure"},
		{"invalid-mixed-types.yaml", "wrong field shape next to cross-field errors"},
	}

	for _, tt := range invalidFiles {
		t.Run(tt.file, func(t *testing.T) {
			result, err := ValidateFile(testPath(tt.file))
			require.NoError(t, err)
			assert.False(t, result.Valid, tt.desc)
			assert.NotEmpty(t, result.Errors(), tt.desc)
		})
	}
}

func TestValidateFile_InvalidYAML(t *testing.T) {
	_, err := ValidateFile(testPath("invalid-not-yaml.yaml"))
	assert.Error(t, err)
}

func TestValidateFile_NotFound(t *testing.T) {
	_, err := ValidateFile(testPath("nonexistent.yaml"))
	assert.Error(t, err)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-many.yaml"))
	require.NoError(t, err)
	require.False(t, result.Valid)

	assert.ElementsMatch(t, []string{
		"/name",
		"/restart_policy",
		"/mem_limit",
		"/args/0/type",
		"/args/2/name",
		"/portmap/1/source_port",
	}, issuePaths(result.Errors()))
}

func TestValidate_WrongShapeKeepsCrossFieldChecks(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-mixed-types.yaml"))
	require.NoError(t, err)
	require.False(t, result.Valid)

	assert.Equal(t, map[string]string{
		"/mem_limit":   "type",
		"/args/0/type": "argType",
		"/args/1/name": "uniqueArgs",
	}, issueKeywords(result.Errors()))
}

func TestValidateAgentGroup_WrongShapeKeepsCrossFieldChecks(t *testing.T) {
	result, err := ValidateFile(testPath("group-mixed-types.yaml"))
	require.NoError(t, err)
	require.False(t, result.Valid)

	assert.Equal(t, map[string]string{
		"/agents/0/replicas":    "type",
		"/agents/0/args/0/type": "argTypeMismatch",
		"/agents/0/args/1/name": "uniqueArgs",
	}, issueKeywords(result.Errors()))
}

func TestValidate_MissingKindIsReported(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-missing-kind.yaml"))
	require.NoError(t, err)

	errs := result.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "/kind", errs[0].Path)
	assert.Equal(t, "required", errs[0].Keyword)
}

func TestValidate_RequiredSplitPerProperty(t *testing.T) {
	result, err := Validate([]byte("kind: Agent\nargs:\n  - description: nameless\n"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/name", "/args/0/name", "/args/0/type"}, issuePaths(result.Errors()))
}

func TestValidate_DefaultValues(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-default-value.yaml"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"/args/0/default_value": "defaultValue",
		"/args/1/default_value": "defaultValue",
	}, issueKeywords(result.Errors()))
}

func TestValidate_UnsupportedArgType(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-arg-type.yaml"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/args/0/type": "argType"}, issueKeywords(result.Errors()))
}

func TestValidate_IssueFields(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-bad-restart-policy.yaml"))
	require.NoError(t, err)
	require.False(t, result.Valid)

	issue := result.Issues[0]
	assert.Equal(t, "/restart_policy", issue.Path)
	assert.Equal(t, "enum", issue.Keyword)
	assert.NotEmpty(t, issue.Message)
	assert.Equal(t, SeverityError, issue.Severity)
}

func TestValidateAgentGroup_Structure(t *testing.T) {
	result, err := ValidateFile(testPath("invalid-group-structure.yaml"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/agents/0/key",
		"/agents/0/replicas",
		"/agents/0/restart_policy",
		"/agents/0/open_ports/0/src_port",
	}, issuePaths(result.Errors()))
}

func TestValidateAgentGroup_TypeConsistency(t *testing.T) {
	v := NewValidator(nil)
	data, err := readFile(testPath("group-type-mismatch.yaml"))
	require.NoError(t, err)

	result, err := v.ValidateAgentGroup(data, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/agents/0/args/0/type", "/agents/0/args/2/value"}, issuePaths(result.Errors()))

	// With the catalog, the member's ports argument is also checked against
	// the nmap definition, which declares it as an array.
	result, err = v.ValidateAgentGroup(data, loadTestCatalog(t))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/agents/0/args/0/type",
		"/agents/0/args/1/type",
		"/agents/0/args/2/value",
	}, issuePaths(result.Errors()))
}

func TestValidateAgentGroup_Selectors(t *testing.T) {
	v := NewValidator(nil)

	result, err := v.ValidateFile(testPath("group-dangling-selector.yaml"), loadTestCatalog(t))
	require.NoError(t, err)
	require.True(t, result.Valid, "selector issues must be advisory, got errors: %+v", result.Errors())

	assert.Equal(t, map[string]string{
		"/agents/2":     "selector",
		"/agents/3/key": "unknownAgent",
	}, issueKeywords(result.Warnings()))
}

func TestValidateAgentGroup_WiredGroupHasNoWarnings(t *testing.T) {
	v := NewValidator(nil)

	result, err := v.ValidateFile(testPath("valid-agent-group.yaml"), loadTestCatalog(t))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
}

func TestSelectorMatches(t *testing.T) {
	tests := []struct {
		in, out string
		want    bool
	}{
		{"v3.asset.ip", "v3.asset.ip", true},
		{"v3.asset.ip", "v3.asset.ip.v4", true},
		{"v3.asset.ip.v4", "v3.asset.ip", false},
		{"v3.asset.ip", "v3.asset.ipv6", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, selectorMatches(tt.in, tt.out), "selectorMatches(%q, %q)", tt.in, tt.out)
	}
}

func TestValidate_SchemaCompiles(t *testing.T) {
	schemas, err := getSchemas()
	require.NoError(t, err)
	for _, k := range ValidKinds {
		assert.NotNil(t, schemas[k], "no compiled schema for kind %q", k)
	}
}
