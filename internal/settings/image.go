package settings

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var ErrImageNotFound = errors.New("no matching container image")

// ImageName returns the container image name for an agent key:
// "agent/ostorlab/nmap" becomes "agent_ostorlab_nmap".
func ImageName(agentKey string) string {
	return strings.ReplaceAll(agentKey, "/", "_")
}

// ContainerImage picks the image reference to launch from the locally
// available image references (name:tag). Tags are expected in v<semver>
// form; the highest version wins. A non-empty versionPattern is a regular
// expression the tag must match from its start.
func (s *AgentInstanceSettings) ContainerImage(available []string, versionPattern string) (string, error) {
	return ResolveImage(s.AgentKey(), available, versionPattern)
}

// ResolveImage is ContainerImage for a bare agent key.
func ResolveImage(agentKey string, available []string, versionPattern string) (string, error) {
	image := ImageName(agentKey)

	var pattern *regexp.Regexp
	if versionPattern != "" {
		p, err := regexp.Compile("^(?:" + versionPattern + ")")
		if err != nil {
			return "", fmt.Errorf("compiling version pattern %q: %w", versionPattern, err)
		}
		pattern = p
	}

	var (
		best    *semver.Version
		bestTag string
	)
	for _, ref := range available {
		name, tag, ok := strings.Cut(ref, ":")
		if !ok || name != image {
			continue
		}
		if pattern != nil && !pattern.MatchString(tag) {
			continue
		}
		v, err := parseSemver(tag)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestTag = v, tag
		}
	}

	if best == nil {
		return "", fmt.Errorf("%w for %s", ErrImageNotFound, agentKey)
	}
	return image + ":" + bestTag, nil
}

// parseSemver parses a v-prefixed tag. Tags without the prefix are rejected.
func parseSemver(tag string) (*semver.Version, error) {
	version, ok := strings.CutPrefix(tag, "v")
	if !ok {
		return nil, fmt.Errorf("tag %q is not v-prefixed", tag)
	}
	return semver.NewVersion(version)
}
