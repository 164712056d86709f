package utils

import (
	"strings"

	"github.com/hashicorp/go-version"
)

const (
	VersionStatusCurrent    = "current"
	VersionStatusOutdated   = "outdated"
	VersionStatusDeprecated = "deprecated"
	VersionStatusUnknown    = "unknown"
)

// VersionConfig holds monerod version requirements
type VersionConfig struct {
	CurrentStable string
	MinSupported  string
}

// CleanDaemonVersion strips the "v" prefix and the build tag from a monerod
// version string ("0.18.3.4-release" -> "0.18.3.4").
func CleanDaemonVersion(v string) string {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "v"))
	if i := strings.IndexAny(v, "- ("); i >= 0 {
		v = v[:i]
	}
	return v
}

// CheckVersionStatus grades a daemon version against the configured releases.
// Without a config the status is unknown.
func CheckVersionStatus(daemonVersion string, config *VersionConfig) (status string, needsUpgrade bool) {
	if config == nil {
		return VersionStatusUnknown, false
	}

	daemonVer, err := version.NewVersion(CleanDaemonVersion(daemonVersion))
	if err != nil {
		return VersionStatusUnknown, false
	}

	if minSupported, err := version.NewVersion(config.MinSupported); err == nil && daemonVer.LessThan(minSupported) {
		return VersionStatusDeprecated, true
	}

	if current, err := version.NewVersion(config.CurrentStable); err == nil && daemonVer.LessThan(current) {
		return VersionStatusOutdated, true
	}

	return VersionStatusCurrent, false
}
