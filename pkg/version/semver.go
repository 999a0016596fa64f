// Package version provides build version information and semver utilities.
package version

import (
	"github.com/Masterminds/semver/v3"
)

var (
	parsedVersion  *semver.Version
	parseAttempted bool
)

// resetParsedVersion clears the cached parsed version for testing.
func resetParsedVersion() {
	parsedVersion = nil
	parseAttempted = false
}

// Parsed returns the parsed semantic version, or nil if unparseable.
// This is computed lazily on first call and cached.
func Parsed() *semver.Version {
	if parsedVersion != nil || parseAttempted {
		return parsedVersion
	}
	parseAttempted = true

	v, err := semver.NewVersion(Version)
	if err != nil {
		return nil
	}
	parsedVersion = v
	return parsedVersion
}

// IsPrerelease returns true if the current version is a pre-release.
// Returns false for unparseable versions (like "dev").
func IsPrerelease() bool {
	v := Parsed()
	if v == nil {
		return false
	}
	return v.Prerelease() != ""
}

// IsDevBuild returns true if this is a development build (no valid semver).
func IsDevBuild() bool {
	return Parsed() == nil
}

// CompareContent compares two content version strings.
// Returns -1 if a < b, 0 if equal, 1 if a > b.
// Both versions must parse as semver for an ordered comparison; otherwise
// the result is 0 for equal strings and 1 for any difference, so callers
// treat an unparseable mismatch as "changed".
func CompareContent(a, b string) int {
	av, errA := semver.NewVersion(a)
	bv, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		if a == b {
			return 0
		}
		return 1
	}
	return av.Compare(bv)
}

// ContentNewer returns true if version a is strictly newer than version b.
// Non-semver versions compare by inequality: any change counts as newer.
func ContentNewer(a, b string) bool {
	if b == "" {
		return a != ""
	}
	return CompareContent(a, b) > 0
}
