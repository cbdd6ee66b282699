package versions

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than
// oldVersion. Non-semver strings compare lexicographically.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)
	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}
	return newSemver.GreaterThan(oldSemver)
}

// CacheName builds the versioned name of a cache, e.g. "dsi-placement-v1.1.0".
func CacheName(prefix, version string) string {
	return prefix + "-v" + strings.TrimPrefix(version, "v")
}

// CacheVersion extracts the version from a name built by CacheName. The
// second result is false when name does not belong to prefix.
func CacheVersion(prefix, name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"-v")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// IsStale reports whether name is a cache of prefix other than the one for
// current. Caches of other prefixes are never stale.
func IsStale(prefix, name, current string) bool {
	v, ok := CacheVersion(prefix, name)
	if !ok {
		return false
	}
	return v != strings.TrimPrefix(current, "v")
}
