package domain

import "strings"

// Diff path prefixes emitted by the platforms' patch formats.
const (
	// PathPrefixGitSource is the standard Git source prefix
	PathPrefixGitSource = "a/"
	// PathPrefixGitDestination is the standard Git destination prefix
	PathPrefixGitDestination = "b/"
)

// NormalizePath normalizes a file path by removing VCS diff prefixes and
// ensuring standard separators, so suggestions from different analysis
// passes key on the same path.
func NormalizePath(path string) string {
	// Standardize separators to forward slashes
	path = strings.ReplaceAll(path, "\\", "/")

	for _, p := range []string{PathPrefixGitSource, PathPrefixGitDestination} {
		path = strings.TrimPrefix(path, p)
	}

	return strings.TrimPrefix(path, "./")
}
