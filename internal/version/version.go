// Package version resolves the version string the bridge reports for itself.
//
// Precedence: the first line of the configured version file, then the value
// stamped in at link time, then the module build information.
package version

import (
	"bufio"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

// devBuild is the link-time placeholder for unstamped builds.
const devBuild = "dev"

// Resolve returns the process version.
//
// Parameters:
//   - versionFile: Path to a file whose first line is the version; may be empty
//   - build: Version stamped via -ldflags; "dev" or empty when unstamped
//
// Returns:
//   - string: Never empty
func Resolve(versionFile, build string) string {
	if v := readFirstLine(versionFile); v != "" {
		return v
	}
	if build != "" && build != devBuild {
		return build
	}
	if v := versioninfo.Short(); v != "" {
		return v
	}
	return devBuild
}

// Commit returns the VCS revision from build information, or "unknown".
func Commit() string {
	return versioninfo.Revision
}

func readFirstLine(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path) //nolint:gosec // Path comes from trusted configuration
	if err != nil {
		return ""
	}
	defer f.Close() //nolint:errcheck // Read-only file

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return ""
	}
	return strings.TrimSpace(sc.Text())
}
