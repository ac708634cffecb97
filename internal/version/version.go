// Package version carries build metadata stamped in at link time via
// -ldflags "-X github.com/sakuga-labs/scriptrag/internal/version.Version=...".
package version

// AppName is the canonical binary name.
const AppName = "scriptrag"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Full returns the version with commit and build date.
func Full() string {
	return Version + " (" + Commit + ") " + Date
}

// Short returns just the version string.
func Short() string {
	return Version
}

// UserAgent identifies scriptrag in outbound HTTP requests.
func UserAgent() string {
	return AppName + "/" + Version
}
