// Package version carries build metadata injected with -ldflags "-X".
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// UserAgent identifies kubesentry on outbound HTTP requests
func UserAgent() string {
	if Version == "dev" {
		return "kubesentry/dev+" + Commit
	}
	return "kubesentry/" + Version
}
