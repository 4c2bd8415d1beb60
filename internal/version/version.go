package version

const Name = "FlowGuard"

var (
	Version = "0.1.0"
	// BuildTime and GitCommit are set with -ldflags at build time.
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Full returns the version with build metadata when it is known.
func Full() string {
	if BuildTime != "unknown" && GitCommit != "unknown" {
		return Version + " (commit: " + GitCommit + ", built: " + BuildTime + ")"
	}
	return Version
}
