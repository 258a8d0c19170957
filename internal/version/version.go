// Package version holds the build identity stamped into the codemind binary.
package version

// Overridden at release time via ldflags, e.g.
// -X codemind/internal/version.Version=1.2.0
// -X codemind/internal/version.Commit=$(git rev-parse HEAD)
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version, with an abbreviated commit when one was stamped in
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the multi-line form used by verbose version output
func Full() string {
	return "codemind version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
