package version

// Version is the current released version.
// Overridable at build time:
//
//	go build -ldflags "-X github.com/safartrip/safarbot/internal/version.Version=v1.2.0"
var Version = "0.0.0-dev"

// DevVersion is the current development version.
var DevVersion = Version

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}
