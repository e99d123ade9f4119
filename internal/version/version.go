// Package version provides build-time version information for the application.
package version

import "runtime"

var (
	// Version is the release tag, set with -ldflags at build time
	Version = "dev"
	// Commit is the git commit hash
	Commit = "dev"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Info is the version block reported by the admin API and the adm CLI
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information for service
func Get(service string) Info {
	return Info{
		Service:   service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String formats the info on one line for CLI output
func (i Info) String() string {
	return i.Service + " " + i.Version + " (commit " + i.Commit + ", built " + i.BuildTime + ", " + i.GoVersion + ")"
}
