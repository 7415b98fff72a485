// Package version reports the RadioWave build identity.
package version

import "fmt"

// Set at build time with -ldflags "-X .../internal/version.Version=...".
var (
	Name      = "RadioWave"
	Version   = "1.0.0"
	BuildTime = ""
	GitCommit = ""
)

// Info is the build identity served at /api/v1/version.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// GetInfo returns the current build identity.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
}

// UserAgent is sent to the station directory.
func (i Info) UserAgent() string {
	return fmt.Sprintf("%s/%s", i.Name, i.Version)
}

// String formats the identity for the startup banner.
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}
