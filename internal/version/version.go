// Package version reports build information for the sqlrun binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at build time with -ldflags "-X ...".
var (
	Version   = "0.3.0"
	GitCommit = "dev"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// Info contains all version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the version information. Values not set through ldflags are
// taken from the VCS stamp of the build when there is one.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withBuildSettings(info, bi.Settings)
	}

	return info
}

func withBuildSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "dev" && s.Value != "" {
				info.GitCommit = s.Value
				if len(info.GitCommit) > 12 {
					info.GitCommit = info.GitCommit[:12]
				}
			}
		case "vcs.time":
			if info.BuildDate == "unknown" && s.Value != "" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("sqlrun %s (commit: %s, built: %s, go: %s, %s/%s)",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.OS, i.Arch)
}

// Short returns the version only.
func (i Info) Short() string {
	return i.Version
}

// Full returns a detailed multi-line version string
func (i Info) Full() string {
	return fmt.Sprintf(`sqlrun %s
  Git Commit: %s
  Build Date: %s
  Go Version: %s
  OS/Arch:    %s/%s`,
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.OS, i.Arch)
}
