// Package buildinfo carries version stamps set at link time:
//
//	go build -ldflags "-X github.com/YouMeAI/YouMeCare/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/YouMeAI/YouMeCare/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/YouMeAI/YouMeCare/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the build stamp reported by the startup log line and /stats.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date,omitempty"`
}

// Read returns the linked stamps. Unset commit and date fall back to the
// VCS data the go tool embeds, then to "local".
func Read() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			case s.Key == "vcs.time" && info.Date == "":
				info.Date = s.Value
			}
		}
	}
	if info.Commit == "" {
		info.Commit = "local"
	}
	return info
}
