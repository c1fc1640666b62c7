// Package version exposes cozysyncd's build version, resolved from
// linker flags at release-build time or Go module/VCS metadata
// otherwise.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	AppName   = "cozysyncd"
	Version   = "0.1.0-dev"
	Revision  = "HEAD"
	BuildDate = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}

	settings := map[string]string{}
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if Version == "0.1.0-dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = strings.TrimPrefix(info.Main.Version, "v")
	}
	if Revision == "HEAD" {
		if r := settings["vcs.revision"]; r != "" {
			if settings["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}
	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

// Short returns a concise version string, e.g. "0.1.0-dev (5e23a4)".
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// Detailed returns a full version string including the Go toolchain and
// target platform.
func Detailed() string {
	return fmt.Sprintf("%s %s (%s; %s/%s; %s)", AppName, Short(), runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}
