// Package version reports build metadata injected with -ldflags.
package version

import (
	"runtime/debug"
	"strings"
)

var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
}

// Resolve fills anything -ldflags left empty from the embedded build info.
func Resolve() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

func String() string {
	info := Resolve()
	var b strings.Builder
	b.WriteString(info.Version)
	if info.Commit != "" {
		b.WriteString(" (" + shortCommit(info.Commit) + ")")
	}
	return b.String()
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
