package global

import (
	"fmt"
	"runtime/debug"
)

const Version = "v0.1.0"

// vcsInfo reads revision of the build, "N/A" for builds outside of a repository
func vcsInfo() (revision, modified string) {
	revision, modified = "N/A", "N/A"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			modified = s.Value
		}
	}
	return
}

// VersionString is version with the build revision, as printed by 'dagnode --version'
func VersionString() string {
	revision, modified := vcsInfo()
	return fmt.Sprintf("%s (rev %s, %s)", Version, revision, modified)
}

func BannerString() string {
	return "starting DAG node " + VersionString()
}
