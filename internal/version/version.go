// Package version reports the marktools release.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// Commit returns the VCS revision the binary was built from, shortened to
// 12 characters, or "" when the build carries no VCS stamp.
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

// String returns the one-line version banner.
func String() string {
	s := fmt.Sprintf("marktools %s (%s %s/%s)", Get(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if c := Commit(); c != "" {
		s += " commit " + c
	}
	return s
}
