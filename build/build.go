// Package build exposes metadata about the running binary.
package build

import (
	"runtime/debug"
	"time"
)

// Version returns the version of the binary.
func Version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "?"
	}
	return bi.Main.Version
}

// Commit returns the commit hash the binary was built from.
func Commit() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "?"
	}
	for _, setting := range bi.Settings {
		if setting.Key == "vcs.revision" {
			if len(setting.Value) > 8 {
				return setting.Value[:8]
			}
			return setting.Value
		}
	}
	return "?"
}

// Time returns the time the binary was built.
func Time() time.Time {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return time.Time{}
	}
	for _, setting := range bi.Settings {
		if setting.Key == "vcs.time" {
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err != nil {
				return time.Time{}
			}
			return t
		}
	}
	return time.Time{}
}
