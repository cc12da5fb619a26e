// Package version reports the coreguard build version.
package version

import (
	"runtime/debug"
)

// Name is the product name used in user agents and telemetry.
const Name = "coreguard"

// Swappable for testing
var readBuildInfo = debug.ReadBuildInfo

// BuildVersion returns the module version, or "dev" if unavailable.
func BuildVersion() string {
	info, ok := readBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

// UserAgent is sent on every upstream request.
func UserAgent() string {
	return Name + "/" + BuildVersion()
}
