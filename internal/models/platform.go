package models

import (
	"encoding/json"
	"runtime"
	"strings"
)

// OperatingSystem identifies a platform family for rule and native lookups.
type OperatingSystem string

const (
	OSLinux   OperatingSystem = "linux"
	OSWindows OperatingSystem = "windows"
	OSX       OperatingSystem = "osx"
	OSUnknown OperatingSystem = "unknown"
)

var osAliases = map[OperatingSystem][]string{
	OSLinux:   {"linux", "unix"},
	OSWindows: {"win"},
	OSX:       {"mac", "darwin"},
}

// ParseOperatingSystem maps a name (or any string containing a known alias)
// to an OperatingSystem, falling back to OSUnknown.
func ParseOperatingSystem(name string) OperatingSystem {
	lower := strings.ToLower(name)
	switch OperatingSystem(lower) {
	case OSLinux, OSWindows, OSX:
		return OperatingSystem(lower)
	}
	// osx before windows: "darwin" contains "win".
	for _, os := range []OperatingSystem{OSLinux, OSX, OSWindows} {
		for _, alias := range osAliases[os] {
			if strings.Contains(lower, alias) {
				return os
			}
		}
	}
	return OSUnknown
}

// IsSupported reports whether natives can be resolved for this OS.
func (o OperatingSystem) IsSupported() bool {
	return o != OSUnknown && o != ""
}

// UnmarshalJSON tolerates aliases in descriptors.
func (o *OperatingSystem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = ParseOperatingSystem(s)
	return nil
}

// UnmarshalText allows OperatingSystem as a map key in descriptors.
func (o *OperatingSystem) UnmarshalText(text []byte) error {
	*o = ParseOperatingSystem(string(text))
	return nil
}

// Platform is the environment rules are evaluated against.
type Platform struct {
	OS      OperatingSystem
	Version string // OS version string matched by rule version patterns
	Arch    string // "32" or "64", substituted into native classifiers
}

// CurrentPlatform describes the host the binary is running on.
func CurrentPlatform() Platform {
	p := Platform{OS: ParseOperatingSystem(runtime.GOOS), Arch: "32"}
	switch runtime.GOARCH {
	case "amd64", "arm64", "ppc64", "ppc64le", "s390x", "riscv64", "loong64", "mips64", "mips64le":
		p.Arch = "64"
	}
	return p
}
