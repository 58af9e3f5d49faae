// Package version carries build metadata stamped in at link time.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/colloquy/internal/version.Version=0.3.0
//	  -X github.com/soyeahso/colloquy/internal/version.Commit=abc123
//	  -X github.com/soyeahso/colloquy/internal/version.Date=2026-10-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns the one-line banner printed by `colloquy version`.
func Info() string {
	return fmt.Sprintf("colloquy %s (commit: %s, built: %s, %s/%s)",
		Version, Short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the identifier sent to upstream generation backends.
func UserAgent() string {
	return "colloquy/" + Version
}

// Short truncates a commit hash to seven characters.
func Short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
