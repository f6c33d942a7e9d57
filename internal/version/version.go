// Package version holds the convoy build version.
package version

// Version is the current convoy version. Overridden at build time via
// -ldflags "-X github.com/ShayCichocki/convoy/internal/version.Version=...".
var Version = "0.1.0-dev"
