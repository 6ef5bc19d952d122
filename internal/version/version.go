// Package version carries build metadata injected with -ldflags.
package version

// Commit is set at build time: -ldflags "-X hotspot-map/internal/version.Commit=$(git rev-parse --short HEAD)".
var Commit = "dev"
