// Package version exposes the build version, set at link time via
// -ldflags "-X github.com/wayposthq/waypost/internal/version.version=...".
package version

var version = "0.0.0-dev"

func Version() string {
	return version
}
