package version

// version is set at build time with -ldflags "-X github.com/myhuemungusD/skatehubba-sub002/pkg/version.version=..."
var version = "dev"

// Get returns the build version of the server.
func Get() string {
	return version
}
