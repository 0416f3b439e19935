// Package version carries the application version string.
package version

const app = "0.1.0"

// App returns the semantic version of this build.
func App() string {
	return app
}
