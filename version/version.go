// Package version holds build-time version metadata, overridden via
// -ldflags at release build time.
package version

import "runtime"

var (
	// GitRelease is the release tag this binary was built from.
	GitRelease = "dev"

	// GitCommit is the commit hash this binary was built from.
	GitCommit = "unknown"

	// GitCommitDate is the commit timestamp this binary was built from.
	GitCommitDate = "unknown"

	// GoInfo is the Go toolchain version used to build this binary.
	GoInfo = runtime.Version()
)
