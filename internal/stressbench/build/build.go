// Package build holds build information, set at link time with
// -ldflags "-X github.com/stressbench/stressbench/internal/stressbench/build.ReleaseVersion=...".
package build

import "runtime"

var (
	ReleaseVersion = "UNKNOWN"
	GitCommit      = "UNKNOWN"
	BuildTime      = "UNKNOWN"
	GoVersion      = runtime.Version()
)
