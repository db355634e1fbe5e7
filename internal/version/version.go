// Package version holds build identity, stamped via -ldflags at release time.
package version

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)
