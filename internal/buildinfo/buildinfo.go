// Package buildinfo holds version data injected with -ldflags.
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("rigd %s (commit=%s, date=%s)", Version, Commit, Date)
}
