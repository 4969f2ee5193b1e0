package main

import (
	"fmt"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	exitOnError(newRootCmd(versionString()).Execute())
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", version, commit, buildTime, goVersion)
}
