// Command sweeper runs one expiry sweep and exits. It is meant for cron
// deployments where the in-process scheduler is disabled.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(execute(newRootCommand(version), os.Args[1:]))
}
