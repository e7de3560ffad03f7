// Command agileboard runs the planning board sync server and the tools that
// inspect and migrate its stored sessions.
package main

import (
	"os"

	"github.com/ayodineji/Agile-Board/cmd/agileboard/commands"
)

// Stamped by release builds:
//
//	go build -ldflags "-X main.version=v1.2.0 -X main.commit=$(git rev-parse HEAD) -X main.date=..."
var version, commit, date = "dev", "none", "unknown"

func main() {
	commands.SetVersionInfo(version, commit, date)
	os.Exit(run())
}

// run returns the process exit status. Command errors have already been
// reported on stderr by the time Execute returns.
func run() int {
	if err := commands.Execute(); err != nil {
		return 1
	}
	return 0
}
