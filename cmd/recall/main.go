// Command recall drives the spaced-repetition session engine: starting and
// resuming study sessions, seeding recall sets, and reporting on past runs.
package main

import (
	"os"
	"runtime/debug"

	"github.com/dotcommander/recall/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
