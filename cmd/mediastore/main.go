// Command mediastore runs the media object store's file lifecycle engine:
// the Upload Pipeline, Optimization Engine, Soft-Delete & GC, Cleanup
// Reconciler, Problem Detector, and URL Download, all behind one HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/bozonx/mediastore/cmd/mediastore/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
