// Package main implements the tableside command line client for the
// restaurant ordering backend's sign-in flows.
package main

import (
	"fmt"
	"os"
)

// Version information (populated at build time)
var (
	version = "dev"
)

// main dispatches to the named subcommand.
func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		return
	}

	cmd, ok := lookup(os.Args[1])
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stdout)
		os.Exit(2)
	}

	if err := cmd.Run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
