package main

import (
	"fmt"
	"os"

	"approvals/internal/cli"
)

// main only runs the root command; wiring lives in internal/cli.
func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "approvals:", err)
		os.Exit(cli.ExitCode(err))
	}
}
