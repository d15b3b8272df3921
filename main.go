// deltascope determines which compilation units in a multi-crate Cargo-style
// workspace are impacted by a set of file changes between two revisions.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: deltascope <analyze|run> [flags]")
	}

	switch args[0] {
	case "analyze":
		return runAnalyze(args[1:], stdout, stderr)
	case "run":
		return runImpact(args[1:], stdout, stderr)
	default:
		return fmt.Errorf("unknown command %q (want analyze or run)", args[0])
	}
}
