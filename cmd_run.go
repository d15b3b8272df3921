package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/deltascope/deltascope/internal/config"
	"github.com/deltascope/deltascope/internal/docstore"
	"github.com/deltascope/deltascope/internal/impact"
	"github.com/deltascope/deltascope/internal/unitmodel"
	"github.com/deltascope/deltascope/internal/vcsdiff"
)

// runImpact implements the `deltascope run` subcommand: it loads two
// previously-written analysis documents, diffs the current working tree
// against the configured remote branch, resolves the three impact sets,
// and prints the impact-set document to stdout.
func runImpact(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("deltascope run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var baselinePath, currentPath, configPath string
	fs.StringVar(&baselinePath, "baseline", "", "path to the baseline analysis document")
	fs.StringVar(&currentPath, "current", "", "path to the current analysis document")
	fs.StringVar(&configPath, "c", "", "path to a deltascope config file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: deltascope run --baseline <path> --current <path> [-c <config>]

Compares a baseline analysis document against a current one, diffs the
current working tree against the configured git remote branch, and prints
the resolved Modified/Affected/Required impact sets to standard output.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if baselinePath == "" || currentPath == "" {
		fs.Usage()
		return fmt.Errorf("both --baseline and --current are required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseline, err := docstore.ReadAnalysis(baselinePath)
	if err != nil {
		return err
	}
	current, err := docstore.ReadAnalysis(currentPath)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("resolving working tree root: %w", err)
	}

	fmt.Fprintf(stderr, "Diffing against %s..\n", cfg.Git.RemoteBranch)

	changed, deleted, err := vcsdiff.Diff(root, cfg.Git.RemoteBranch)
	if err != nil {
		return fmt.Errorf("diffing working tree: %w", err)
	}

	changes := unitmodel.ChangeSet{Changed: changed, Deleted: deleted}

	set := impact.Resolve(baseline, current, changes, cfg.TripWirePatterns)

	if err := docstore.WriteImpact(stdout, set); err != nil {
		return fmt.Errorf("writing impact document: %w", err)
	}

	return nil
}
