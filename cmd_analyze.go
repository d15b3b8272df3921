package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/deltascope/deltascope/internal/analyzer"
	"github.com/deltascope/deltascope/internal/config"
	"github.com/deltascope/deltascope/internal/docstore"
	"github.com/deltascope/deltascope/internal/fswalk"
	"github.com/deltascope/deltascope/internal/globmatch"
	"github.com/deltascope/deltascope/internal/unitmodel"
)

// runAnalyze implements the `deltascope analyze` subcommand: it reads the
// current working directory as the workspace root, prints the analysis
// document to stdout, and progress plus a post-analysis "unrelated files"
// report to stderr.
func runAnalyze(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("deltascope analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var configPath string
	fs.StringVar(&configPath, "c", "", "path to a deltascope config file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: deltascope analyze [-c <config>]

Walks the Cargo workspace rooted at the current directory, resolves every
file into the compilation unit(s) that pull it in, and prints the resulting
analysis document to standard output.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(".")
	if err != nil {
		return fmt.Errorf("resolving workspace root: %w", err)
	}

	fmt.Fprintln(stderr, "Analyzing workspace..")

	doc, err := analyzer.Analyze(root, cfg, stderr)
	if err != nil {
		return err
	}

	if err := docstore.WriteAnalysis(stdout, doc); err != nil {
		return fmt.Errorf("writing analysis document: %w", err)
	}

	reportUnrelated(root, doc, cfg, stderr)

	return nil
}

// reportUnrelated prints every workspace file that no unit's file tree
// reached and that doesn't match file_exclude_patterns. It's a diagnostic
// aid only: a file listed here was never a scan error, it's simply outside
// every unit's dependency closure.
func reportUnrelated(root string, doc *unitmodel.AnalysisDocument, cfg *config.Config, stderr io.Writer) {
	files, err := fswalk.Files(root)
	if err != nil {
		fmt.Fprintf(stderr, "warning: could not enumerate workspace files for the unrelated-files report: %v\n", err)
		return
	}

	covered := make(map[string]struct{})
	for _, tree := range doc.Files {
		for path := range tree.Distinct() {
			covered[path] = struct{}{}
		}
	}

	var unrelated []string
	for _, f := range files {
		if _, ok := covered[f]; ok {
			continue
		}
		if globmatch.Excluded(f, cfg.FileExcludePatterns) {
			continue
		}
		unrelated = append(unrelated, f)
	}

	if len(unrelated) == 0 {
		return
	}

	fmt.Fprintln(stderr)
	fmt.Fprintln(stderr, "CAUTION: The following files are *NOT* considered compilation inputs:")
	for _, f := range unrelated {
		fmt.Fprintln(stderr, f)
	}
}
