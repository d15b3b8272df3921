// Package analyzer produces the complete analysis document: a unit's
// file tree (delegated to internal/unittree) for every unit the
// workspace walker discovered, plus the inter-unit dependency graph taken
// directly from manifest-declared edges. Unit trees are built
// concurrently; the document itself is assembled by a single writer once
// every tree has finalized.
package analyzer

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/deltascope/deltascope/internal/config"
	"github.com/deltascope/deltascope/internal/graph"
	"github.com/deltascope/deltascope/internal/unitmodel"
	"github.com/deltascope/deltascope/internal/unittree"
	"github.com/deltascope/deltascope/internal/workspace"
)

// Analyze walks root's workspace, builds every unit's file tree, and
// assembles the analysis document with every path relativized to root.
// Failures building an individual unit's tree are logged to stderr and
// that unit is dropped from the document rather than aborting the run;
// workspace-walking and manifest-graph errors, by contrast, are fatal and
// returned directly (per §7, a WorkspaceError carries no partial
// document).
func Analyze(root string, cfg *config.Config, stderr io.Writer) (*unitmodel.AnalysisDocument, error) {
	units, err := workspace.Walk(root)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	for _, u := range units {
		g.AddNode(u.Name)
		for _, dep := range u.Dependencies {
			g.AddEdge(u.Name, dep)
		}
	}
	if cycle := g.FindCycle(); cycle != nil {
		return nil, &workspace.WorkspaceError{Reason: fmt.Sprintf("manifest dependency graph has a cycle: %v", cycle)}
	}

	trees := buildTreesConcurrently(units, cfg, root, stderr)

	doc := &unitmodel.AnalysisDocument{
		Files:  make(map[string]*unitmodel.FileNode, len(units)),
		Crates: make(map[string][]string, len(units)),
	}
	for _, u := range units {
		tree, ok := trees[u.Name]
		if !ok {
			continue
		}
		relativize(tree, root)
		doc.Files[u.Name] = tree
		doc.Crates[u.Name] = append([]string{}, u.Dependencies...)
	}

	return doc, nil
}

func buildTreesConcurrently(units []unitmodel.Unit, cfg *config.Config, root string, stderr io.Writer) map[string]*unitmodel.FileNode {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(units) {
		numWorkers = len(units)
	}
	if numWorkers < 1 {
		return map[string]*unitmodel.FileNode{}
	}

	type result struct {
		name string
		tree *unitmodel.FileNode
		ok   bool
	}

	work := make(chan int, len(units))
	results := make(chan result, len(units))

	var wg sync.WaitGroup
	sw := &syncWriter{w: stderr}

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				u := units[idx]
				switches := cfg.ForUnit(u.Name)
				tree, err := unittree.Build(u, switches, cfg.FileExcludePatterns, sw)
				if err != nil {
					fmt.Fprintf(sw, "warning: skipping unit %s: %v\n", u.Name, err)
					continue
				}
				results <- result{name: u.Name, tree: tree, ok: true}
			}
		}()
	}

	for i := range units {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]*unitmodel.FileNode, len(units))
	for r := range results {
		if r.ok {
			out[r.name] = r.tree
		}
	}
	return out
}

// syncWriter serializes writes to w so the unit-tree workers in
// buildTreesConcurrently, which build distinct units in parallel, can each
// log resolution diagnostics to the same stderr without interleaving.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// relativize rewrites every path in tree, in place, to be relative to
// root with forward-slash separators, matching the stable on-disk schema
// (§4.5, §6).
func relativize(tree *unitmodel.FileNode, root string) {
	tree.Walk(func(n *unitmodel.FileNode) {
		if rel, err := filepath.Rel(root, n.Path); err == nil {
			n.Path = filepath.ToSlash(rel)
		}
	})
}

// SortedUnitNames returns doc's unit keys in ascending order, matching
// the serialization's stability guarantee.
func SortedUnitNames(doc *unitmodel.AnalysisDocument) []string {
	names := make([]string, 0, len(doc.Files))
	for name := range doc.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
