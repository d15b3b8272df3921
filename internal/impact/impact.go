// Package impact implements the change resolver: given a baseline
// analysis, a current analysis, and a raw change set, it computes the
// Modified, Affected, and Required unit sets.
package impact

import (
	"sort"

	"github.com/deltascope/deltascope/internal/globmatch"
	"github.com/deltascope/deltascope/internal/graph"
	"github.com/deltascope/deltascope/internal/unitmodel"
)

// Resolve computes the impact sets for changes moving from baseline to
// current. tripWirePatterns are evaluated against the raw change set
// before any file-to-unit mapping, per §3's invariant that trip wires
// bypass the mapping step entirely.
func Resolve(baseline, current *unitmodel.AnalysisDocument, changes unitmodel.ChangeSet, tripWirePatterns []string) unitmodel.ImpactSet {
	if tripped(changes, tripWirePatterns) {
		all := allUnits(current)
		return unitmodel.ImpactSet{Modified: all, Affected: all, Required: all}
	}

	ownersBaseline := ownersByPath(baseline)
	ownersCurrent := ownersByPath(current)

	g := buildGraph(current)

	modified := make(map[string]struct{})

	for _, p := range changes.Changed {
		for u := range ownersCurrent[p] {
			modified[u] = struct{}{}
		}
	}
	for _, p := range changes.Deleted {
		for u := range ownersBaseline[p] {
			if _, inCurrent := current.Files[u]; !inCurrent {
				continue // unit exists only in baseline
			}
			modified[u] = struct{}{}
		}
	}

	for name, currentDeps := range current.Crates {
		baselineDeps, existedBefore := baseline.Crates[name]
		if !existedBefore {
			modified[name] = struct{}{} // new unit in current
			continue
		}
		if !sameEdgeSet(baselineDeps, currentDeps) {
			modified[name] = struct{}{}
		}
	}

	modifiedList := sortedKeys(modified)
	affected := g.ReverseClosure(modifiedList)
	required := g.ForwardClosure(affected)

	return unitmodel.ImpactSet{
		Modified: modifiedList,
		Affected: affected,
		Required: required,
	}
}

func tripped(changes unitmodel.ChangeSet, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, p := range changes.Changed {
		if globmatch.Matches(p, patterns) {
			return true
		}
	}
	for _, p := range changes.Deleted {
		if globmatch.Matches(p, patterns) {
			return true
		}
	}
	return false
}

func allUnits(doc *unitmodel.AnalysisDocument) []string {
	names := make([]string, 0, len(doc.Files))
	for name := range doc.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ownersByPath maps workspace-relative path → set of unit names whose
// file tree reaches it. A file may be owned by more than one unit.
func ownersByPath(doc *unitmodel.AnalysisDocument) map[string]map[string]struct{} {
	owners := make(map[string]map[string]struct{})
	if doc == nil {
		return owners
	}
	for unitName, root := range doc.Files {
		if root == nil {
			continue
		}
		root.Walk(func(n *unitmodel.FileNode) {
			if owners[n.Path] == nil {
				owners[n.Path] = make(map[string]struct{})
			}
			owners[n.Path][unitName] = struct{}{}
		})
	}
	return owners
}

func buildGraph(doc *unitmodel.AnalysisDocument) *graph.Graph {
	g := graph.New()
	for name := range doc.Files {
		g.AddNode(name)
	}
	for name, deps := range doc.Crates {
		for _, dep := range deps {
			g.AddEdge(name, dep)
		}
	}
	return g
}

func sameEdgeSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string{}, a...)
	bs := append([]string{}, b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
