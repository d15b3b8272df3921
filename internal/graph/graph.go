// Package graph implements a small directed graph used to represent the
// inter-unit dependency graph: cycle detection for the manifest graph, and
// transitive closures for impact resolution.
package graph

import "sort"

// Graph is a directed graph over string-named nodes. The zero value is not
// usable; construct with New.
type Graph struct {
	nodes map[string]struct{}
	out   map[string][]string // adjacency, insertion order preserved
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		out:   make(map[string][]string),
	}
}

// AddNode registers a node with no edges if it isn't already present.
func (g *Graph) AddNode(name string) {
	g.nodes[name] = struct{}{}
	if _, ok := g.out[name]; !ok {
		g.out[name] = nil
	}
}

// AddEdge adds a directed edge from → to, registering both endpoints as
// nodes. Duplicate edges are not added twice.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	for _, existing := range g.out[from] {
		if existing == to {
			return
		}
	}
	g.out[from] = append(g.out[from], to)
}

// Nodes returns every registered node name, sorted ascending.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Edges returns the direct out-edges of node, in the order they were added.
func (g *Graph) Edges(node string) []string {
	return g.out[node]
}

// HasNode reports whether node is registered.
func (g *Graph) HasNode(node string) bool {
	_, ok := g.nodes[node]
	return ok
}

// FindCycle returns the nodes of one cycle reachable from the graph, or nil
// if the graph is a DAG. The returned slice lists the cycle in traversal
// order, starting and ending at the same node.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(node string) []string
	visit = func(node string) []string {
		state[node] = visiting
		stack = append(stack, node)

		for _, next := range g.out[node] {
			switch state[next] {
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			case visiting:
				// Found the back edge; extract the cycle from the stack.
				start := 0
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				cycle := append([]string{}, stack[start:]...)
				cycle = append(cycle, next)
				return cycle
			case done:
				// already fully explored, no cycle through it
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = done
		return nil
	}

	for _, node := range g.Nodes() {
		if state[node] == unvisited {
			if cycle := visit(node); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// ReverseClosure returns seeds plus every node with a path to some seed,
// i.e. the transitive closure over reversed edges. The result is sorted
// ascending.
func (g *Graph) ReverseClosure(seeds []string) []string {
	reverse := make(map[string][]string, len(g.nodes))
	for _, node := range g.Nodes() {
		for _, to := range g.out[node] {
			reverse[to] = append(reverse[to], node)
		}
	}
	return g.closure(seeds, reverse)
}

// ForwardClosure returns seeds plus every node reachable from some seed
// over direct edges. The result is sorted ascending.
func (g *Graph) ForwardClosure(seeds []string) []string {
	return g.closure(seeds, g.out)
}

func (g *Graph) closure(seeds []string, adjacency map[string][]string) []string {
	visited := make(map[string]struct{}, len(seeds))
	var queue []string
	for _, s := range seeds {
		if _, ok := visited[s]; !ok {
			visited[s] = struct{}{}
			queue = append(queue, s)
		}
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[node] {
			if _, ok := visited[next]; !ok {
				visited[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}

	result := make([]string, 0, len(visited))
	for n := range visited {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}
