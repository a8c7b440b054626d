package resolver

import (
	"sort"

	"github.com/inkwell/hostkit/pkg/manifest"
)

// PluginID is a typed node identifier in the install graph.
type PluginID string

// Graph is an explicit adjacency-list dependency graph. Edges point from a
// dependency to its dependent, so a topological walk yields a valid
// activation order.
type Graph struct {
	nodes map[PluginID]struct{}
	succ  map[PluginID][]PluginID
	indeg map[PluginID]int
}

// NewGraph creates an empty install graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[PluginID]struct{}),
		succ:  make(map[PluginID][]PluginID),
		indeg: make(map[PluginID]int),
	}
}

// AddNode registers a node with no edges.
func (g *Graph) AddNode(id PluginID) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.indeg[id] = 0
}

// AddEdge adds an edge from a dependency to its dependent. Both endpoints are
// added as nodes if missing.
func (g *Graph) AddEdge(dep, dependent PluginID) {
	g.AddNode(dep)
	g.AddNode(dependent)
	g.succ[dep] = append(g.succ[dep], dependent)
	g.indeg[dependent]++
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// TopologicalOrder runs Kahn's algorithm and returns nodes in an order where
// every dependency precedes its dependents. Nodes trapped in a cycle never
// reach in-degree zero and are omitted from the output.
func (g *Graph) TopologicalOrder() []PluginID {
	indeg := make(map[PluginID]int, len(g.indeg))
	for id, d := range g.indeg {
		indeg[id] = d
	}

	queue := make([]PluginID, 0, len(g.nodes))
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	// Deterministic seeding; downstream order then follows insertion order
	// of the successor lists.
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	order := make([]PluginID, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, next := range g.succ[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	return order
}

// InstallOrder derives a dependency-respecting activation order from a
// resolved set. Edges come only from installed manifests: for each resolved
// id that is installed and declares a dependency on another resolved id, the
// dependency is ordered first.
func InstallOrder(resolved []ResolvedDependency, installed map[string]*manifest.Manifest) []string {
	g := NewGraph()

	inResolved := make(map[string]bool, len(resolved))
	for _, r := range resolved {
		inResolved[r.ID] = true
		g.AddNode(PluginID(r.ID))
	}

	for _, r := range resolved {
		m, ok := installed[r.ID]
		if !ok {
			continue
		}
		deps := make([]string, 0, len(m.Dependencies))
		for depID := range m.Dependencies {
			deps = append(deps, depID)
		}
		sort.Strings(deps)
		for _, depID := range deps {
			if inResolved[depID] {
				g.AddEdge(PluginID(depID), PluginID(r.ID))
			}
		}
	}

	ids := g.TopologicalOrder()
	order := make([]string, len(ids))
	for i, id := range ids {
		order[i] = string(id)
	}
	return order
}
