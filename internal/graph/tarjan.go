// Package graph finds loops in a workflow graph.
//
// Nodes are implicit: they are derived from connection endpoints in the order
// they first appear, so callers only need to hand over the edge list. Every
// function in this package is pure and safe to call on every editor change.
package graph

import "github.com/albert-ai/loopguard/pkg/schema"

// StronglyConnectedComponent is a maximal set of nodes that are mutually
// reachable through the connection list. It is a derived view and is
// recomputed on every detection call.
type StronglyConnectedComponent struct {
	// Nodes in discovery order. Unique.
	Nodes []string `json:"nodes"`

	// Edges holds the IDs of connections whose endpoints both lie in Nodes.
	Edges []string `json:"edges"`

	// EntryPoints are nodes reached by an edge from outside the component.
	EntryPoints []string `json:"entry_points"`

	// ExitPoints are nodes with an edge leaving the component.
	ExitPoints []string `json:"exit_points"`
}

// Contains reports whether nodeID belongs to the component.
func (c StronglyConnectedComponent) Contains(nodeID string) bool {
	for _, n := range c.Nodes {
		if n == nodeID {
			return true
		}
	}
	return false
}

// HasEdge reports whether the connection with the given ID lies inside the component.
func (c StronglyConnectedComponent) HasEdge(edgeID string) bool {
	for _, e := range c.Edges {
		if e == edgeID {
			return true
		}
	}
	return false
}

// IsMultiNodeCycle is the strict loop predicate: more than one node.
func IsMultiNodeCycle(c StronglyConnectedComponent) bool {
	return len(c.Nodes) > 1
}

// IsLoopIncludingSelf also admits a single node with an edge to itself.
func IsLoopIncludingSelf(c StronglyConnectedComponent) bool {
	return len(c.Nodes) > 1 || (len(c.Nodes) == 1 && len(c.Edges) > 0)
}

// DetectLoops returns every strongly connected component with more than one
// node, in the order Tarjan's algorithm completes them.
func DetectLoops(conns []schema.Connection) []StronglyConnectedComponent {
	return detect(conns, IsMultiNodeCycle)
}

// DetectLoopsIncludingSelf is DetectLoops plus single-node self-loops.
func DetectLoopsIncludingSelf(conns []schema.Connection) []StronglyConnectedComponent {
	return detect(conns, IsLoopIncludingSelf)
}

// tarjanState carries the per-run bookkeeping for strongConnect.
type tarjanState struct {
	index     int
	nodeIndex map[string]int
	lowlink   map[string]int
	onStack   map[string]bool
	stack     []string
	adjacency map[string][]string
	sccs      [][]string
}

func detect(conns []schema.Connection, keep func(StronglyConnectedComponent) bool) []StronglyConnectedComponent {
	if len(conns) == 0 {
		return []StronglyConnectedComponent{}
	}

	nodes, adjacency := buildAdjacency(conns)

	state := &tarjanState{
		nodeIndex: make(map[string]int, len(nodes)),
		lowlink:   make(map[string]int, len(nodes)),
		onStack:   make(map[string]bool, len(nodes)),
		stack:     make([]string, 0, len(nodes)),
		adjacency: adjacency,
	}

	for _, n := range nodes {
		if _, visited := state.nodeIndex[n]; !visited {
			strongConnect(state, n)
		}
	}

	result := make([]StronglyConnectedComponent, 0)
	for _, members := range state.sccs {
		scc := classify(members, conns)
		if keep(scc) {
			result = append(result, scc)
		}
	}
	return result
}

// buildAdjacency derives the node list and a deduplicated adjacency list.
// Connections with an empty endpoint are ignored.
func buildAdjacency(conns []schema.Connection) ([]string, map[string][]string) {
	nodes := make([]string, 0, len(conns))
	seenNode := make(map[string]bool, len(conns))
	adjacency := make(map[string][]string, len(conns))
	seenEdge := make(map[[2]string]bool, len(conns))

	addNode := func(id string) {
		if !seenNode[id] {
			seenNode[id] = true
			nodes = append(nodes, id)
		}
	}

	for _, c := range conns {
		if c.FromNodeID == "" || c.ToNodeID == "" {
			continue
		}
		addNode(c.FromNodeID)
		addNode(c.ToNodeID)

		key := [2]string{c.FromNodeID, c.ToNodeID}
		if seenEdge[key] {
			continue
		}
		seenEdge[key] = true
		adjacency[c.FromNodeID] = append(adjacency[c.FromNodeID], c.ToNodeID)
	}
	return nodes, adjacency
}

func strongConnect(state *tarjanState, v string) {
	state.nodeIndex[v] = state.index
	state.lowlink[v] = state.index
	state.index++
	state.stack = append(state.stack, v)
	state.onStack[v] = true

	for _, w := range state.adjacency[v] {
		if _, visited := state.nodeIndex[w]; !visited {
			strongConnect(state, w)
			state.lowlink[v] = min(state.lowlink[v], state.lowlink[w])
		} else if state.onStack[w] {
			state.lowlink[v] = min(state.lowlink[v], state.nodeIndex[w])
		}
	}

	if state.lowlink[v] != state.nodeIndex[v] {
		return
	}

	// v is a root: pop its component. Popping yields reverse discovery order.
	var popped []string
	for {
		top := len(state.stack) - 1
		w := state.stack[top]
		state.stack = state.stack[:top]
		state.onStack[w] = false
		popped = append(popped, w)
		if w == v {
			break
		}
	}
	for i, j := 0, len(popped)-1; i < j; i, j = i+1, j-1 {
		popped[i], popped[j] = popped[j], popped[i]
	}
	state.sccs = append(state.sccs, popped)
}

// classify builds the component view: internal edges plus entry and exit points.
func classify(members []string, conns []schema.Connection) StronglyConnectedComponent {
	inside := make(map[string]bool, len(members))
	for _, m := range members {
		inside[m] = true
	}

	scc := StronglyConnectedComponent{
		Nodes:       members,
		Edges:       make([]string, 0),
		EntryPoints: make([]string, 0),
		ExitPoints:  make([]string, 0),
	}

	entry := make(map[string]bool)
	exit := make(map[string]bool)
	seenEdge := make(map[string]bool)

	for _, c := range conns {
		fromIn, toIn := inside[c.FromNodeID], inside[c.ToNodeID]
		switch {
		case fromIn && toIn:
			if !seenEdge[c.ID] {
				seenEdge[c.ID] = true
				scc.Edges = append(scc.Edges, c.ID)
			}
		case !fromIn && toIn:
			entry[c.ToNodeID] = true
		case fromIn && !toIn:
			exit[c.FromNodeID] = true
		}
	}

	for _, m := range members {
		if entry[m] {
			scc.EntryPoints = append(scc.EntryPoints, m)
		}
		if exit[m] {
			scc.ExitPoints = append(scc.ExitPoints, m)
		}
	}

	// Isolated cycles still need a place to start and a place to leave.
	if len(scc.EntryPoints) == 0 {
		scc.EntryPoints = append(scc.EntryPoints, members[0])
	}
	if len(scc.ExitPoints) == 0 {
		scc.ExitPoints = append(scc.ExitPoints, members[len(members)-1])
	}
	return scc
}
