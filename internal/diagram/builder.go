package diagram

import (
	"fmt"

	"github.com/albert-ai/loopguard/internal/graph"
	"github.com/albert-ai/loopguard/internal/loop"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// Build constructs a DiagramModel from a workflow document and optional
// snapshots of loops that are currently active for it. Loops are found with
// graph.DetectLoopsIncludingSelf so a self-referencing node also gets a
// cluster and a badge.
func Build(doc *schema.WorkflowDocument, active []loop.Snapshot) (*DiagramModel, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "diagram: workflow document is required")
	}

	loops := graph.DetectLoopsIncludingSelf(doc.Connections)

	model := &DiagramModel{
		Title: titleFromDoc(doc),
		Nodes: buildNodes(doc),
	}

	for i, scc := range loops {
		model.Loops = append(model.Loops, buildLoopGroup(i, scc, doc.Connections, active))
		for _, id := range scc.Nodes {
			if n := findNode(model.Nodes, id); n != nil {
				n.InLoop = true
			}
		}
	}

	for _, c := range doc.Connections {
		if c.FromNodeID == "" || c.ToNodeID == "" {
			continue
		}
		edge := Edge{
			ID:       c.ID,
			From:     c.FromNodeID,
			To:       c.ToNodeID,
			Style:    graph.StyleFor(c, loops),
			LoopEdge: c.IsLoopEdge,
			InLoop:   graph.IsConnectionInLoop(c, loops),
		}
		if edge.LoopEdge || c.IsSelfLoop() {
			if g := model.loopOf(c.FromNodeID); g != nil {
				edge.Label = g.Label
			}
		}
		model.Edges = append(model.Edges, edge)
	}

	return model, nil
}

// buildNodes returns declared nodes first, then any endpoint that only
// appears on a connection, each in first-appearance order.
func buildNodes(doc *schema.WorkflowDocument) []*Node {
	seen := make(map[string]bool, len(doc.Nodes))
	nodes := make([]*Node, 0, len(doc.Nodes))

	for _, n := range doc.Nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		nodes = append(nodes, &Node{ID: n.ID, Label: nodeLabel(n), Kind: nodeKind(n.Kind)})
	}

	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		nodes = append(nodes, &Node{ID: id, Label: id, Kind: NodeKindUnknown})
	}
	for _, c := range doc.Connections {
		add(c.FromNodeID)
		add(c.ToNodeID)
	}
	return nodes
}

func nodeLabel(n schema.Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

func nodeKind(k schema.NodeKind) NodeKind {
	switch k {
	case schema.NodeKindAgent:
		return NodeKindAgent
	case schema.NodeKindFunction:
		return NodeKindFunction
	case schema.NodeKindTool:
		return NodeKindTool
	default:
		return NodeKindUnknown
	}
}

// buildLoopGroup turns one component into a cluster. The badge reflects the
// matching active loop when there is one, otherwise the configured limit.
func buildLoopGroup(idx int, scc graph.StronglyConnectedComponent, conns []schema.Connection, active []loop.Snapshot) *LoopGroup {
	meta := loop.FromSCC(scc, conns, loop.WithLoopID(fmt.Sprintf("loop_%d", idx+1)))

	g := &LoopGroup{
		ID:        meta.LoopID,
		Nodes:     meta.Nodes,
		EntryNode: meta.EntryNode,
		ExitNode:  meta.ExitNode,
		Label:     graph.LoopBadgeText(0, meta.MaxIterations),
	}

	if snap, ok := matchSnapshot(scc, active); ok {
		g.Status = &StatusOverlay{
			LoopID:        snap.LoopID,
			State:         snap.State,
			Iteration:     snap.Iteration,
			MaxIterations: snap.MaxIterations,
			ExitReason:    snap.ExitReason,
		}
		g.Label = graph.LoopBadgeText(snap.Iteration, snap.MaxIterations)
	}
	return g
}

// matchSnapshot picks the snapshot whose entry node lies in scc, preferring
// one that is still running.
func matchSnapshot(scc graph.StronglyConnectedComponent, active []loop.Snapshot) (loop.Snapshot, bool) {
	var (
		found loop.Snapshot
		ok    bool
	)
	for _, s := range active {
		if !scc.Contains(s.EntryNode) {
			continue
		}
		if s.State == "" || s.State == schema.LoopStatusRunning {
			return s, true
		}
		if !ok {
			found, ok = s, true
		}
	}
	return found, ok
}

// titleFromDoc generates a diagram title from workflow metadata.
func titleFromDoc(doc *schema.WorkflowDocument) string {
	switch {
	case doc.Name != "":
		return doc.Name
	case doc.ID != "":
		return doc.ID
	default:
		return "Workflow"
	}
}
