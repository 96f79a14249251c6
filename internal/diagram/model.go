package diagram

import (
	"github.com/albert-ai/loopguard/internal/graph"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// NodeKind classifies a diagram node by its workflow vertex kind.
type NodeKind string

const (
	NodeKindAgent    NodeKind = "agent"
	NodeKindFunction NodeKind = "function"
	NodeKindTool     NodeKind = "tool"
	// NodeKindUnknown covers endpoints referenced by a connection but never declared.
	NodeKindUnknown NodeKind = "unknown"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
	Loops []*LoopGroup
}

// Node represents a single workflow vertex.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	InLoop bool
}

// LoopGroup is one detected loop, drawn as a cluster around its members.
type LoopGroup struct {
	ID        string
	Label     string
	Nodes     []string
	EntryNode string
	ExitNode  string
	Status    *StatusOverlay
}

// StatusOverlay carries runtime state for an active loop.
type StatusOverlay struct {
	LoopID        string
	State         schema.LoopStatus
	Iteration     int
	MaxIterations int
	ExitReason    string
}

// Edge represents one workflow connection.
type Edge struct {
	ID       string
	From     string
	To       string
	Label    string
	Style    graph.ConnectionStyle
	LoopEdge bool
	InLoop   bool
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// loopOf returns the group that contains nodeID, or nil.
func (m *DiagramModel) loopOf(nodeID string) *LoopGroup {
	for _, g := range m.Loops {
		for _, n := range g.Nodes {
			if n == nodeID {
				return g
			}
		}
	}
	return nil
}
