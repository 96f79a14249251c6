package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
// Each loop becomes a dashed cluster labelled with its badge.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	root, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer root.Close()

	root.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		root.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))

	// Loop members are created inside their cluster so dot keeps them together.
	for _, g := range model.Loops {
		sub, subErr := root.CreateSubGraphByName("cluster_" + mermaidSafeID(g.ID))
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create cluster %s: %w", g.ID, subErr)
		}
		sub.SetLabel(g.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)

		for _, id := range g.Nodes {
			node := findNode(model.Nodes, id)
			if node == nil || gvNodes[id] != nil {
				continue
			}
			gvNode, nErr := sub.CreateNodeByName(id)
			if nErr != nil {
				return nil, fmt.Errorf("diagram: create node %s: %w", id, nErr)
			}
			gvNode.SetLabel(firstLine(node.Label))
			applyNodeStyle(gvNode, node)
			if g.Status != nil {
				applyStatusColor(gvNode, g.Status.State)
			}
			gvNodes[id] = gvNode
		}
	}

	for _, node := range model.Nodes {
		if gvNodes[node.ID] != nil {
			continue
		}
		gvNode, nErr := root.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(firstLine(node.Label))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := root.CreateEdgeByName(edge.ID, fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s: %w", edge.ID, eErr)
		}
		applyEdgeStyle(e, edge)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, root, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets the graphviz shape for the node kind.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindAgent:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindTool:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindFunction:
		gvNode.SetShape(cgraph.BoxShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
}

func applyEdgeStyle(e *cgraph.Edge, edge Edge) {
	if edge.Style.Stroke != "" {
		e.SetColor(edge.Style.Stroke)
	}
	if edge.Style.StrokeWidth > 0 {
		e.SetPenWidth(float64(edge.Style.StrokeWidth))
	}
	if edge.Style.Dashed {
		e.SetStyle(cgraph.DashedEdgeStyle)
	}
	if edge.Label != "" {
		e.SetLabel(edge.Label)
	}
}

// applyStatusColor fills loop members according to the loop state.
func applyStatusColor(gvNode *cgraph.Node, state schema.LoopStatus) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch state {
	case schema.LoopStatusRunning:
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case schema.LoopStatusExited:
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case schema.LoopStatusFailed:
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	}
}
