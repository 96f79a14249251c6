package diagram

import (
	"fmt"
	"strings"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Loop members are grouped into a subgraph per loop, loop edges are dashed
// and coloured, and the loop-back edge carries the iteration badge.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	// Free nodes first, then one subgraph per loop.
	for _, node := range model.Nodes {
		if model.loopOf(node.ID) == nil {
			b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
		}
	}
	for _, g := range model.Loops {
		b.WriteString(fmt.Sprintf("    subgraph %s[%q]\n", mermaidSafeID(g.ID), mermaidEscapeLabel(g.Label)))
		for _, id := range g.Nodes {
			if node := findNode(model.Nodes, id); node != nil && model.loopOf(id) == g {
				b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(node)))
			}
		}
		b.WriteString("    end\n")
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		if edge.Style.Dashed {
			arrow = "-.->"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s %s%s %s\n",
			mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To)))
	}

	// linkStyle indexes follow edge declaration order.
	for i, edge := range model.Edges {
		if !edge.LoopEdge && !edge.InLoop {
			continue
		}
		b.WriteString(fmt.Sprintf("    linkStyle %d stroke:%s,stroke-width:%dpx\n",
			i, edge.Style.Stroke, edge.Style.StrokeWidth))
	}

	b.WriteString("\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef exited fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef halted fill:#6b6b6b,stroke:#4a4a4a,color:#fff,stroke-dasharray:5 5\n")

	for _, g := range model.Loops {
		if g.Status == nil {
			continue
		}
		if cls := mermaidStatusClass(g.Status.State); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(g.ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case NodeKindAgent:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindTool:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindUnknown:
		return fmt.Sprintf("%s(%q)", id, label)
	default: // function
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces characters Mermaid treats as syntax inside labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;")
	return r.Replace(s)
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// mermaidStatusClass maps a loop state to a Mermaid class name.
func mermaidStatusClass(state schema.LoopStatus) string {
	switch state {
	case schema.LoopStatusRunning:
		return "running"
	case schema.LoopStatusExited:
		return "exited"
	case schema.LoopStatusFailed:
		return "failed"
	case schema.LoopStatusCancelled, schema.LoopStatusEvicted:
		return "halted"
	default:
		return ""
	}
}
