package schema

import "encoding/json"

// WorkflowDocument is the JSON form of an agent workflow graph as stored by
// the graph editor. Nodes may be omitted; cycle detection only needs edges.
type WorkflowDocument struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name,omitempty"`
	Nodes       []Node       `json:"nodes,omitempty"`
	Connections []Connection `json:"connections"`
}

// NodeKind enumerates workflow vertex kinds.
type NodeKind string

const (
	NodeKindAgent    NodeKind = "agent"
	NodeKindFunction NodeKind = "function"
	NodeKindTool     NodeKind = "tool"
)

// Node is a workflow graph vertex. Config is kind-specific and opaque here.
type Node struct {
	ID     string          `json:"id"`
	Kind   NodeKind        `json:"kind,omitempty"`
	Label  string          `json:"label,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Connection is a directed edge between two nodes.
type Connection struct {
	ID         string      `json:"id"`
	FromNodeID string      `json:"from_node_id"`
	ToNodeID   string      `json:"to_node_id"`
	IsLoopEdge bool        `json:"is_loop_edge,omitempty"`
	LoopConfig *LoopConfig `json:"loop_config,omitempty"`
}

// IsSelfLoop reports whether the connection points back at its own source.
func (c Connection) IsSelfLoop() bool {
	return c.FromNodeID == c.ToNodeID
}

// LoopConfig is the user-facing loop configuration attached to a connection.
type LoopConfig struct {
	MaxIterations        int                 `json:"max_iterations,omitempty"`
	ExitConditions       []LoopExitCondition `json:"exit_conditions,omitempty"`
	ConvergenceThreshold *float64            `json:"convergence_threshold,omitempty"`
	TimeoutSeconds       int                 `json:"timeout_seconds,omitempty"`
}

// ExitConditionType tags a LoopExitCondition variant.
type ExitConditionType string

const (
	ExitMaxIterations ExitConditionType = "max_iterations"
	ExitConvergence   ExitConditionType = "convergence"
	ExitValueEquals   ExitConditionType = "value_equals"
	ExitCustom        ExitConditionType = "custom"
)

// LoopExitCondition is one configured rule that can end a loop.
// Threshold applies to convergence; Value to value_equals and custom.
type LoopExitCondition struct {
	Type      ExitConditionType `json:"type"`
	Threshold *float64          `json:"threshold,omitempty"`
	Value     string            `json:"value,omitempty"`
}

// Float returns a pointer to v, for building optional thresholds.
func Float(v float64) *float64 {
	return &v
}
