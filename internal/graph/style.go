package graph

import (
	"fmt"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// Stroke colours used by the editor canvas.
const (
	colorDefault  = "#94a3b8"
	colorLoop     = "#f59e0b"
	colorLoopEdge = "#d97706"
)

// ConnectionStyle is the presentation of one connection on the canvas.
type ConnectionStyle struct {
	Stroke      string `json:"stroke"`
	StrokeWidth int    `json:"stroke_width"`
	Dashed      bool   `json:"dashed"`
	Animated    bool   `json:"animated"`
}

// IsConnectionInLoop reports whether conn runs between two nodes of the same loop.
func IsConnectionInLoop(conn schema.Connection, loops []StronglyConnectedComponent) bool {
	_, ok := ContainingLoop(conn, loops)
	return ok
}

// IsLoopEdge reports whether conn is flagged as the loop-back edge or lies inside a loop.
func IsLoopEdge(conn schema.Connection, loops []StronglyConnectedComponent) bool {
	return conn.IsLoopEdge || IsConnectionInLoop(conn, loops)
}

// StyleFor returns the canvas style for conn.
func StyleFor(conn schema.Connection, loops []StronglyConnectedComponent) ConnectionStyle {
	switch {
	case conn.IsLoopEdge:
		return ConnectionStyle{Stroke: colorLoopEdge, StrokeWidth: 3, Dashed: true, Animated: true}
	case IsConnectionInLoop(conn, loops):
		return ConnectionStyle{Stroke: colorLoop, StrokeWidth: 2, Dashed: true, Animated: false}
	default:
		return ConnectionStyle{Stroke: colorDefault, StrokeWidth: 1}
	}
}

// LoopBadgeText renders the small iteration badge shown on a loop.
// A zero iteration means the loop has not run yet.
func LoopBadgeText(iteration, maxIterations int) string {
	if iteration <= 0 {
		return fmt.Sprintf("↻ max %d", maxIterations)
	}
	return fmt.Sprintf("↻ %d/%d", iteration, maxIterations)
}
