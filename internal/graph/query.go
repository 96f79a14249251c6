package graph

import "github.com/albert-ai/loopguard/pkg/schema"

// IsNodeInLoop reports whether nodeID is a member of any of the given loops.
func IsNodeInLoop(nodeID string, loops []StronglyConnectedComponent) bool {
	for _, l := range loops {
		if l.Contains(nodeID) {
			return true
		}
	}
	return false
}

// LoopsForNode returns the loops that contain nodeID.
func LoopsForNode(nodeID string, loops []StronglyConnectedComponent) []StronglyConnectedComponent {
	out := make([]StronglyConnectedComponent, 0)
	for _, l := range loops {
		if l.Contains(nodeID) {
			out = append(out, l)
		}
	}
	return out
}

// WouldCreateLoop reports whether adding the edge from -> to increases the
// number of detected loops. It reruns detection, so it is meant for
// interactive edge creation rather than hot paths.
func WouldCreateLoop(conns []schema.Connection, from, to string) bool {
	before := len(DetectLoops(conns))

	candidate := make([]schema.Connection, len(conns), len(conns)+1)
	copy(candidate, conns)
	candidate = append(candidate, schema.Connection{
		ID:         "__candidate__",
		FromNodeID: from,
		ToNodeID:   to,
	})

	return len(DetectLoops(candidate)) > before
}

// ContainingLoop returns the first loop holding both endpoints of conn.
func ContainingLoop(conn schema.Connection, loops []StronglyConnectedComponent) (StronglyConnectedComponent, bool) {
	for _, l := range loops {
		if l.Contains(conn.FromNodeID) && l.Contains(conn.ToNodeID) {
			return l, true
		}
	}
	return StronglyConnectedComponent{}, false
}
