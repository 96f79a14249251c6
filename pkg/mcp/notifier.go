package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// AgentNotifier pushes loop notifications to connected agents.
type AgentNotifier interface {
	Notify(ctx context.Context, loopID string, payload map[string]any) error
}

// MCPNotifier implements AgentNotifier using MCP server push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via the MCP session.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the session driving loopID.
// Best-effort: returns nil if no session owns the loop.
func (n *MCPNotifier) Notify(_ context.Context, loopID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(loopID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session went away between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	if err == nil && isFinalEvent(payload) {
		n.sessions.Forget(loopID)
	}
	return err
}

// isFinalEvent reports whether the loop can emit nothing after this payload.
func isFinalEvent(payload map[string]any) bool {
	switch payload["event_type"] {
	case schema.EventLoopExited, schema.EventLoopCancelled, schema.EventLoopEvicted:
		return true
	}
	return false
}
