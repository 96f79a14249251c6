package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albert-ai/loopguard/internal/logging"
	"github.com/albert-ai/loopguard/internal/streaming"
)

func TestNewLoopguardServer(t *testing.T) {
	s := NewLoopguardServer(LoopguardServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.registry)
	assert.NotNil(t, s.validator)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s := NewLoopguardServer(LoopguardServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 9)

	expectedTools := []string{
		"loopguard.detect",
		"loopguard.would_create",
		"loopguard.validate",
		"loopguard.convergence",
		"loopguard.start",
		"loopguard.record",
		"loopguard.cancel",
		"loopguard.status",
		"loopguard.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"detect", "loopguard.detect", "Detect loops (strongly connected components) in a workflow graph"},
		{"would_create", "loopguard.would_create", "Check whether adding a connection would create a new loop"},
		{"record", "loopguard.record", "Record one iteration's output and decide whether the loop should exit"},
		{"cancel", "loopguard.cancel", "Cancel a running loop"},
	}

	s := NewLoopguardServer(LoopguardServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

type recordingNotifier struct {
	calls chan map[string]any
}

func (n *recordingNotifier) Notify(_ context.Context, loopID string, payload map[string]any) error {
	payload["__loop"] = loopID
	n.calls <- payload
	return nil
}

func TestForwardEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	s := NewLoopguardServer(LoopguardServerDeps{Hub: hub, Logger: logging.Discard()})
	rec := &recordingNotifier{calls: make(chan map[string]any, 4)}
	s.notifier = rec

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe, err := hub.Subscribe(ctx, streaming.EventFilter{})
	require.NoError(t, err)
	defer unsubscribe()
	go s.forwardEvents(ctx, events)

	require.NoError(t, hub.Publish(ctx, streaming.StreamEvent{
		WorkflowID: "wf-1", LoopID: "loop-1", EventType: "loop_iter_completed", Iteration: 2,
		Payload: map[string]any{"similarity": 0.5},
	}))

	select {
	case got := <-rec.calls:
		assert.Equal(t, "loop-1", got["__loop"])
		assert.Equal(t, "loop_iter_completed", got["event_type"])
		assert.Equal(t, 2, got["iteration"])
		assert.Equal(t, "wf-1", got["workflow_id"])
		assert.NotNil(t, got["data"])
	case <-time.After(2 * time.Second):
		t.Fatal("event was not forwarded")
	}
}
