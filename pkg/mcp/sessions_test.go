package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_RegisterAndLookup(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("loop-1", "session-abc")
	sid, ok := r.SessionFor("loop-1")
	assert.True(t, ok)
	assert.Equal(t, "session-abc", sid)
}

func TestSessionRegistry_NotFound(t *testing.T) {
	r := NewSessionRegistry()

	_, ok := r.SessionFor("unknown")
	assert.False(t, ok)
}

func TestSessionRegistry_Overwrite(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("loop-1", "session-old")
	r.Register("loop-1", "session-new")

	sid, ok := r.SessionFor("loop-1")
	assert.True(t, ok)
	assert.Equal(t, "session-new", sid)
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("loop-1", "session-abc")
	r.Register("loop-2", "session-abc")
	r.Register("loop-3", "session-xyz")

	r.Remove("session-abc")

	_, ok := r.SessionFor("loop-1")
	assert.False(t, ok, "loop-1 should be removed")

	_, ok = r.SessionFor("loop-2")
	assert.False(t, ok, "loop-2 should be removed")

	sid, ok := r.SessionFor("loop-3")
	assert.True(t, ok, "loop-3 should still exist")
	assert.Equal(t, "session-xyz", sid)
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistry_Forget(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("loop-1", "session-1")
	r.Register("loop-2", "session-1")
	r.Forget("loop-1")

	_, ok := r.SessionFor("loop-1")
	assert.False(t, ok)
	_, ok = r.SessionFor("loop-2")
	assert.True(t, ok)
}

func TestNotifierWithoutSessionIsNoop(t *testing.T) {
	s := NewLoopguardServer(LoopguardServerDeps{})
	n := NewMCPNotifier(s.MCPServer(), NewSessionRegistry())

	assert.NoError(t, n.Notify(t.Context(), "loop-1", map[string]any{"event_type": "loop_started"}))
}

func TestIsFinalEvent(t *testing.T) {
	assert.True(t, isFinalEvent(map[string]any{"event_type": "loop_exited"}))
	assert.True(t, isFinalEvent(map[string]any{"event_type": "loop_cancelled"}))
	assert.True(t, isFinalEvent(map[string]any{"event_type": "loop_evicted"}))
	assert.False(t, isFinalEvent(map[string]any{"event_type": "loop_iter_completed"}))
	assert.False(t, isFinalEvent(map[string]any{}))
}
