package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albert-ai/loopguard/internal/graph"
	"github.com/albert-ai/loopguard/pkg/schema"
)

func TestNewMetadata_Defaults(t *testing.T) {
	m := NewMetadata()
	assert.NotEmpty(t, m.LoopID)
	assert.Equal(t, DefaultMaxIterations, m.MaxIterations)
	assert.Equal(t, DefaultTimeout, m.Timeout)
	assert.Equal(t, []schema.LoopExitCondition{{Type: schema.ExitMaxIterations}}, m.ExitConditions)
	assert.Equal(t, DefaultHistoryCap, m.History.Cap())
	assert.Nil(t, m.ConvergenceThreshold)
	assert.Zero(t, m.CurrentIteration)
}

func TestNewMetadata_Options(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMetadata(
		WithLoopID("l-1"),
		WithWorkflowID("wf-1"),
		WithHistoryCap(12),
		WithStartTime(start),
		WithLimits(20, time.Minute),
	)
	assert.Equal(t, "l-1", m.LoopID)
	assert.Equal(t, "wf-1", m.WorkflowID)
	assert.Equal(t, 12, m.History.Cap())
	assert.Equal(t, start, m.StartTime)
	assert.Equal(t, 20, m.MaxIterations)
	assert.Equal(t, time.Minute, m.Timeout)
}

func TestFromSCC_UsesLoopEdgeConfig(t *testing.T) {
	conns := triangle(&schema.LoopConfig{
		MaxIterations:        3,
		ExitConditions:       []schema.LoopExitCondition{{Type: schema.ExitConvergence}},
		ConvergenceThreshold: schema.Float(0.8),
		TimeoutSeconds:       30,
	})
	conns = append(conns, conn("c-d", "C", "D"))

	loops := graph.DetectLoops(conns)
	require.Len(t, loops, 1)

	m := FromSCC(loops[0], conns, WithWorkflowID("wf"))
	assert.Equal(t, "wf", m.WorkflowID)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, m.Nodes)
	assert.Equal(t, "C", m.ExitNode)
	assert.NotEmpty(t, m.EntryNode)
	assert.Equal(t, 3, m.MaxIterations)
	assert.Equal(t, 30*time.Second, m.Timeout)
	require.NotNil(t, m.ConvergenceThreshold)
	assert.InDelta(t, 0.8, *m.ConvergenceThreshold, 1e-9)
	assert.Equal(t, schema.ExitConvergence, m.ExitConditions[0].Type)
}

func TestFromSCC_EntryPointFromOutside(t *testing.T) {
	conns := append(triangle(nil), conn("s-b", "S", "B"))
	loops := graph.DetectLoops(conns)
	require.Len(t, loops, 1)

	m := FromSCC(loops[0], conns)
	assert.Equal(t, "B", m.EntryNode)
	assert.Equal(t, DefaultMaxIterations, m.MaxIterations)
}

func TestEntryAndExitNode(t *testing.T) {
	scc := graph.StronglyConnectedComponent{
		Nodes:       []string{"A", "B", "C"},
		EntryPoints: []string{"B"},
		ExitPoints:  []string{"C"},
	}
	assert.Equal(t, "B", EntryNode(scc))
	assert.Equal(t, "C", ExitNode(scc))

	closed := graph.StronglyConnectedComponent{Nodes: []string{"A", "B", "C"}}
	assert.Equal(t, "A", EntryNode(closed))
	assert.Equal(t, "C", ExitNode(closed))

	assert.Empty(t, EntryNode(graph.StronglyConnectedComponent{}))
	assert.Empty(t, ExitNode(graph.StronglyConnectedComponent{}))
}

func TestMaxIterationsFor(t *testing.T) {
	assert.Equal(t, DefaultMaxIterations, MaxIterationsFor(nil))
	assert.Equal(t, DefaultMaxIterations, MaxIterationsFor(&schema.LoopConfig{}))
	assert.Equal(t, 7, MaxIterationsFor(&schema.LoopConfig{MaxIterations: 7}))
}

func TestConfigFor_PrefersLoopEdge(t *testing.T) {
	plain := &schema.LoopConfig{MaxIterations: 7}
	flagged := &schema.LoopConfig{MaxIterations: 4}

	conns := triangle(flagged)
	conns[0].LoopConfig = plain

	loops := graph.DetectLoops(conns)
	require.Len(t, loops, 1)
	assert.Same(t, flagged, ConfigFor(loops[0], conns))

	conns[2].LoopConfig = nil
	assert.Same(t, plain, ConfigFor(loops[0], conns))
}

func TestConfigFor_IgnoresEdgesLeavingTheLoop(t *testing.T) {
	out := conn("c-d", "C", "D")
	out.LoopConfig = &schema.LoopConfig{MaxIterations: 99}
	conns := append(triangle(nil), out)

	loops := graph.DetectLoops(conns)
	require.Len(t, loops, 1)
	assert.Nil(t, ConfigFor(loops[0], conns))
}

func TestApplyConfig_ZeroValuesKeepDefaults(t *testing.T) {
	m := NewMetadata()
	m.ApplyConfig(&schema.LoopConfig{})
	assert.Equal(t, DefaultMaxIterations, m.MaxIterations)
	assert.Equal(t, DefaultTimeout, m.Timeout)
	assert.Len(t, m.ExitConditions, 1)

	m.ApplyConfig(nil)
	assert.Equal(t, DefaultMaxIterations, m.MaxIterations)
}

func TestSnapshot(t *testing.T) {
	clock := newFakeClock()
	m := metaWith(clock)
	m.Nodes = []string{"A", "B"}

	s := m.Snapshot(clock.Now())
	assert.Equal(t, "↻ max 10", s.Badge)
	assert.Nil(t, s.RemainingMs)
	assert.Equal(t, 10, s.RemainingIterations)

	m.CurrentIteration = 2
	m.History.Append("one")
	m.History.Append("two")
	clock.Advance(4 * time.Second)

	s = m.Snapshot(clock.Now())
	assert.Equal(t, "↻ 2/10", s.Badge)
	assert.Equal(t, int64(4000), s.ElapsedMs)
	require.NotNil(t, s.RemainingMs)
	assert.Equal(t, int64(16000), *s.RemainingMs)
	assert.Equal(t, []string{"one", "two"}, s.History)
	assert.Equal(t, 2, s.HistoryTotal)
}
