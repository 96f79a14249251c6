package loop

import (
	"sync"
	"time"

	"github.com/albert-ai/loopguard/pkg/schema"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func conn(id, from, to string) schema.Connection {
	return schema.Connection{ID: id, FromNodeID: from, ToNodeID: to}
}

func triangle(cfg *schema.LoopConfig) []schema.Connection {
	back := conn("c-a", "C", "A")
	back.IsLoopEdge = true
	back.LoopConfig = cfg
	return []schema.Connection{conn("a-b", "A", "B"), conn("b-c", "B", "C"), back}
}

// metaWith builds loop state at the clock's current time.
func metaWith(clock *fakeClock, conds ...schema.LoopExitCondition) *Metadata {
	m := NewMetadata(WithStartTime(clock.Now()), WithLoopID("loop-1"))
	if len(conds) > 0 {
		m.ExitConditions = conds
	}
	return m
}
