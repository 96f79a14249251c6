package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingIterations(t *testing.T) {
	m := NewMetadata()
	m.MaxIterations = 5

	m.CurrentIteration = 2
	assert.Equal(t, 3, RemainingIterations(m))

	m.CurrentIteration = 7
	assert.Equal(t, 0, RemainingIterations(m))
}

func TestRemainingTime(t *testing.T) {
	clock := newFakeClock()
	m := metaWith(clock)
	m.MaxIterations = 5

	_, ok := RemainingTime(m, clock.Now())
	assert.False(t, ok, "unknown before the first iteration")

	m.CurrentIteration = 2
	clock.Advance(10 * time.Second)
	d, ok := RemainingTime(m, clock.Now())
	assert.True(t, ok)
	assert.Equal(t, 15*time.Second, d)
}
