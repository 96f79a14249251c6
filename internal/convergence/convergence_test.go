package convergence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasConverged_IdenticalWindow(t *testing.T) {
	history := []string{"stable output", "stable output", "stable output", "stable output"}
	assert.True(t, HasConverged(history, 0.95, 3))
}

func TestHasConverged_TooShort(t *testing.T) {
	history := []string{"stable output", "stable output", "stable output"}
	assert.False(t, HasConverged(history, 0.95, 3))
}

func TestHasConverged_LargeEdits(t *testing.T) {
	history := []string{"qwertyuiop", "asdfghjkl", "zxcvbnm", "1234567890"}
	assert.False(t, HasConverged(history, 0.95, 3))
}

func TestHasConverged_OnlyTrailingWindowMatters(t *testing.T) {
	history := []string{"something else entirely", "draft v3", "draft v3", "draft v3", "draft v3"}
	assert.True(t, HasConverged(history, 0.95, 3))
}

func TestHasConverged_ThresholdBounds(t *testing.T) {
	history := []string{"a", "b", "c", "d"}
	assert.True(t, HasConverged(history, 0, 3), "threshold 0 is always met")
	same := []string{"x", "x", "x", "x"}
	assert.False(t, HasConverged(same, 1.01, 3), "threshold above 1 is never met")
}

func TestHasConverged_DefaultWindow(t *testing.T) {
	history := []string{"ok", "ok", "ok", "ok"}
	assert.True(t, HasConverged(history, 0.95, 0))
}

func TestIsOscillating_AlternatingStates(t *testing.T) {
	history := []string{"A result", "B result", "A result", "B result"}
	assert.True(t, IsOscillating(history, 4))
}

func TestIsOscillating_TooShort(t *testing.T) {
	assert.False(t, IsOscillating([]string{"A result", "B result", "A result"}, 4))
}

func TestIsOscillating_Progressing(t *testing.T) {
	history := []string{"first draft", "completely new idea", "a third approach here", "final unrelated text"}
	assert.False(t, IsOscillating(history, 4))
}

func TestChangeRate(t *testing.T) {
	assert.Equal(t, 1.0, ChangeRate(nil))
	assert.Equal(t, 1.0, ChangeRate([]string{"only"}))
	assert.Equal(t, 0.0, ChangeRate([]string{"x", "same", "same"}))
	assert.InDelta(t, 0.125, ChangeRate([]string{"A result", "B result"}), 1e-9)
}

func TestCheck(t *testing.T) {
	r := Check([]string{"A result", "B result", "A result", "B result"}, 0.95, 3)
	assert.False(t, r.Converged)
	assert.True(t, r.Oscillating)
	assert.InDelta(t, 0.875, r.Similarity, 1e-9)
	assert.InDelta(t, 0.125, r.ChangeRate, 1e-9)
}

func TestCheck_Converged(t *testing.T) {
	r := Check([]string{"done", "done", "done", "done"}, 0.95, 3)
	assert.True(t, r.Converged)
	assert.Equal(t, 1.0, r.Similarity)
	assert.Equal(t, 0.0, r.ChangeRate)
}

func TestCheck_SingleEntry(t *testing.T) {
	r := Check([]string{"one"}, 0.95, 3)
	assert.False(t, r.Converged)
	assert.False(t, r.Oscillating)
	assert.Equal(t, 0.0, r.Similarity)
	assert.Equal(t, 1.0, r.ChangeRate)
}
