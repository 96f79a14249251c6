package loop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvalCustom_Contains(t *testing.T) {
	assert.Equal(t, customResult{true, true}, evalCustom(`contains 'DONE'`, "task done.", 1))
	assert.Equal(t, customResult{true, true}, evalCustom(`contains "all good"`, "All Good here", 1))
	assert.Equal(t, customResult{true, false}, evalCustom(`contains 'missing'`, "task done.", 1))
}

func TestEvalCustom_Length(t *testing.T) {
	long := strings.Repeat("x", 150)
	assert.True(t, evalCustom("length > 100", long, 1).matched)
	assert.False(t, evalCustom("length < 100", long, 1).matched)
	assert.True(t, evalCustom("length == 150", long, 1).matched)
	assert.True(t, evalCustom("length = 3", "héé", 1).matched, "length counts runes")
}

func TestEvalCustom_Iteration(t *testing.T) {
	assert.True(t, evalCustom("iteration >= 3", "", 3).matched)
	assert.False(t, evalCustom("iteration >= 3", "", 2).matched)
	assert.True(t, evalCustom("  iteration<=2  ", "", 2).matched)
}

func TestEvalCustom_Value(t *testing.T) {
	assert.True(t, evalCustom("value < 0.5", "loss: 0.31", 1).matched)
	assert.False(t, evalCustom("value < 0.5", "loss 0.9 then 0.7", 1).matched)
	assert.True(t, evalCustom("value >= -2", "delta -1.5", 1).matched)

	res := evalCustom("value > 1", "no numbers here", 1)
	assert.True(t, res.recognized)
	assert.False(t, res.matched)
}

func TestEvalCustom_Unrecognized(t *testing.T) {
	for _, expr := range []string{"", "output is good", "length >> 3", "contains unquoted", "iteration > x"} {
		assert.False(t, evalCustom(expr, "anything 5", 9).recognized, expr)
	}
}

func TestIsBuiltinCondition(t *testing.T) {
	assert.True(t, IsBuiltinCondition("length > 10"))
	assert.True(t, IsBuiltinCondition(`contains "x"`))
	assert.False(t, IsBuiltinCondition("cel: iteration > 1"))
}
