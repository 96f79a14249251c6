package loop

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/albert-ai/loopguard/internal/convergence"
)

var (
	containsPattern  = regexp.MustCompile(`(?i)^contains\s+(?:'([^']*)'|"([^"]*)")$`)
	lengthPattern    = regexp.MustCompile(`(?i)^length\s*(>=|<=|==|=|>|<)\s*(\d+)$`)
	iterationPattern = regexp.MustCompile(`(?i)^iteration\s*(>=|<=|==|=|>|<)\s*(\d+)$`)
	valuePattern     = regexp.MustCompile(`(?i)^value\s*(>=|<=|==|=|>|<)\s*(-?\d+(?:\.\d+)?)$`)
)

// customResult is the outcome of matching the built-in condition grammar.
type customResult struct {
	recognized bool
	matched    bool
}

// evalCustom matches the built-in forms in order, first match wins:
//
//	contains 'text'    case-insensitive substring of output
//	length > 100       output length in runes
//	iteration >= 3     current iteration
//	value < 0.5        last number in output, if any
func evalCustom(expression, output string, iteration int) customResult {
	e := strings.TrimSpace(expression)

	if m := containsPattern.FindStringSubmatch(e); m != nil {
		needle := m[1]
		if needle == "" {
			needle = m[2]
		}
		return customResult{
			recognized: true,
			matched:    strings.Contains(strings.ToLower(output), strings.ToLower(needle)),
		}
	}
	if m := lengthPattern.FindStringSubmatch(e); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return customResult{}
		}
		return customResult{recognized: true, matched: compare(float64(utf8.RuneCountInString(output)), m[1], float64(n))}
	}
	if m := iterationPattern.FindStringSubmatch(e); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return customResult{}
		}
		return customResult{recognized: true, matched: compare(float64(iteration), m[1], float64(n))}
	}
	if m := valuePattern.FindStringSubmatch(e); m != nil {
		target, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return customResult{}
		}
		v, ok := convergence.ExtractNumericValue(output)
		if !ok {
			return customResult{recognized: true}
		}
		return customResult{recognized: true, matched: compare(v, m[1], target)}
	}
	return customResult{}
}

// IsBuiltinCondition reports whether expression uses the built-in grammar.
func IsBuiltinCondition(expression string) bool {
	e := strings.TrimSpace(expression)
	return containsPattern.MatchString(e) ||
		lengthPattern.MatchString(e) ||
		iterationPattern.MatchString(e) ||
		valuePattern.MatchString(e)
}

func compare(left float64, op string, right float64) bool {
	switch op {
	case ">":
		return left > right
	case ">=":
		return left >= right
	case "<":
		return left < right
	case "<=":
		return left <= right
	case "==", "=":
		return left == right
	}
	return false
}
