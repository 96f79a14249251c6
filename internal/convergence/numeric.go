package convergence

import (
	"math"
	"regexp"
	"strconv"
)

// DefaultNumericThreshold is the absolute tolerance for HasNumericConverged.
const DefaultNumericThreshold = 0.001

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ExtractNumericValue returns the last number found in text. Generated text
// tends to end with its answer, so the trailing match wins.
func ExtractNumericValue(text string) (float64, bool) {
	matches := numberPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// HasNumericConverged reports whether each of the last window+1 values is
// within threshold of the most recent one.
func HasNumericConverged(values []float64, threshold float64, window int) bool {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(values) < window+1 {
		return false
	}

	last := values[len(values)-1]
	for _, v := range values[len(values)-1-window:] {
		if math.Abs(v-last) > threshold {
			return false
		}
	}
	return true
}

// ExtractNumericHistory pulls a number out of every entry that has one.
func ExtractNumericHistory(history []string) []float64 {
	out := make([]float64, 0, len(history))
	for _, h := range history {
		if v, ok := ExtractNumericValue(h); ok {
			out = append(out, v)
		}
	}
	return out
}
