// Package convergence decides whether repeated loop outputs have settled.
//
// Outputs from language models are free text, so progress is measured by
// normalised edit distance rather than by requiring numeric answers. Numeric
// helpers are provided for loops whose outputs do carry a final number.
package convergence

// Levenshtein returns the minimum number of single-rune insertions, deletions
// and substitutions that turn a into b.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Keep the shorter string on the inner axis; only two rows are needed.
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			if ra[i-1] == rb[j-1] {
				curr[i] = prev[i-1]
			} else {
				curr[i] = 1 + min(prev[i-1], prev[i], curr[i-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(ra)]
}

// StringSimilarity returns 1 - levenshtein/maxLen, in [0,1].
// Identical non-empty strings score 1. If either string is empty the score
// is 0, two empty strings included: an empty output carries no signal.
func StringSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	maxLen := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}
