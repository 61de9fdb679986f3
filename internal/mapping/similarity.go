package mapping

// Levenshtein returns the edit distance between a and b counted in bytes.
// Compact keys are ASCII, so byte and rune distance agree for them.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	row := make([]int, len(a)+1)
	next := make([]int, len(a)+1)
	for i := range row {
		row[i] = i
	}

	for j := 1; j <= len(b); j++ {
		next[0] = j
		for i := 1; i <= len(a); i++ {
			sub := row[i-1]
			if a[i-1] != b[j-1] {
				sub++
			}
			next[i] = min(row[i]+1, next[i-1]+1, sub)
		}
		row, next = next, row
	}
	return row[len(a)]
}

// Similarity scores a and b in [0,1] as 1 - distance/max(len). Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}
