// Package similarity provides the pure, stateless similarity functions used
// by the resolver's comparison stage. Every function returns a score in
// [0.0, 1.0], is symmetric in its arguments, and treats comparisons against
// an empty value as 0.0 rather than an error.
package similarity

import "unicode/utf8"

// JaroWinkler computes the Jaro-Winkler similarity between two strings.
// It boosts the plain Jaro score for strings sharing a common prefix (up to
// four runes), which suits person and organization names well.
func JaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	jaro := Jaro(a, b)
	if jaro == 0 {
		return 0
	}

	ra, rb := []rune(a), []rune(b)
	prefix := 0
	for prefix < len(ra) && prefix < len(rb) && prefix < 4 && ra[prefix] == rb[prefix] {
		prefix++
	}

	const scaling = 0.1
	return jaro + float64(prefix)*scaling*(1.0-jaro)
}

// Jaro computes the Jaro similarity between two strings.
func Jaro(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	matchWindow := max(la, lb)/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	matchedA := make([]bool, la)
	matchedB := make([]bool, lb)

	matches := 0
	for i := 0; i < la; i++ {
		lo := i - matchWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + matchWindow + 1
		if hi > lb {
			hi = lb
		}
		for j := lo; j < hi; j++ {
			if matchedB[j] || ra[i] != rb[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions between the matched sequences.
	transpositions := 0
	j := 0
	for i := 0; i < la; i++ {
		if !matchedA[i] {
			continue
		}
		for !matchedB[j] {
			j++
		}
		if ra[i] != rb[j] {
			transpositions++
		}
		j++
	}
	transpositions /= 2

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions))/m) / 3.0
}

// LevenshteinRatio computes an edit-distance similarity normalized to
// [0.0, 1.0]: 1 - distance/maxLen.
func LevenshteinRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}

	return 1.0 - float64(Levenshtein(a, b))/float64(longest)
}

// Levenshtein computes the edit distance (insertions, deletions,
// substitutions) between two strings, by rune.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Exact returns 1.0 when the two strings are identical, 0.0 otherwise, with
// the empty-string rule applied. Used for categorical attributes.
func Exact(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
