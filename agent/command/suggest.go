package command

import (
	"sort"
	"strings"
)

const (
	maxSuggestions     = 3
	maxSuggestDistance = 2
)

// suggest ranks known aliases by edit distance to token. Aliases sharing a
// prefix with token are kept even when the distance is larger.
func suggest(token string, aliases []string) []string {
	type scored struct {
		alias    string
		distance int
	}

	var matches []scored
	for _, alias := range aliases {
		d := levenshtein(token, alias)
		if d <= maxSuggestDistance || strings.HasPrefix(alias, token) || strings.HasPrefix(token, alias) {
			matches = append(matches, scored{alias: alias, distance: d})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].alias < matches[j].alias
	})

	out := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, m.alias)
	}
	return out
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
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
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
