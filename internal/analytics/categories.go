package analytics

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how far a category limit may be from a spent
// category and still be offered as a correction.
const maxSuggestDistance = 2

// SuggestCategories maps every name in limits that matches none of spent to
// the closest spent category, when one is near enough. Grouping stays exact
// and case-sensitive; the result is advice for the caller only.
func SuggestCategories(limits, spent []string) map[string]string {
	known := make(map[string]bool, len(spent))
	for _, c := range spent {
		known[c] = true
	}
	candidates := append([]string(nil), spent...)
	sort.Strings(candidates)

	out := map[string]string{}
	for _, name := range limits {
		if known[name] {
			continue
		}
		if best, ok := closestCategory(name, candidates); ok {
			out[name] = best
		}
	}
	return out
}

func closestCategory(name string, candidates []string) (string, bool) {
	lname := strings.ToLower(strings.TrimSpace(name))
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(lname, strings.ToLower(c))
		// At most half of the name may change.
		if d*2 >= len([]rune(lname)) && d > 0 {
			continue
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, best != ""
}
