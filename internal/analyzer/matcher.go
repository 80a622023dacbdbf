package analyzer

import "strings"

// QueryTerms splits a search query into the terms worth counting on a page.
// Search operators like site: and quoted phrases are stripped down to their
// useful content; single-character leftovers are dropped.
func QueryTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(query) {
		if strings.Contains(field, ":") {
			// site:example.com, inurl:..., etc.
			continue
		}
		term := strings.Trim(field, `"'`)
		if len(term) < 2 {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// CountTermMatches counts case-insensitive occurrences of each term in the
// content. Terms that never appear are omitted so the result marshals small.
func CountTermMatches(content string, terms []string) map[string]int {
	if content == "" || len(terms) == 0 {
		return nil
	}

	lowerContent := strings.ToLower(content)

	var counts map[string]int
	for _, term := range terms {
		n := strings.Count(lowerContent, strings.ToLower(term))
		if n == 0 {
			continue
		}
		if counts == nil {
			counts = make(map[string]int, len(terms))
		}
		counts[term] = n
	}
	return counts
}
