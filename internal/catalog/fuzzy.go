package catalog

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultMatchThreshold is the similarity score (0-100) a candidate must
// exceed to be accepted. 70 keeps deliberately similar rival names (e.g.
// "Oxycodone 10mg" vs "Oxazepam 10mg") apart while still absorbing a typo
// or two in user input.
const DefaultMatchThreshold = 70

// queryStopwords are filler tokens stripped from user-supplied medicine
// phrases before scoring ("i need some paracetamol" -> "paracetamol").
var queryStopwords = map[string]struct{}{
	"i": {}, "need": {}, "want": {}, "give": {}, "me": {}, "please": {},
	"buy": {}, "order": {}, "to": {}, "a": {}, "an": {}, "the": {},
	"some": {}, "get": {}, "of": {}, "pack": {}, "packs": {},
}

// NormalizeQuery strips standalone numeric tokens and stop-words from a raw
// medicine phrase. Tokens like "500mg" survive because they carry meaning.
func NormalizeQuery(raw string) string {
	var kept []string
	for _, tok := range strings.Fields(strings.ToLower(raw)) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok == "" || isNumeric(tok) {
			continue
		}
		if _, stop := queryStopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// Match scores input against every candidate name and returns the best one
// along with its score, if the score exceeds threshold. A zero or negative
// threshold falls back to DefaultMatchThreshold.
func Match(input string, candidates []string, threshold int) (string, int, bool) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	query := NormalizeQuery(input)
	if query == "" || len(candidates) == 0 {
		return "", 0, false
	}

	bestName := ""
	bestScore := 0
	for _, name := range candidates {
		score := Similarity(query, strings.ToLower(name))
		if score > bestScore {
			bestScore = score
			bestName = name
		}
	}

	if bestScore > threshold {
		return bestName, bestScore, true
	}
	return "", bestScore, false
}

// Similarity returns a 0-100 score combining whole-string edit distance,
// token-sorted edit distance, and substring containment.
func Similarity(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	score := levenshteinRatio(a, b)

	if sorted := levenshteinRatio(sortTokens(a), sortTokens(b)); sorted > score {
		score = sorted
	}

	// A catalog name usually carries strength/form suffixes the user omits
	// ("Paracetamol 500mg Tablets" vs "paracetamol"). Containment of a
	// reasonably long query caps out at 90 so an exact hit still ranks higher.
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= 4 && strings.Contains(longer, shorter) && score < 90 {
		score = 90
	}

	// Token-level alignment rescues typos against names that carry extra
	// tokens ("paracetmol" vs "paracetamol 500mg tablets"), where the
	// whole-string ratio collapses. Also capped at 90.
	if partial := partialTokenScore(a, b); partial > score {
		score = partial
	}

	return score
}

func partialTokenScore(a, b string) int {
	queryTokens := strings.Fields(a)
	nameTokens := strings.Fields(b)
	if len(queryTokens) == 0 || len(nameTokens) == 0 {
		return 0
	}
	if len(queryTokens) > len(nameTokens) {
		queryTokens, nameTokens = nameTokens, queryTokens
	}

	total := 0
	for _, qt := range queryTokens {
		best := 0
		for _, nt := range nameTokens {
			if r := levenshteinRatio(qt, nt); r > best {
				best = r
			}
		}
		total += best
	}
	avg := total / len(queryTokens)
	if avg > 90 {
		avg = 90
	}
	return avg
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func levenshteinRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein(ra, rb)
	return int(float64(longest-dist) / float64(longest) * 100)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
