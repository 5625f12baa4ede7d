package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Order matters: "N of M" would otherwise swallow bare numbers.
	pagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)page\s+(\d+)`),
		regexp.MustCompile(`(?i)\bp\.\s*(\d+)`),
		regexp.MustCompile(`(?i)\b(\d+)\s+of\s+\d+\b`),
	}
)

// SanitizeText strips C0 control characters (keeping \n and \t as spaces)
// and collapses runs of whitespace to a single space.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}

// ExtractPageNumber finds the first page reference in text. Returns 0 when
// no pattern matches.
func ExtractPageNumber(text string) int {
	for _, re := range pagePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// Tokenize lowercases text and splits it into alphanumeric word tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// WordSet returns the set of distinct tokens in text.
func WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Tokenize(text) {
		set[w] = struct{}{}
	}
	return set
}

// JaccardWords computes word-level Jaccard similarity between two texts.
// Two empty texts are identical (1.0).
func JaccardWords(a, b string) float64 {
	sa, sb := WordSet(a), WordSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	inter := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// EditDistance computes the Levenshtein distance between a and b. maxDist
// short-circuits: once every cell in a row exceeds maxDist the function
// returns maxDist+1, which keeps near-duplicate checks cheap on long chunks.
func EditDistance(a, b string, maxDist int) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if maxDist >= 0 && len(rb)-len(ra) > maxDist {
		return maxDist + 1
	}
	prev := make([]int, len(ra)+1)
	cur := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 1; j <= len(rb); j++ {
		cur[0] = j
		rowMin := cur[0]
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[i] = min(prev[i]+1, cur[i-1]+1, prev[i-1]+cost)
			if cur[i] < rowMin {
				rowMin = cur[i]
			}
		}
		if maxDist >= 0 && rowMin > maxDist {
			return maxDist + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(ra)]
}

// TruncateRunes cuts s to at most n runes without splitting a rune.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
