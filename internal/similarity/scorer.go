// Package similarity provides the lexical text-similarity scoring used by the
// entity aligners. Scoring is purely lexical/statistical: token overlap
// (Jaccard), term-frequency cosine, and character-level edit distance,
// combined into a single score in [0,1]. No semantic models are involved.
package similarity

import (
	"math"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Metric weights for the combined score.
const (
	jaccardWeight     = 0.4
	cosineWeight      = 0.4
	levenshteinWeight = 0.2
)

var nonWordPattern = regexp.MustCompile(`[^\w\s]+`)

// stopwords is a fixed closed list of common English function words removed
// before token-level comparison. Stopword removal is word-level, so the
// Levenshtein metric operates on the normalized string before removal.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "may": {}, "might": {},
	"shall": {}, "can": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "it": {}, "its": {}, "which": {}, "who": {}, "whom": {},
}

// Normalize lowercases the input, strips non-word characters, and collapses
// runs of whitespace into single spaces.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	stripped := nonWordPattern.ReplaceAllString(lowered, "")
	return strings.Join(strings.Fields(stripped), " ")
}

// Tokenize normalizes the input and returns its tokens with stopwords removed.
func Tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; !skip {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Jaccard computes the ratio of shared unique tokens to the union of unique
// tokens. Two empty token lists score 1.0; exactly one empty scores 0.0.
func Jaccard(a, b []string) float64 {
	setA := uniqueSet(a)
	setB := uniqueSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

// Cosine computes the cosine of the term-frequency vectors over the token
// multisets. Returns 0 when either vector has zero magnitude.
func Cosine(a, b []string) float64 {
	freqA := termFrequencies(a)
	freqB := termFrequencies(b)

	var dot, normA, normB float64
	for tok, fa := range freqA {
		if fb, ok := freqB[tok]; ok {
			dot += float64(fa) * float64(fb)
		}
		normA += float64(fa) * float64(fa)
	}
	for _, fb := range freqB {
		normB += float64(fb) * float64(fb)
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// LevenshteinSimilarity converts character-level edit distance into a
// similarity: 1 - distance/max(len). Two empty strings score 1.0.
func LevenshteinSimilarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance with a two-row dynamic program.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
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
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// CombinedSimilarity blends the three metrics into one score in [0,1].
// The function is symmetric, reflexive for non-empty input, and total.
func CombinedSimilarity(a, b string) float64 {
	normA := Normalize(a)
	normB := Normalize(b)
	tokensA := Tokenize(a)
	tokensB := Tokenize(b)

	score := jaccardWeight*Jaccard(tokensA, tokensB) +
		cosineWeight*Cosine(tokensA, tokensB) +
		levenshteinWeight*LevenshteinSimilarity(normA, normB)

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func uniqueSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func termFrequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

// Match is the result of a FindBestMatch search.
type Match struct {
	Index int
	Score float64
}

// FindBestMatch returns the single highest-scoring candidate at or above the
// threshold, or ok=false when none qualifies. Ties break toward the
// first-encountered candidate, so results are stable in candidate order.
func FindBestMatch(query string, candidates []string, threshold float64) (Match, bool) {
	best := Match{Index: -1}
	for i, candidate := range candidates {
		score := CombinedSimilarity(query, candidate)
		if score > best.Score && score >= threshold {
			best = Match{Index: i, Score: score}
		}
	}
	if best.Index < 0 {
		return Match{Index: -1}, false
	}
	return best, true
}

// Scorer memoizes pairwise combined-similarity scores behind an LRU cache.
// Alignment passes compare the same entity texts repeatedly; the cache keeps
// the greedy matching loops from recomputing identical pairs.
type Scorer struct {
	cache    *lru.Cache[string, float64]
	capacity int
}

// NewScorer creates a memoizing scorer. cacheSize <= 0 disables memoization.
func NewScorer(cacheSize int) *Scorer {
	s := &Scorer{}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes, which is guarded above.
		cache, err := lru.New[string, float64](cacheSize)
		if err == nil {
			s.cache = cache
			s.capacity = cacheSize
		}
	}
	return s
}

// CacheCap reports the memo cache capacity, 0 when memoization is disabled.
func (s *Scorer) CacheCap() int {
	if s == nil || s.cache == nil {
		return 0
	}
	return s.capacity
}

// Combined returns CombinedSimilarity(a, b), memoized when a cache is present.
// The cache key is order-normalized so symmetry is preserved.
func (s *Scorer) Combined(a, b string) float64 {
	if s == nil || s.cache == nil {
		return CombinedSimilarity(a, b)
	}

	key := a + "\x00" + b
	if b < a {
		key = b + "\x00" + a
	}
	if score, ok := s.cache.Get(key); ok {
		return score
	}

	score := CombinedSimilarity(a, b)
	s.cache.Add(key, score)
	return score
}
