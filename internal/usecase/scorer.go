package usecase

import (
	"regexp"
	"strings"
	"time"

	"github.com/rxlens/backend/internal/domain"
)

// Confidence assigned per match method. Fuzzy matches carry their own
// similarity score instead.
const (
	confidenceExactCode = 1.0
	confidenceExactName = 0.9
)

// Defaults applied when the config leaves a knob unset.
const (
	defaultFuzzyThreshold    = 0.75
	defaultFuzzyEditDistance = 1
)

var (
	punctuationRegex = regexp.MustCompile(`[^\w\s]`)
	multiSpaceRegex  = regexp.MustCompile(`\s+`)
	// Splits tokens like "500mg" into "500" and "mg" so dose strength and
	// unit can match independently across FDA and RxNorm naming styles.
	digitAlphaBoundary = regexp.MustCompile(`(\d)([a-z])|([a-z])(\d)`)
)

// ScorerConfig holds configuration for the match scorer.
type ScorerConfig struct {
	// FuzzyThreshold is the minimum token-set similarity for a fuzzy-name
	// match to be accepted.
	FuzzyThreshold float64
	// FuzzyEditDistance is the Levenshtein tolerance when comparing
	// individual tokens.
	FuzzyEditDistance int
}

// Scorer picks (or rejects) the best RxNorm candidate for an FDA product.
// Pure aside from its configured threshold: no I/O, safe for concurrent use.
type Scorer struct {
	fuzzyThreshold    float64
	fuzzyEditDistance int
	now               func() time.Time
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg ScorerConfig) *Scorer {
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}
	editDist := cfg.FuzzyEditDistance
	if editDist <= 0 {
		editDist = defaultFuzzyEditDistance
	}
	return &Scorer{
		fuzzyThreshold:    threshold,
		fuzzyEditDistance: editDist,
		now:               time.Now,
	}
}

// Score evaluates candidates against the record in fixed priority order:
// exact code, exact normalized name, fuzzy name above threshold, otherwise
// unmatched. Ties within a tier fall to domain.PreferCandidate so the
// outcome is fully deterministic.
func (s *Scorer) Score(record domain.NdcRecord, normalized domain.NormalizedNdc, candidates []domain.RxNormCandidate) domain.MatchResult {
	result := domain.MatchResult{
		NdcRaw:            record.NdcRaw,
		NormalizedNdc:     normalized.String(),
		Method:            domain.MethodUnmatched,
		MatchedAt:         s.now(),
		SourceProductName: record.ProductName,
	}
	if len(candidates) == 0 {
		return result
	}

	if c, ok := s.exactCodeMatch(normalized, candidates); ok {
		result.Rxcui = c.Rxcui
		result.RxNormName = c.Name
		result.Confidence = confidenceExactCode
		result.Method = domain.MethodExactCode
		return result
	}

	if c, ok := s.exactNameMatch(record, candidates); ok {
		result.Rxcui = c.Rxcui
		result.RxNormName = c.Name
		result.Confidence = confidenceExactName
		result.Method = domain.MethodExactName
		return result
	}

	if c, sim, ok := s.fuzzyNameMatch(record, candidates); ok {
		result.Rxcui = c.Rxcui
		result.RxNormName = c.Name
		result.Confidence = sim
		result.Method = domain.MethodFuzzyName
		return result
	}

	return result
}

// exactCodeMatch finds a candidate whose own NDC equals the input's
// canonical form.
func (s *Scorer) exactCodeMatch(normalized domain.NormalizedNdc, candidates []domain.RxNormCandidate) (domain.RxNormCandidate, bool) {
	if !normalized.Valid {
		return domain.RxNormCandidate{}, false
	}
	var best domain.RxNormCandidate
	found := false
	for _, c := range candidates {
		if c.Ndc == "" {
			continue
		}
		cn := Normalize(c.Ndc)
		if !cn.Valid || cn.Digits() != normalized.Digits() {
			continue
		}
		if !found || domain.PreferCandidate(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

// exactNameMatch finds a candidate whose name or synonym equals the product
// name after case folding and whitespace collapsing.
func (s *Scorer) exactNameMatch(record domain.NdcRecord, candidates []domain.RxNormCandidate) (domain.RxNormCandidate, bool) {
	want := normalizeName(record.ProductName)
	if want == "" {
		return domain.RxNormCandidate{}, false
	}
	var best domain.RxNormCandidate
	found := false
	for _, c := range candidates {
		if !nameEquals(want, c) {
			continue
		}
		if !found || domain.PreferCandidate(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

func nameEquals(want string, c domain.RxNormCandidate) bool {
	if normalizeName(c.Name) == want {
		return true
	}
	for _, syn := range c.Synonyms {
		if normalizeName(syn) == want {
			return true
		}
	}
	return false
}

// fuzzyNameMatch ranks candidates by token-set similarity against the
// product name and accepts the best one when it clears the threshold.
func (s *Scorer) fuzzyNameMatch(record domain.NdcRecord, candidates []domain.RxNormCandidate) (domain.RxNormCandidate, float64, bool) {
	queryTokens := tokenize(record.ProductName)
	if len(queryTokens) == 0 {
		return domain.RxNormCandidate{}, 0, false
	}

	var best domain.RxNormCandidate
	bestSim := -1.0
	for _, c := range candidates {
		sim := s.candidateSimilarity(queryTokens, c)
		if sim > bestSim || (sim == bestSim && domain.PreferCandidate(c, best)) {
			best = c
			bestSim = sim
		}
	}

	if bestSim < s.fuzzyThreshold {
		return best, bestSim, false
	}
	return best, bestSim, true
}

// candidateSimilarity is the best similarity over the candidate's name and
// all of its synonyms.
func (s *Scorer) candidateSimilarity(queryTokens []string, c domain.RxNormCandidate) float64 {
	sim := s.tokenSetSimilarity(queryTokens, tokenize(c.Name))
	for _, syn := range c.Synonyms {
		if v := s.tokenSetSimilarity(queryTokens, tokenize(syn)); v > sim {
			sim = v
		}
	}
	return sim
}

// tokenSetSimilarity computes an order-independent Jaccard similarity where
// two tokens also count as matching when their edit distance is within the
// configured tolerance.
func (s *Scorer) tokenSetSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := 0
	used := make([]bool, len(b))
	for _, ta := range a {
		for i, tb := range b {
			if used[i] {
				continue
			}
			if ta == tb || fuzzyTokenMatch(ta, tb, s.fuzzyEditDistance) {
				matched++
				used[i] = true
				break
			}
		}
	}
	union := len(a) + len(b) - matched
	return float64(matched) / float64(union)
}

// normalizeName lowercases, strips punctuation and collapses whitespace for
// exact-name comparison.
func normalizeName(s string) string {
	out := strings.ToLower(s)
	out = punctuationRegex.ReplaceAllString(out, " ")
	out = multiSpaceRegex.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// tokenize splits a drug name into normalized lowercase tokens, separating
// digit/letter boundaries and dropping single-character noise.
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	cleaned = digitAlphaBoundary.ReplaceAllString(cleaned, "$1$3 $2$4")

	words := strings.Fields(cleaned)
	tokens := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) <= 1 {
			continue
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance
// threshold. Short tokens are excluded to avoid false positives.
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}
	if len(token1) < 4 || len(token2) < 4 {
		return false
	}
	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}
	return levenshteinDistance(token1, token2) <= threshold
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	// Two rows instead of the full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
