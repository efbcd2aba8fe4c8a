package domain

// RxNormCandidate is a concept returned by the RxNorm terminology service.
// Candidates are transient: fetched per lookup, never persisted on their own.
type RxNormCandidate struct {
	Rxcui    string   `json:"rxcui"`
	Name     string   `json:"name"`
	TermType string   `json:"termType"`
	Synonyms []string `json:"synonyms,omitempty"`
	// Ndc is the candidate's own associated NDC when the service exposes
	// one (ndcproperties responses do, drug search responses do not).
	Ndc string `json:"ndc,omitempty"`
}

// termTypeRank orders RxNorm term types from most to least clinically
// specific. Lower rank wins a score tie: a semantic clinical drug beats a
// branded or marketing form describing the same concept.
var termTypeRank = map[string]int{
	"SCD":  0, // semantic clinical drug
	"SCDF": 1,
	"SCDG": 2,
	"GPCK": 3, // generic pack
	"SBD":  4, // semantic branded drug
	"SBDF": 5,
	"SBDG": 6,
	"BPCK": 7, // branded pack
	"PSN":  8,
	"BN":   9,
	"MIN":  10,
	"PIN":  11,
	"IN":   12,
}

const unrankedTermType = 13

// TermTypeRank returns the tie-break rank for a term type. Unknown types
// rank last.
func TermTypeRank(tty string) int {
	if r, ok := termTypeRank[tty]; ok {
		return r
	}
	return unrankedTermType
}

// PreferCandidate reports whether a should be preferred over b when both
// carry the same score: first by term-type specificity, then by ascending
// rxcui so the choice is fully deterministic.
func PreferCandidate(a, b RxNormCandidate) bool {
	ra, rb := TermTypeRank(a.TermType), TermTypeRank(b.TermType)
	if ra != rb {
		return ra < rb
	}
	return a.Rxcui < b.Rxcui
}
