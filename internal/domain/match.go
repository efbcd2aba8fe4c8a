package domain

import "time"

// MatchMethod enumerates how a match result was produced.
type MatchMethod string

const (
	MethodExactCode MatchMethod = "exact-code"
	MethodExactName MatchMethod = "exact-name"
	MethodFuzzyName MatchMethod = "fuzzy-name"
	MethodUnmatched MatchMethod = "unmatched"
)

// MatchResult is the durable output of matching one NDC. NdcRaw is the
// unique key: at most one live result per raw code, re-matching upserts.
// An empty Rxcui means "no acceptable match found", which is itself a
// valid durable outcome.
type MatchResult struct {
	NdcRaw            string      `json:"ndcRaw"`
	NormalizedNdc     string      `json:"normalizedNdc,omitempty"`
	Rxcui             string      `json:"rxcui,omitempty"`
	RxNormName        string      `json:"rxnormName,omitempty"`
	Confidence        float64     `json:"confidence"`
	Method            MatchMethod `json:"method"`
	MatchedAt         time.Time   `json:"matchedAt"`
	SourceProductName string      `json:"sourceProductName,omitempty"`
}

// Matched reports whether the result carries an accepted RxNorm concept.
func (r MatchResult) Matched() bool {
	return r.Rxcui != "" && r.Method != MethodUnmatched
}

// BatchReport summarizes one orchestrator run. SkippedNdcs carries the raw
// codes that exhausted their transient-failure retries so a caller can
// re-run just that subset.
type BatchReport struct {
	Processed   int           `json:"processed"`
	Matched     int           `json:"matched"`
	Unmatched   int           `json:"unmatched"`
	Skipped     int           `json:"skipped"`
	SkippedNdcs []string      `json:"skippedNdcs,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// StoreStats is the aggregate view the status surfaces report.
type StoreStats struct {
	TotalResults      int     `json:"totalResults"`
	MatchedResults    int     `json:"matchedResults"`
	UnmatchedResults  int     `json:"unmatchedResults"`
	AverageConfidence float64 `json:"averageConfidence"`
}
