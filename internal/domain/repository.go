package domain

import (
	"context"
	"io"
	"time"
)

// TerminologyClient defines the interface for the RxNorm lookup service.
// Implementations own retries, backoff and rate limiting; a successful
// response with zero concepts returns an empty slice and a nil error.
type TerminologyClient interface {
	LookupByNdc(ctx context.Context, ndc NormalizedNdc) ([]RxNormCandidate, error)
	LookupByName(ctx context.Context, name string) ([]RxNormCandidate, error)
}

// MatchStore defines the interface for match result persistence.
// Upserts are idempotent and keyed by NdcRaw; a batch is applied
// atomically so exports never observe a half-written batch.
type MatchStore interface {
	Upsert(ctx context.Context, result MatchResult) error
	UpsertBatch(ctx context.Context, results []MatchResult) error
	Get(ctx context.Context, ndcRaw string) (*MatchResult, error)
	FindByName(ctx context.Context, query string, minConfidence float64, limit int) ([]MatchResult, error)
	FindByRxcui(ctx context.Context, rxcui string) ([]MatchResult, error)
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
	Export(ctx context.Context, format string, w io.Writer) (int, error)
	Stats(ctx context.Context) (*StoreStats, error)
}

// CandidateCache defines the interface for caching candidate lookups.
// Name queries repeat heavily across a directory run (one product, many
// package codes), so a hit avoids a remote round trip.
type CandidateCache interface {
	Get(key string) ([]RxNormCandidate, bool)
	Set(key string, candidates []RxNormCandidate, ttl time.Duration)
}
