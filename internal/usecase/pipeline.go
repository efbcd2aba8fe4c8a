package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rxlens/backend/internal/domain"
)

// Defaults applied when a batch request leaves a knob unset.
const (
	defaultConcurrency  = 4
	defaultMaxAttempts  = 3
	defaultFlushSize    = 100
	defaultNameCacheTTL = time.Hour
)

// PipelineConfig holds per-run options for the matching orchestrator.
type PipelineConfig struct {
	// Concurrency is the worker pool width.
	Concurrency int
	// MaxAttempts is the total attempt ceiling per record, including the
	// first, applied to transient terminology failures.
	MaxAttempts int
	// FlushSize is how many completed results are grouped into one
	// atomic store write.
	FlushSize int
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.FlushSize <= 0 {
		c.FlushSize = defaultFlushSize
	}
	return c
}

// Pipeline drives the full matching flow over NDC records: normalize, query
// the terminology service, score, persist. It is the only component aware of
// batching and concurrency.
type Pipeline struct {
	client    domain.TerminologyClient
	store     domain.MatchStore
	scorer    *Scorer
	nameCache domain.CandidateCache
	cacheTTL  time.Duration
	log       *zap.Logger
}

// NewPipeline creates a pipeline. nameCache may be nil to disable caching of
// name lookups.
func NewPipeline(
	client domain.TerminologyClient,
	store domain.MatchStore,
	scorer *Scorer,
	nameCache domain.CandidateCache,
	log *zap.Logger,
) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		client:    client,
		store:     store,
		scorer:    scorer,
		nameCache: nameCache,
		cacheTTL:  defaultNameCacheTTL,
		log:       log,
	}
}

// RunBatch processes records with a bounded worker pool and returns the
// per-outcome counts. Per-record failures never abort the batch. The
// cancellation signal is honored between records only; in-flight lookups
// finish on their own HTTP timeout.
func (p *Pipeline) RunBatch(ctx context.Context, records []domain.NdcRecord, cfg PipelineConfig) (*domain.BatchReport, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	report := &domain.BatchReport{}
	var mu sync.Mutex

	skip := func(ndcRaw string) {
		mu.Lock()
		report.Skipped++
		report.SkippedNdcs = append(report.SkippedNdcs, ndcRaw)
		mu.Unlock()
	}

	results := make(chan domain.MatchResult, cfg.Concurrency)
	writerDone := make(chan struct{})

	// Completed results are grouped into atomic batch writes so readers
	// never observe a half-written flush. A failed flush skips its whole
	// group: a stale row must not overwrite a pending retry.
	go func() {
		defer close(writerDone)
		buf := make([]domain.MatchResult, 0, cfg.FlushSize)
		flush := func() {
			if len(buf) == 0 {
				return
			}
			if err := p.store.UpsertBatch(context.WithoutCancel(ctx), buf); err != nil {
				p.log.Error("batch write failed",
					zap.Int("size", len(buf)),
					zap.Error(err))
				mu.Lock()
				for _, r := range buf {
					report.Skipped++
					report.SkippedNdcs = append(report.SkippedNdcs, r.NdcRaw)
				}
				mu.Unlock()
			} else {
				mu.Lock()
				for _, r := range buf {
					if r.Matched() {
						report.Matched++
					} else {
						report.Unmatched++
					}
				}
				mu.Unlock()
			}
			buf = buf[:0]
		}
		for r := range results {
			buf = append(buf, r)
			if len(buf) >= cfg.FlushSize {
				flush()
			}
		}
		flush()
	}()

	g := new(errgroup.Group)
	g.SetLimit(cfg.Concurrency)

	for _, rec := range records {
		// Stop dispatching after the in-flight records complete.
		if ctx.Err() != nil {
			break
		}
		rec := rec
		g.Go(func() error {
			result, err := p.matchWithRetry(ctx, rec, cfg.MaxAttempts)
			if err != nil {
				p.log.Warn("record skipped after retries",
					zap.String("ndc", rec.NdcRaw),
					zap.Int("maxAttempts", cfg.MaxAttempts),
					zap.Error(err))
				skip(rec.NdcRaw)
				return nil
			}
			results <- result
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	<-writerDone

	report.Processed = report.Matched + report.Unmatched + report.Skipped
	report.Duration = time.Since(start)

	p.log.Info("batch complete",
		zap.Int("processed", report.Processed),
		zap.Int("matched", report.Matched),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// matchWithRetry runs MatchOne up to maxAttempts times, retrying only
// transient terminology failures. The retry policy is an explicit loop so it
// stays visible and testable.
func (p *Pipeline) matchWithRetry(ctx context.Context, rec domain.NdcRecord, maxAttempts int) (domain.MatchResult, error) {
	var result domain.MatchResult
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = p.MatchOne(ctx, rec)
		if err == nil {
			return result, nil
		}
		if !domain.IsTransient(err) {
			return domain.MatchResult{}, err
		}
	}
	return domain.MatchResult{}, err
}

// MatchOne runs the per-record steps strictly in order: normalize, query by
// code, fall back to query by name on an empty candidate set, score. It does
// not persist; callers own that step.
//
// An unparseable NDC short-circuits to an unmatched result without ever
// contacting the terminology service. A permanent query failure scores with
// zero candidates: "no match" is a valid durable outcome.
func (p *Pipeline) MatchOne(ctx context.Context, rec domain.NdcRecord) (domain.MatchResult, error) {
	normalized := Normalize(rec.NdcRaw)
	if !normalized.Valid {
		return p.scorer.Score(rec, normalized, nil), nil
	}

	candidates, err := p.client.LookupByNdc(ctx, normalized)
	if err != nil {
		if domain.IsTransient(err) {
			return domain.MatchResult{}, err
		}
		p.log.Warn("code lookup failed permanently",
			zap.String("ndc", rec.NdcRaw),
			zap.Error(err))
		return p.scorer.Score(rec, normalized, nil), nil
	}

	if len(candidates) == 0 && rec.ProductName != "" {
		candidates, err = p.lookupByNameCached(ctx, rec.ProductName)
		if err != nil {
			if domain.IsTransient(err) {
				return domain.MatchResult{}, err
			}
			p.log.Warn("name lookup failed permanently",
				zap.String("ndc", rec.NdcRaw),
				zap.String("name", rec.ProductName),
				zap.Error(err))
			candidates = nil
		}
	}

	return p.scorer.Score(rec, normalized, candidates), nil
}

// lookupByNameCached consults the candidate cache before the remote
// service. Directory rows repeat the same product name across package
// codes, so hits are frequent.
func (p *Pipeline) lookupByNameCached(ctx context.Context, name string) ([]domain.RxNormCandidate, error) {
	if p.nameCache == nil {
		return p.client.LookupByName(ctx, name)
	}
	key := normalizeName(name)
	if candidates, ok := p.nameCache.Get(key); ok {
		return candidates, nil
	}
	candidates, err := p.client.LookupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	p.nameCache.Set(key, candidates, p.cacheTTL)
	return candidates, nil
}
