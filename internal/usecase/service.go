package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rxlens/backend/internal/domain"
)

const defaultSearchLimit = 100

// MatcherService is the surface the delivery layer and CLI call. It wraps
// the pipeline for live matching and the store for read paths.
type MatcherService struct {
	pipeline *Pipeline
	store    domain.MatchStore
	log      *zap.Logger
}

// NewMatcherService creates a matcher service with its dependencies.
func NewMatcherService(pipeline *Pipeline, store domain.MatchStore, log *zap.Logger) *MatcherService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatcherService{
		pipeline: pipeline,
		store:    store,
		log:      log,
	}
}

// RunBatch processes a collection of records through the pipeline.
func (s *MatcherService) RunBatch(ctx context.Context, records []domain.NdcRecord, cfg PipelineConfig) (*domain.BatchReport, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records to match", domain.ErrInvalidRequest)
	}
	return s.pipeline.RunBatch(ctx, records, cfg)
}

// LookupSingle returns the stored match for an NDC, matching it live and
// persisting the outcome when no row exists yet. Point query; bypasses
// batching.
func (s *MatcherService) LookupSingle(ctx context.Context, ndcRaw string) (*domain.MatchResult, error) {
	ndcRaw = strings.TrimSpace(ndcRaw)
	if ndcRaw == "" {
		return nil, fmt.Errorf("%w: empty ndc", domain.ErrInvalidRequest)
	}

	stored, err := s.store.Get(ctx, ndcRaw)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrMatchNotFound) {
		return nil, err
	}

	result, err := s.pipeline.MatchOne(ctx, domain.NdcRecord{NdcRaw: ndcRaw})
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, result); err != nil {
		// The caller still gets the live result; only persistence failed.
		s.log.Error("failed to persist single lookup",
			zap.String("ndc", ndcRaw),
			zap.Error(err))
	}
	return &result, nil
}

// SearchByName returns stored matches whose source product name contains the
// query, keeping only results at or above minConfidence (0 keeps everything).
func (s *MatcherService) SearchByName(ctx context.Context, query string, minConfidence float64, limit int) ([]domain.MatchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", domain.ErrInvalidRequest)
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("%w: min confidence must be in [0,1], got %v", domain.ErrInvalidRequest, minConfidence)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return s.store.FindByName(ctx, query, minConfidence, limit)
}

// FindByRxcui returns every stored match resolved to one RxNorm concept.
func (s *MatcherService) FindByRxcui(ctx context.Context, rxcui string) ([]domain.MatchResult, error) {
	rxcui = strings.TrimSpace(rxcui)
	if rxcui == "" {
		return nil, fmt.Errorf("%w: empty rxcui", domain.ErrInvalidRequest)
	}
	return s.store.FindByRxcui(ctx, rxcui)
}

// ExportSnapshot writes a consistent snapshot of all match results in the
// requested format.
func (s *MatcherService) ExportSnapshot(ctx context.Context, format string, w io.Writer) (int, error) {
	return s.store.Export(ctx, format, w)
}

// Stats reports store-wide aggregates.
func (s *MatcherService) Stats(ctx context.Context) (*domain.StoreStats, error) {
	return s.store.Stats(ctx)
}

// CleanupOlderThan removes results older than age, for retention.
func (s *MatcherService) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	return s.store.CleanupOlderThan(ctx, age)
}
