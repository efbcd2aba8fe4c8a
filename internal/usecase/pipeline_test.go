package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rxlens/backend/internal/domain"
)

// fakeClient scripts terminology responses per normalized NDC and per name,
// counting calls so tests can assert the retry bound.
type fakeClient struct {
	mu        sync.Mutex
	ndcCalls  map[string]int
	nameCalls map[string]int
	ndcErr    error
	nameErr   error
	byNdc     map[string][]domain.RxNormCandidate
	byName    map[string][]domain.RxNormCandidate
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		ndcCalls:  make(map[string]int),
		nameCalls: make(map[string]int),
		byNdc:     make(map[string][]domain.RxNormCandidate),
		byName:    make(map[string][]domain.RxNormCandidate),
	}
}

func (f *fakeClient) LookupByNdc(_ context.Context, ndc domain.NormalizedNdc) ([]domain.RxNormCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ndcCalls[ndc.String()]++
	if f.ndcErr != nil {
		return nil, f.ndcErr
	}
	return f.byNdc[ndc.String()], nil
}

func (f *fakeClient) LookupByName(_ context.Context, name string) ([]domain.RxNormCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls[name]++
	if f.nameErr != nil {
		return nil, f.nameErr
	}
	return f.byName[name], nil
}

func (f *fakeClient) totalNdcCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.ndcCalls {
		total += n
	}
	return total
}

// fakeStore is an in-memory MatchStore recording every write.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]domain.MatchResult
	batchErr  error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]domain.MatchResult)}
}

func (f *fakeStore) Upsert(_ context.Context, result domain.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[result.NdcRaw] = result
	return nil
}

func (f *fakeStore) UpsertBatch(_ context.Context, results []domain.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	for _, r := range results {
		f.rows[r.NdcRaw] = r
	}
	return nil
}

func (f *fakeStore) Get(_ context.Context, ndcRaw string) (*domain.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[ndcRaw]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return &r, nil
}

func (f *fakeStore) FindByName(_ context.Context, query string, minConfidence float64, limit int) ([]domain.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MatchResult
	for _, r := range f.rows {
		if r.Confidence >= minConfidence {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FindByRxcui(_ context.Context, rxcui string) ([]domain.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MatchResult
	for _, r := range f.rows {
		if r.Rxcui == rxcui {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CleanupOlderThan(_ context.Context, age time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeStore) Export(_ context.Context, format string, w io.Writer) (int, error) {
	return 0, nil
}

func (f *fakeStore) Stats(_ context.Context) (*domain.StoreStats, error) {
	return &domain.StoreStats{}, nil
}

func (f *fakeStore) row(ndcRaw string) (domain.MatchResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[ndcRaw]
	return r, ok
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func newTestPipeline(client domain.TerminologyClient, store domain.MatchStore) *Pipeline {
	return NewPipeline(client, store, NewScorer(ScorerConfig{}), nil, nil)
}

func TestRunBatchMatchesAndPersists(t *testing.T) {
	client := newFakeClient()
	client.byNdc["00069-3150-83"] = []domain.RxNormCandidate{
		{Rxcui: "308191", Name: "Amoxicillin 500 MG Oral Capsule", TermType: "SCD", Ndc: "00069315083"},
	}
	store := newFakeStore()
	p := newTestPipeline(client, store)

	records := []domain.NdcRecord{
		{NdcRaw: "0069-3150-83", ProductName: "Amoxicillin 500mg Capsule"},
		{NdcRaw: "not-an-ndc", ProductName: "Mystery Elixir"},
	}

	report, err := p.RunBatch(context.Background(), records, PipelineConfig{Concurrency: 2})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if report.Processed != 2 {
		t.Errorf("Processed = %d, want 2", report.Processed)
	}
	if report.Matched != 1 {
		t.Errorf("Matched = %d, want 1", report.Matched)
	}
	if report.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", report.Unmatched)
	}
	if report.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", report.Skipped)
	}

	matched, ok := store.row("0069-3150-83")
	if !ok {
		t.Fatal("matched record not persisted")
	}
	if matched.Rxcui != "308191" || matched.Method != domain.MethodExactCode {
		t.Errorf("persisted row = %+v, want exact-code 308191", matched)
	}

	unmatched, ok := store.row("not-an-ndc")
	if !ok {
		t.Fatal("unmatched record not persisted")
	}
	if unmatched.Rxcui != "" || unmatched.Method != domain.MethodUnmatched {
		t.Errorf("persisted row = %+v, want unmatched", unmatched)
	}
}

func TestRunBatchUnparseableNeverQueriesService(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore()
	p := newTestPipeline(client, store)

	records := []domain.NdcRecord{{NdcRaw: "garbage", ProductName: "Whatever"}}
	report, err := p.RunBatch(context.Background(), records, PipelineConfig{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if got := client.totalNdcCalls(); got != 0 {
		t.Errorf("terminology calls = %d, want 0 for unparseable input", got)
	}
	if report.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", report.Unmatched)
	}
	if _, ok := store.row("garbage"); !ok {
		t.Error("unmatched result for unparseable input should still be written")
	}
}

func TestRunBatchTransientFailureRetriesThenSkips(t *testing.T) {
	client := newFakeClient()
	client.ndcErr = &domain.TransientError{Op: "lookup by ndc", Err: errors.New("503")}
	store := newFakeStore()
	p := newTestPipeline(client, store)

	records := []domain.NdcRecord{{NdcRaw: "0069-3150-83", ProductName: "Amoxicillin"}}
	report, err := p.RunBatch(context.Background(), records, PipelineConfig{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if got := client.totalNdcCalls(); got != 3 {
		t.Errorf("terminology calls = %d, want exactly 3 (the attempt ceiling)", got)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	if len(report.SkippedNdcs) != 1 || report.SkippedNdcs[0] != "0069-3150-83" {
		t.Errorf("SkippedNdcs = %v, want [0069-3150-83]", report.SkippedNdcs)
	}
	if store.count() != 0 {
		t.Errorf("store has %d rows, want 0: skipped records must never be written", store.count())
	}
	if report.Matched != 0 || report.Unmatched != 0 {
		t.Errorf("Matched/Unmatched = %d/%d, want 0/0", report.Matched, report.Unmatched)
	}
}

func TestRunBatchPermanentFailureIsUnmatchedWithoutRetry(t *testing.T) {
	client := newFakeClient()
	client.ndcErr = &domain.PermanentError{Op: "lookup by ndc", Status: 404, Err: errors.New("not found")}
	store := newFakeStore()
	p := newTestPipeline(client, store)

	records := []domain.NdcRecord{{NdcRaw: "0069-3150-83", ProductName: ""}}
	report, err := p.RunBatch(context.Background(), records, PipelineConfig{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if got := client.totalNdcCalls(); got != 1 {
		t.Errorf("terminology calls = %d, want 1: permanent failures are not retried", got)
	}
	if report.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", report.Unmatched)
	}
	row, ok := store.row("0069-3150-83")
	if !ok {
		t.Fatal("permanent failure should persist an unmatched result")
	}
	if row.Method != domain.MethodUnmatched {
		t.Errorf("Method = %v, want unmatched", row.Method)
	}
}

func TestRunBatchFailedFlushCountsAsSkipped(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore()
	store.batchErr = errors.New("disk full")
	p := newTestPipeline(client, store)

	records := []domain.NdcRecord{{NdcRaw: "0069-3150-83", ProductName: "Amoxicillin"}}
	report, err := p.RunBatch(context.Background(), records, PipelineConfig{})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 when the flush fails", report.Skipped)
	}
	if report.Matched != 0 || report.Unmatched != 0 {
		t.Errorf("Matched/Unmatched = %d/%d, want 0 totals on flush failure", report.Matched, report.Unmatched)
	}
}

func TestMatchOneFallsBackToNameLookup(t *testing.T) {
	client := newFakeClient()
	client.byName["Amoxicillin 500mg Capsule"] = []domain.RxNormCandidate{
		{Rxcui: "308191", Name: "Amoxicillin 500 MG Oral Capsule", TermType: "SCD"},
	}
	store := newFakeStore()
	p := newTestPipeline(client, store)

	rec := domain.NdcRecord{NdcRaw: "0069-3150-83", ProductName: "Amoxicillin 500mg Capsule"}
	result, err := p.MatchOne(context.Background(), rec)
	if err != nil {
		t.Fatalf("MatchOne: %v", err)
	}

	client.mu.Lock()
	nameCalls := client.nameCalls["Amoxicillin 500mg Capsule"]
	client.mu.Unlock()
	if nameCalls != 1 {
		t.Errorf("name lookups = %d, want 1 fallback call", nameCalls)
	}
	if result.Rxcui != "308191" {
		t.Errorf("Rxcui = %q, want 308191 via name fallback", result.Rxcui)
	}
	if result.Method != domain.MethodFuzzyName {
		t.Errorf("Method = %v, want fuzzy-name", result.Method)
	}
}

func TestMatchOneSkipsNameFallbackWithoutProductName(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore()
	p := newTestPipeline(client, store)

	rec := domain.NdcRecord{NdcRaw: "0069-3150-83"}
	result, err := p.MatchOne(context.Background(), rec)
	if err != nil {
		t.Fatalf("MatchOne: %v", err)
	}

	client.mu.Lock()
	nameCalls := len(client.nameCalls)
	client.mu.Unlock()
	if nameCalls != 0 {
		t.Errorf("name lookups happened without a product name")
	}
	if result.Method != domain.MethodUnmatched {
		t.Errorf("Method = %v, want unmatched", result.Method)
	}
}

func TestMatchOneCachesNameLookups(t *testing.T) {
	client := newFakeClient()
	client.byName["Amoxicillin"] = []domain.RxNormCandidate{
		{Rxcui: "723", Name: "Amoxicillin", TermType: "IN"},
	}
	store := newFakeStore()
	p := NewPipeline(client, store, NewScorer(ScorerConfig{}), newStubCache(), nil)

	rec := domain.NdcRecord{NdcRaw: "0069-3150-83", ProductName: "Amoxicillin"}
	for i := 0; i < 3; i++ {
		if _, err := p.MatchOne(context.Background(), rec); err != nil {
			t.Fatalf("MatchOne #%d: %v", i+1, err)
		}
	}

	client.mu.Lock()
	nameCalls := client.nameCalls["Amoxicillin"]
	client.mu.Unlock()
	if nameCalls != 1 {
		t.Errorf("name lookups = %d, want 1 with a warm cache", nameCalls)
	}
}

func TestRunBatchHonorsCancellation(t *testing.T) {
	client := newFakeClient()
	store := newFakeStore()
	p := newTestPipeline(client, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := make([]domain.NdcRecord, 50)
	for i := range records {
		records[i] = domain.NdcRecord{NdcRaw: "0069-3150-83"}
	}

	report, err := p.RunBatch(ctx, records, PipelineConfig{Concurrency: 1})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if report.Processed == len(records) {
		t.Error("all records processed despite pre-cancelled context")
	}
}

// stubCache is a minimal CandidateCache for pipeline tests.
type stubCache struct {
	mu    sync.Mutex
	items map[string][]domain.RxNormCandidate
}

func newStubCache() *stubCache {
	return &stubCache{items: make(map[string][]domain.RxNormCandidate)}
}

func (c *stubCache) Get(key string) ([]domain.RxNormCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *stubCache) Set(key string, candidates []domain.RxNormCandidate, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = candidates
}
