package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rxlens/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS match_results (
  ndc_raw             TEXT PRIMARY KEY,
  normalized_ndc      TEXT NOT NULL DEFAULT '',
  rxcui               TEXT,
  rxnorm_name         TEXT,
  confidence          REAL NOT NULL,
  method              TEXT NOT NULL,
  matched_at          INTEGER NOT NULL,
  source_product_name TEXT
);

CREATE INDEX IF NOT EXISTS idx_match_results_product_name
ON match_results(source_product_name);

CREATE INDEX IF NOT EXISTS idx_match_results_matched_at
ON match_results(matched_at);

CREATE INDEX IF NOT EXISTS idx_match_results_rxcui
ON match_results(rxcui);
`

// SqliteStore persists match results in an embedded SQLite database.
// WAL mode keeps reads snapshot-consistent while writers make progress;
// batch upserts run in one transaction so exports never observe a
// half-applied batch.
type SqliteStore struct {
	db *sql.DB
}

// Open initializes the store at the given file path, creating parent
// directories and the schema as needed.
func Open(path string) (*SqliteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	// busy_timeout lets concurrent writers to the same key queue instead
	// of failing immediately.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply store schema: %w", err)
	}

	return &SqliteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

const upsertQuery = `
INSERT INTO match_results (
  ndc_raw, normalized_ndc, rxcui, rxnorm_name,
  confidence, method, matched_at, source_product_name
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(ndc_raw) DO UPDATE SET
  normalized_ndc      = excluded.normalized_ndc,
  rxcui               = excluded.rxcui,
  rxnorm_name         = excluded.rxnorm_name,
  confidence          = excluded.confidence,
  method              = excluded.method,
  matched_at          = excluded.matched_at,
  source_product_name = excluded.source_product_name
`

// Upsert writes one result, replacing any prior row for the same ndc_raw.
// Idempotent: re-applying an identical result is a no-op observable effect.
func (s *SqliteStore) Upsert(ctx context.Context, result domain.MatchResult) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, upsertArgs(result)...); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	return nil
}

// UpsertBatch applies all results in one transaction. Readers see either
// none or all of the batch.
func (s *SqliteStore) UpsertBatch(ctx context.Context, results []domain.MatchResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, upsertArgs(r)...); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	return nil
}

func upsertArgs(r domain.MatchResult) []any {
	return []any{
		r.NdcRaw,
		r.NormalizedNdc,
		toNullString(r.Rxcui),
		toNullString(r.RxNormName),
		r.Confidence,
		string(r.Method),
		r.MatchedAt.UnixMilli(),
		toNullString(r.SourceProductName),
	}
}

const selectColumns = `
ndc_raw, normalized_ndc, rxcui, rxnorm_name,
confidence, method, matched_at, source_product_name
`

// Get returns the live result for an NDC, or domain.ErrMatchNotFound.
func (s *SqliteStore) Get(ctx context.Context, ndcRaw string) (*domain.MatchResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM match_results WHERE ndc_raw = ?`, ndcRaw)

	result, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read match: %w", err)
	}
	return result, nil
}

// FindByName returns results whose source product name contains the query
// and whose confidence is at least minConfidence, case-insensitive, newest
// first.
func (s *SqliteStore) FindByName(ctx context.Context, query string, minConfidence float64, limit int) ([]domain.MatchResult, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM match_results
		 WHERE source_product_name LIKE ? ESCAPE '\'
		   AND confidence >= ?
		 ORDER BY matched_at DESC, ndc_raw
		 LIMIT ?`, pattern, minConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search matches: %w", err)
	}
	defer rows.Close()

	return collectResults(rows)
}

// FindByRxcui returns every result mapped to one RxNorm concept. Several
// package codes resolving to the same concept is the normal case.
func (s *SqliteStore) FindByRxcui(ctx context.Context, rxcui string) ([]domain.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM match_results
		 WHERE rxcui = ?
		 ORDER BY ndc_raw`, rxcui)
	if err != nil {
		return nil, fmt.Errorf("failed to search matches by rxcui: %w", err)
	}
	defer rows.Close()

	return collectResults(rows)
}

// CleanupOlderThan deletes results whose matched_at predates now-age.
// Retention only; safe to run concurrently with reads and writes.
func (s *SqliteStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM match_results WHERE matched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up matches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Export writes a full snapshot of all rows in the requested format ("json"
// or "csv"). The read runs inside one transaction, so a concurrent
// UpsertBatch is either fully visible or not at all.
func (s *SqliteStore) Export(ctx context.Context, format string, w io.Writer) (int, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "json" && format != "csv" {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("failed to start export: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM match_results ORDER BY ndc_raw`)
	if err != nil {
		return 0, fmt.Errorf("failed to read export rows: %w", err)
	}
	defer rows.Close()

	results, err := collectResults(rows)
	if err != nil {
		return 0, err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return 0, fmt.Errorf("failed to write json export: %w", err)
		}
	case "csv":
		if err := writeCsv(w, results); err != nil {
			return 0, fmt.Errorf("failed to write csv export: %w", err)
		}
	}

	return len(results), nil
}

// Stats reports aggregate counts over the whole store.
func (s *SqliteStore) Stats(ctx context.Context) (*domain.StoreStats, error) {
	var stats domain.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
		  COUNT(*),
		  COALESCE(SUM(CASE WHEN rxcui IS NOT NULL AND method != 'unmatched' THEN 1 ELSE 0 END), 0),
		  COALESCE(AVG(confidence), 0)
		FROM match_results`).
		Scan(&stats.TotalResults, &stats.MatchedResults, &stats.AverageConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}
	stats.UnmatchedResults = stats.TotalResults - stats.MatchedResults
	return &stats, nil
}

func writeCsv(w io.Writer, results []domain.MatchResult) error {
	cw := csv.NewWriter(w)
	header := []string{
		"ndc_raw", "normalized_ndc", "rxcui", "rxnorm_name",
		"confidence", "method", "matched_at", "source_product_name",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		record := []string{
			r.NdcRaw,
			r.NormalizedNdc,
			r.Rxcui,
			r.RxNormName,
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			string(r.Method),
			r.MatchedAt.UTC().Format(time.RFC3339),
			r.SourceProductName,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*domain.MatchResult, error) {
	var (
		r          domain.MatchResult
		rxcui      sql.NullString
		rxnormName sql.NullString
		product    sql.NullString
		matchedAt  int64
	)
	err := row.Scan(
		&r.NdcRaw, &r.NormalizedNdc, &rxcui, &rxnormName,
		&r.Confidence, (*string)(&r.Method), &matchedAt, &product,
	)
	if err != nil {
		return nil, err
	}
	r.Rxcui = rxcui.String
	r.RxNormName = rxnormName.String
	r.SourceProductName = product.String
	r.MatchedAt = time.UnixMilli(matchedAt).UTC()
	return &r, nil
}

func collectResults(rows *sql.Rows) ([]domain.MatchResult, error) {
	results := make([]domain.MatchResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate match rows: %w", err)
	}
	return results, nil
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
