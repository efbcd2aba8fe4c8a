package fda

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rxlens/backend/internal/domain"
)

// Loader parses the FDA NDC directory product file (tab-separated, one row
// per product/package) into NdcRecords. Downloading the file is out of
// scope; the loader only reads a local copy.
type Loader struct{}

// NewLoader creates a directory file loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile reads and parses a directory file from disk.
func (l *Loader) LoadFile(path string) ([]domain.NdcRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ndc file: %w", err)
	}
	defer f.Close()
	return l.Load(f)
}

// Load parses the tab-separated directory data. Column order varies between
// releases, so fields are resolved by header name. Rows without an NDC are
// skipped rather than failing the load; the published file always carries
// some malformed lines.
func (l *Loader) Load(r io.Reader) ([]domain.NdcRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read ndc file header: %w", err)
	}
	cols := indexColumns(header)
	if _, ok := cols["productndc"]; !ok {
		return nil, fmt.Errorf("ndc file header missing PRODUCTNDC column")
	}

	var records []domain.NdcRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ndc file row: %w", err)
		}

		rec := rowToRecord(row, cols)
		if rec.NdcRaw == "" {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// indexColumns maps lowercased header names to their positions.
func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

func rowToRecord(row []string, cols map[string]int) domain.NdcRecord {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	// Package-level rows carry the full 3-segment code; product-level rows
	// only the 2-segment product NDC.
	ndc := field("ndcpackagecode")
	if ndc == "" {
		ndc = field("productndc")
	}

	name := field("proprietaryname")
	if suffix := field("proprietarynamesuffix"); suffix != "" {
		name = strings.TrimSpace(name + " " + suffix)
	}

	strength := field("active_numerator_strength")
	if unit := field("active_ingred_unit"); unit != "" && strength != "" {
		strength = strength + " " + unit
	}

	return domain.NdcRecord{
		NdcRaw:         ndc,
		ProductName:    name,
		GenericName:    field("nonproprietaryname"),
		LabelerName:    field("labelername"),
		DosageForm:     field("dosageformname"),
		Strength:       strength,
		Route:          field("routename"),
		MarketingStart: parseMarketingDate(field("startmarketingdate")),
		MarketingEnd:   parseMarketingDate(field("endmarketingdate")),
	}
}

// parseMarketingDate parses the directory's YYYYMMDD date format. Invalid
// or absent dates map to nil; they are not load failures.
func parseMarketingDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}
