package domain

import "time"

// NdcRecord is a raw FDA product entry as published in the NDC directory.
// Immutable once loaded; the matching pipeline only reads from it.
type NdcRecord struct {
	NdcRaw         string     `json:"ndcRaw"`
	ProductName    string     `json:"productName"`
	GenericName    string     `json:"genericName,omitempty"`
	LabelerName    string     `json:"labelerName,omitempty"`
	DosageForm     string     `json:"dosageForm,omitempty"`
	Strength       string     `json:"strength,omitempty"`
	Route          string     `json:"route,omitempty"`
	MarketingStart *time.Time `json:"marketingStart,omitempty"`
	MarketingEnd   *time.Time `json:"marketingEnd,omitempty"`
}

// NormalizedNdc is the canonical 5-4-2 form of an NDC. Valid is false when
// the raw code could not be parsed into three non-empty digit segments;
// that is a normal outcome for the directory's messier rows, not an error.
type NormalizedNdc struct {
	LabelerCode string `json:"labelerCode"`
	ProductCode string `json:"productCode"`
	PackageCode string `json:"packageCode"`
	Raw         string `json:"raw"`
	Valid       bool   `json:"valid"`
}

// String renders the canonical hyphenated 5-4-2 form, or "" when invalid.
func (n NormalizedNdc) String() string {
	if !n.Valid {
		return ""
	}
	return n.LabelerCode + "-" + n.ProductCode + "-" + n.PackageCode
}

// Digits renders the 11-digit concatenated form used by RxNav NDC queries.
func (n NormalizedNdc) Digits() string {
	if !n.Valid {
		return ""
	}
	return n.LabelerCode + n.ProductCode + n.PackageCode
}
