package usecase

import (
	"regexp"
	"strings"

	"github.com/rxlens/backend/internal/domain"
)

// Package-level compiled regex patterns for performance
var (
	nonDigitRegex  = regexp.MustCompile(`[^0-9]`)
	ndcSplitRegex  = regexp.MustCompile(`[-\s*]+`)
	allDigitsRegex = regexp.MustCompile(`^[0-9]+$`)
)

// Canonical 5-4-2 segment widths: labeler, product, package.
var segmentWidths = [3]int{5, 4, 2}

// tenDigitLayouts lists the published 10-digit groupings in priority order.
// Each is re-padded to 5-4-2 by zero-filling the short segment; the first
// layout that yields three valid segments wins.
var tenDigitLayouts = [][3]int{
	{4, 4, 2},
	{5, 3, 2},
	{5, 4, 1},
}

// Normalize canonicalizes a raw NDC string into the 5-4-2 form.
//
// Accepted inputs: hyphenated 4-4-2, 5-3-2, 5-4-1 and 5-4-2 groupings, and
// bare 10- or 11-digit concatenated forms. Anything else yields the explicit
// unparseable variant (Valid=false) rather than an error; malformed codes are
// common in the directory and must never halt a batch.
//
// Pure and deterministic: identical raw inputs always normalize identically,
// no I/O, no shared state.
func Normalize(raw string) domain.NormalizedNdc {
	unparseable := domain.NormalizedNdc{Raw: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return unparseable
	}

	// Separator-delimited input carries its own segment boundaries; honor
	// them instead of guessing from the digit count. A delimited code that
	// is not three valid segments stays unparseable rather than being
	// reinterpreted as a concatenated form.
	if parts := ndcSplitRegex.Split(trimmed, -1); len(parts) > 1 {
		segs, ok := ndcSegments(parts)
		if !ok {
			return unparseable
		}
		if n, ok := padToCanonical(segs, raw); ok {
			return n
		}
		return unparseable
	}

	digits := nonDigitRegex.ReplaceAllString(trimmed, "")
	switch len(digits) {
	case 11:
		segs := [3]string{digits[:5], digits[5:9], digits[9:]}
		if n, ok := padToCanonical(segs, raw); ok {
			return n
		}
	case 10:
		for _, layout := range tenDigitLayouts {
			segs, ok := cutLayout(digits, layout)
			if !ok {
				continue
			}
			if n, ok := padToCanonical(segs, raw); ok {
				return n
			}
		}
	}

	return unparseable
}

// ndcSegments validates separator-split parts as exactly three digit
// segments totalling 10 or 11 digits, the published forms.
func ndcSegments(parts []string) ([3]string, bool) {
	if len(parts) != 3 {
		return [3]string{}, false
	}
	var segs [3]string
	total := 0
	for i, p := range parts {
		if p == "" || !allDigitsRegex.MatchString(p) {
			return [3]string{}, false
		}
		segs[i] = p
		total += len(p)
	}
	if total != 10 && total != 11 {
		return [3]string{}, false
	}
	return segs, true
}

// cutLayout slices a digit string into three segments of the given widths.
func cutLayout(digits string, widths [3]int) ([3]string, bool) {
	if len(digits) != widths[0]+widths[1]+widths[2] {
		return [3]string{}, false
	}
	return [3]string{
		digits[:widths[0]],
		digits[widths[0] : widths[0]+widths[1]],
		digits[widths[0]+widths[1]:],
	}, true
}

// padToCanonical zero-pads each segment to the canonical 5-4-2 widths.
// Fails when any segment is empty, non-numeric, or wider than its slot.
func padToCanonical(segs [3]string, raw string) (domain.NormalizedNdc, bool) {
	var padded [3]string
	for i, seg := range segs {
		if seg == "" || len(seg) > segmentWidths[i] || !allDigitsRegex.MatchString(seg) {
			return domain.NormalizedNdc{Raw: raw}, false
		}
		padded[i] = strings.Repeat("0", segmentWidths[i]-len(seg)) + seg
	}
	return domain.NormalizedNdc{
		LabelerCode: padded[0],
		ProductCode: padded[1],
		PackageCode: padded[2],
		Raw:         raw,
		Valid:       true,
	}, true
}
