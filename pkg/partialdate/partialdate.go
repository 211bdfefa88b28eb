// Package partialdate handles the partial dates MusicBrainz reports for
// artist lifespans and membership stints: "YYYY", "YYYY-MM" or
// "YYYY-MM-DD". Raw strings are kept verbatim; Normalize derives a
// start-of-period fill for storage alongside the raw value.
package partialdate

import (
	"fmt"
	"strings"
	"time"
)

// Precision of a raw partial date.
const (
	PrecisionYear  = 0
	PrecisionMonth = 1
	PrecisionDay   = 2
)

// Valid reports whether raw is a well-formed partial date. The empty
// string is valid and means "unknown".
func Valid(raw string) bool {
	if raw == "" {
		return true
	}
	_, err := Normalize(raw)
	return err == nil
}

// Precision returns the precision of raw, or -1 for the empty string.
func Precision(raw string) int {
	switch strings.Count(raw, "-") {
	case 0:
		if raw == "" {
			return -1
		}
		return PrecisionYear
	case 1:
		return PrecisionMonth
	default:
		return PrecisionDay
	}
}

// Normalize fills a partial date down to a full YYYY-MM-DD string:
// missing month becomes 01, missing day becomes 01. The empty string
// normalizes to "".
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	var layout string
	switch Precision(raw) {
	case PrecisionYear:
		layout = "2006"
	case PrecisionMonth:
		layout = "2006-01"
	default:
		layout = "2006-01-02"
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return "", fmt.Errorf("invalid partial date %q: %w", raw, err)
	}
	return t.Format("2006-01-02"), nil
}

// Compatible reports whether two raw dates can describe the same moment
// at different precisions: one must be a prefix of the other. An empty
// value on either side is compatible with anything.
func Compatible(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Refines reports whether candidate carries strictly more precision than
// existing for the same moment: the strings must be compatible and the
// candidate strictly longer.
func Refines(candidate, existing string) bool {
	if candidate == "" {
		return false
	}
	if existing == "" {
		return true
	}
	return Compatible(candidate, existing) && len(candidate) > len(existing)
}
