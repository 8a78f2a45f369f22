package types

import (
	"fmt"
	"regexp"
	"strings"
)

// DateLatest selects only the most recent observation per series.
const DateLatest = "latest"

var datePattern = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?$`)

// DateRange narrows observation retrieval to an inclusive date interval.
// Bounds are ISO-8601 prefixes at year, month, or day granularity; an empty
// bound leaves that side open.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Validate checks bound syntax and ordering.
func (r *DateRange) Validate() error {
	for _, bound := range []string{r.Start, r.End} {
		if bound != "" && !datePattern.MatchString(bound) {
			return NewError(ErrInvalidRequest, fmt.Sprintf("invalid date %q: expected YYYY, YYYY-MM, or YYYY-MM-DD", bound))
		}
	}
	if r.Start != "" && r.End != "" {
		if expandEnd(r.End) < expandStart(r.Start) {
			return NewError(ErrInvalidRequest, fmt.Sprintf("date range start %q is after end %q", r.Start, r.End))
		}
	}
	return nil
}

// IsZero reports whether the range places no constraint at all.
func (r *DateRange) IsZero() bool {
	return r == nil || (r.Start == "" && r.End == "")
}

// Contains reports whether an observation date falls inside the range. The
// observation's own granularity is widened to an interval first, so the
// year 2020 matches a range ending in 2020-06.
func (r *DateRange) Contains(date string) bool {
	if r.IsZero() {
		return true
	}
	if !datePattern.MatchString(date) {
		return false
	}
	lo, hi := expandStart(date), expandEnd(date)
	if r.Start != "" && hi < expandStart(r.Start) {
		return false
	}
	if r.End != "" && lo > expandEnd(r.End) {
		return false
	}
	return true
}

// expandStart pads a date prefix to its earliest covered day.
func expandStart(d string) string {
	switch strings.Count(d, "-") {
	case 0:
		return d + "-01-01"
	case 1:
		return d + "-01"
	default:
		return d
	}
}

// expandEnd pads a date prefix to its latest covered day. Month lengths do
// not matter for lexical comparison against same-scheme dates, so every
// month closes at day 31.
func expandEnd(d string) string {
	switch strings.Count(d, "-") {
	case 0:
		return d + "-12-31"
	case 1:
		return d + "-31"
	default:
		return d
	}
}
