// Package timerange models the half-open [since, until) intervals a dump is
// scoped to and derives the sub-ranges incremental dumps iterate over.
package timerange

import (
	"fmt"
	"time"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// TimeRange is a half-open interval [Since, Until) at nanosecond resolution.
// A zero Since means "unbounded past"; a zero Until means "unbounded future"
// (effectively "now" at query time).
type TimeRange struct {
	Since time.Time
	Until time.Time
}

// Mode selects how a range is partitioned.
type Mode int

const (
	// ModeSingle emits the whole range as one sub-range. Result volume is
	// bounded at the transport level instead (server-side chunking).
	ModeSingle Mode = iota
	// ModeDaily emits UTC-day aligned sub-ranges, for incremental dumps.
	// Requires a fully bounded range.
	ModeDaily
)

// New builds a TimeRange and validates its ordering. Either bound may be the
// zero time, meaning unbounded on that side.
func New(since, until time.Time) (TimeRange, error) {
	if !since.IsZero() && !until.IsZero() && since.After(until) {
		return TimeRange{}, errors.Wrapf(errors.ErrInvalidRange,
			"since %s is after until %s", since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	return TimeRange{Since: since, Until: until}, nil
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC of that date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrInvalidDate, "%q is not a YYYY-MM-DD date", s)
	}
	return t.UTC(), nil
}

// ParseBound parses a range bound: a YYYY-MM-DD date (midnight UTC) or a full
// RFC3339 timestamp. An empty string is the unbounded zero time.
func ParseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.Wrapf(errors.ErrInvalidDate,
		"%q is neither YYYY-MM-DD nor RFC3339", s)
}

// Parse builds a validated TimeRange from two bound strings, either of which
// may be empty.
func Parse(since, until string) (TimeRange, error) {
	s, err := ParseBound(since)
	if err != nil {
		return TimeRange{}, err
	}
	u, err := ParseBound(until)
	if err != nil {
		return TimeRange{}, err
	}
	return New(s, u)
}

// IsUnbounded reports whether the range has no bounds at all.
func (r TimeRange) IsUnbounded() bool {
	return r.Since.IsZero() && r.Until.IsZero()
}

// Contains reports whether t falls inside the half-open interval.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Since.IsZero() && t.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && !t.Before(r.Until) {
		return false
	}
	return true
}

// Condition renders the range as a query time predicate, without the WHERE
// keyword. Returns "" for an unbounded range.
func (r TimeRange) Condition() string {
	const layout = "2006-01-02 15:04:05.999999999"
	switch {
	case r.Since.IsZero() && r.Until.IsZero():
		return ""
	case r.Until.IsZero():
		return fmt.Sprintf("time >= '%s'", r.Since.UTC().Format(layout))
	case r.Since.IsZero():
		return fmt.Sprintf("time < '%s'", r.Until.UTC().Format(layout))
	default:
		return fmt.Sprintf("time >= '%s' AND time < '%s'",
			r.Since.UTC().Format(layout), r.Until.UTC().Format(layout))
	}
}

// String implements fmt.Stringer.
func (r TimeRange) String() string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "*"
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("[%s, %s)", format(r.Since), format(r.Until))
}

// Partition splits the range into sub-ranges per the mode. The sub-ranges are
// pairwise non-overlapping and their union equals the input exactly.
func Partition(r TimeRange, mode Mode) ([]TimeRange, error) {
	switch mode {
	case ModeSingle:
		return []TimeRange{r}, nil
	case ModeDaily:
		return partitionDaily(r)
	default:
		return nil, errors.NewValidation("partition mode", fmt.Sprintf("unknown mode %d", mode))
	}
}

// partitionDaily splits a bounded range at UTC midnight boundaries. The first
// and last sub-ranges may be partial days.
func partitionDaily(r TimeRange) ([]TimeRange, error) {
	if r.Since.IsZero() || r.Until.IsZero() {
		return nil, errors.Wrap(errors.ErrInvalidRange, "daily partitioning requires both bounds")
	}
	if !r.Since.Before(r.Until) {
		if r.Since.Equal(r.Until) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrInvalidRange, "since is after until")
	}

	var out []TimeRange
	cur := r.Since.UTC()
	for cur.Before(r.Until) {
		next := nextMidnight(cur)
		if next.After(r.Until) {
			next = r.Until.UTC()
		}
		out = append(out, TimeRange{Since: cur, Until: next})
		cur = next
	}
	return out, nil
}

// nextMidnight returns the first UTC midnight strictly after t.
func nextMidnight(t time.Time) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, 1)
}
