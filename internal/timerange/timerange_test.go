package timerange

import (
	"testing"
	"time"

	"github.com/xtxerr/fluxdump/internal/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewOrdering(t *testing.T) {
	_, err := New(date(2020, 1, 2), date(2020, 1, 1))
	if !errors.Is(err, errors.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}

	// Unbounded sides never fail ordering.
	if _, err := New(time.Time{}, date(2020, 1, 1)); err != nil {
		t.Errorf("open since: %v", err)
	}
	if _, err := New(date(2020, 1, 1), time.Time{}); err != nil {
		t.Errorf("open until: %v", err)
	}
}

func TestParseBound(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"empty", "", time.Time{}, false},
		{"date", "2020-01-02", date(2020, 1, 2), false},
		{"rfc3339", "2020-01-02T03:04:05Z", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"garbage", "yesterday", time.Time{}, true},
		{"partial date", "2020-01", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBound(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBound(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && !got.Equal(tt.want) {
				t.Errorf("ParseBound(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCondition(t *testing.T) {
	tests := []struct {
		name string
		r    TimeRange
		want string
	}{
		{"unbounded", TimeRange{}, ""},
		{
			"both bounds",
			TimeRange{Since: date(2020, 1, 1), Until: date(2020, 1, 2)},
			"time >= '2020-01-01 00:00:00' AND time < '2020-01-02 00:00:00'",
		},
		{
			"since only",
			TimeRange{Since: date(2020, 1, 1)},
			"time >= '2020-01-01 00:00:00'",
		},
		{
			"until only",
			TimeRange{Until: date(2020, 1, 2)},
			"time < '2020-01-02 00:00:00'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Condition(); got != tt.want {
				t.Errorf("Condition = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPartitionSingle(t *testing.T) {
	r := TimeRange{Since: date(2020, 1, 1), Until: date(2020, 3, 1)}
	parts, err := Partition(r, ModeSingle)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(parts) != 1 || parts[0] != r {
		t.Errorf("parts = %v, want [%v]", parts, r)
	}
}

func TestPartitionDaily(t *testing.T) {
	since := time.Date(2020, 1, 1, 6, 30, 0, 0, time.UTC)
	until := time.Date(2020, 1, 4, 12, 0, 0, 0, time.UTC)

	parts, err := Partition(TimeRange{Since: since, Until: until}, ModeDaily)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	// Partial first day, two full days, partial last day.
	if len(parts) != 4 {
		t.Fatalf("got %d parts, want 4: %v", len(parts), parts)
	}

	// Exact coverage: starts at since, ends at until, contiguous.
	if !parts[0].Since.Equal(since) {
		t.Errorf("first part starts at %v, want %v", parts[0].Since, since)
	}
	if !parts[len(parts)-1].Until.Equal(until) {
		t.Errorf("last part ends at %v, want %v", parts[len(parts)-1].Until, until)
	}
	for i := 1; i < len(parts); i++ {
		if !parts[i].Since.Equal(parts[i-1].Until) {
			t.Errorf("gap or overlap between part %d and %d: %v -> %v",
				i-1, i, parts[i-1].Until, parts[i].Since)
		}
	}
	for i, p := range parts {
		if !p.Since.Before(p.Until) {
			t.Errorf("part %d is empty or inverted: %v", i, p)
		}
	}
}

func TestPartitionDailyAligned(t *testing.T) {
	// Bounds already on midnight: one part per day, no partials.
	parts, err := Partition(TimeRange{Since: date(2020, 1, 1), Until: date(2020, 1, 4)}, ModeDaily)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	for i, p := range parts {
		if !p.Since.Equal(date(2020, 1, 1+i)) || !p.Until.Equal(date(2020, 1, 2+i)) {
			t.Errorf("part %d = %v", i, p)
		}
	}
}

func TestPartitionDailyUnbounded(t *testing.T) {
	_, err := Partition(TimeRange{Since: date(2020, 1, 1)}, ModeDaily)
	if !errors.Is(err, errors.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestContains(t *testing.T) {
	r := TimeRange{Since: date(2020, 1, 1), Until: date(2020, 1, 2)}

	if !r.Contains(date(2020, 1, 1)) {
		t.Error("since bound should be inclusive")
	}
	if r.Contains(date(2020, 1, 2)) {
		t.Error("until bound should be exclusive")
	}
	if !r.Contains(time.Date(2020, 1, 1, 23, 59, 59, 999999999, time.UTC)) {
		t.Error("last nanosecond of the day should be contained")
	}
	if !(TimeRange{}).Contains(date(1970, 1, 1)) {
		t.Error("unbounded range should contain everything")
	}
}
