package cycle

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStartAndEnd(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		ref       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"daily", Daily, time.Date(2026, 2, 5, 17, 30, 0, 0, time.UTC), date(2026, 2, 5), date(2026, 2, 6)},
		{"weekly midweek", Weekly, time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC), date(2026, 2, 1), date(2026, 2, 8)},
		{"weekly on sunday", Weekly, date(2026, 2, 8), date(2026, 2, 8), date(2026, 2, 15)},
		{"weekly saturday night", Weekly, time.Date(2026, 2, 7, 23, 59, 59, 0, time.UTC), date(2026, 2, 1), date(2026, 2, 8)},
		{"biweekly first half", Biweekly, date(2026, 3, 14), date(2026, 3, 1), date(2026, 3, 15)},
		{"biweekly second half", Biweekly, date(2026, 3, 15), date(2026, 3, 15), date(2026, 4, 1)},
		{"biweekly end of long month", Biweekly, date(2026, 1, 31), date(2026, 1, 15), date(2026, 2, 1)},
		{"biweekly february", Biweekly, date(2028, 2, 29), date(2028, 2, 15), date(2028, 3, 1)},
		{"monthly", Monthly, date(2026, 1, 31), date(2026, 1, 1), date(2026, 2, 1)},
		{"monthly december", Monthly, date(2026, 12, 20), date(2026, 12, 1), date(2027, 1, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := Start(tt.policy, tt.ref)
			if !start.Equal(tt.wantStart) {
				t.Errorf("Start = %v, want %v", start, tt.wantStart)
			}
			end := End(tt.policy, start)
			if !end.Equal(tt.wantEnd) {
				t.Errorf("End = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func TestReferenceAlwaysInsideWindow(t *testing.T) {
	ref := time.Date(2025, 12, 20, 13, 0, 0, 0, time.UTC)
	for i := 0; i < 800; i++ {
		d := ref.Add(time.Duration(i) * 11 * time.Hour)
		for _, p := range Policies {
			start, end := Window(p, d)
			if d.Before(start) {
				t.Fatalf("%s: %v before start %v", p, d, start)
			}
			if !end.After(d) {
				t.Fatalf("%s: end %v not after %v", p, end, d)
			}
		}
	}
}

func TestWindowsAreContiguous(t *testing.T) {
	for _, p := range Policies {
		start := Start(p, date(2026, 1, 1))
		for i := 0; i < 40; i++ {
			end := End(p, start)
			next := Start(p, end)
			if !next.Equal(end) {
				t.Fatalf("%s: next start %v, want %v", p, next, end)
			}
			start = next
		}
	}
}

func TestPreviousAndCutoff(t *testing.T) {
	ref := date(2026, 2, 11) // Wednesday
	start, end := Previous(Weekly, ref)
	if !start.Equal(date(2026, 2, 1)) || !end.Equal(date(2026, 2, 8)) {
		t.Errorf("Previous = [%v, %v), want [2026-02-01, 2026-02-08)", start, end)
	}

	cutoff := ExpiryCutoff(Weekly, ref)
	if !cutoff.Equal(date(2026, 2, 7)) {
		t.Errorf("ExpiryCutoff = %v, want 2026-02-07", cutoff)
	}

	if got := InclusiveEnd(end); !got.Equal(time.Date(2026, 2, 7, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("InclusiveEnd = %v", got)
	}
}

func TestDueDate(t *testing.T) {
	assigned := date(2026, 1, 31)
	tests := []struct {
		freq Policy
		want time.Time
	}{
		{Daily, date(2026, 2, 1)},
		{Weekly, date(2026, 2, 7)},
		{Biweekly, date(2026, 2, 14)},
		{Monthly, date(2026, 3, 3)}, // AddDate normalizes Feb 31
	}
	for _, tt := range tests {
		if got := DueDate(tt.freq, assigned); !got.Equal(tt.want) {
			t.Errorf("DueDate(%s) = %v, want %v", tt.freq, got, tt.want)
		}
	}
}

func TestLength(t *testing.T) {
	if got := Length(Weekly, date(2026, 2, 4)); got != 7*24*time.Hour {
		t.Errorf("weekly length = %v", got)
	}
	if got := Length(Monthly, date(2026, 2, 4)); got != 28*24*time.Hour {
		t.Errorf("monthly february length = %v", got)
	}
}

func TestParsePolicy(t *testing.T) {
	if _, err := ParsePolicy("fortnightly"); err == nil {
		t.Error("expected error for unknown policy")
	}
	p, err := ParsePolicy("biweekly")
	if err != nil || p != Biweekly {
		t.Errorf("ParsePolicy = %q, %v", p, err)
	}
}
