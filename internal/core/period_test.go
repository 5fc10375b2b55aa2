package core

import (
	"errors"
	"testing"
	"time"
)

func TestTruncateToMonth(t *testing.T) {
	got := TruncateToMonth(time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC))
	if got != per(2025, 3) {
		t.Errorf("TruncateToMonth() = %v, want 2025-03", got)
	}
}

func TestPeriodStep(t *testing.T) {
	start := per(2025, 11)
	tests := []struct {
		freq Frequency
		want Period
	}{
		{Once, per(2025, 11)},
		{Monthly, per(2025, 12)},
		{Bimonthly, per(2026, 1)},
		{Quarterly, per(2026, 2)},
		{Semiannually, per(2026, 5)},
		{Annually, per(2026, 11)},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			if got := start.Step(tt.freq); got != tt.want {
				t.Errorf("Step(%s) = %v, want %v", tt.freq, got, tt.want)
			}
		})
	}
}

func TestPeriodsBetween(t *testing.T) {
	tests := []struct {
		a, b Period
		want int
	}{
		{per(2025, 1), per(2025, 1), 0},
		{per(2025, 1), per(2025, 4), 3},
		{per(2025, 4), per(2025, 1), -3},
		{per(2024, 12), per(2025, 1), 1},
		{per(2023, 6), per(2025, 6), 24},
	}
	for _, tt := range tests {
		if got := PeriodsBetween(tt.a, tt.b); got != tt.want {
			t.Errorf("PeriodsBetween(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPeriodAddMonthsAcrossYears(t *testing.T) {
	if got := per(2025, 1).AddMonths(-1); got != per(2024, 12) {
		t.Errorf("AddMonths(-1) = %v, want 2024-12", got)
	}
	if got := per(2025, 1).AddMonths(-25); got != per(2022, 12) {
		t.Errorf("AddMonths(-25) = %v, want 2022-12", got)
	}
	if got := NewPeriod(2025, 13); got != per(2026, 1) {
		t.Errorf("NewPeriod(2025, 13) = %v, want 2026-01", got)
	}
}

func TestPeriodDueDate(t *testing.T) {
	tests := []struct {
		name string
		p    Period
		day  int
		want Date
	}{
		{"regular", per(2025, 4), 5, NewDate(2025, 4, 5)},
		{"clamped to february", per(2025, 2), 31, NewDate(2025, 2, 28)},
		{"leap february", per(2024, 2), 30, NewDate(2024, 2, 29)},
		{"clamped to 30-day month", per(2025, 6), 31, NewDate(2025, 6, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.DueDate(tt.day); !got.Equal(tt.want.Time) {
				t.Errorf("DueDate(%d) = %v, want %v", tt.day, got, tt.want)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2025-06")
	if err != nil || p != per(2025, 6) {
		t.Fatalf("ParsePeriod() = %v, %v", p, err)
	}
	for _, bad := range []string{"", "2025", "2025-13", "2025-00", "x-01", "2025-ab"} {
		if _, err := ParsePeriod(bad); !errors.Is(err, ErrInvalidPeriod) {
			t.Errorf("ParsePeriod(%q) error = %v, want ErrInvalidPeriod", bad, err)
		}
	}
}

func TestPeriodRange(t *testing.T) {
	got := per(2025, 11).Range(per(2026, 2))
	want := []Period{per(2025, 11), per(2025, 12), per(2026, 1), per(2026, 2)}
	if len(got) != len(want) {
		t.Fatalf("Range() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Range()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if per(2025, 3).Range(per(2025, 1)) != nil {
		t.Errorf("Range() with reversed bounds should be nil")
	}
}
