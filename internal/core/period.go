package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period identifies one billing cycle by year and month. Ordering and distance are
// month-granular; the day of a due date is carried separately.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod normalizes out-of-range months, so NewPeriod(2025, 13) is 2026-01.
func NewPeriod(year int, month time.Month) Period {
	return periodFromIndex(year*12 + int(month) - 1)
}

// TruncateToMonth returns the period containing t.
func TruncateToMonth(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	y, m, ok := strings.Cut(s, "-")
	if !ok {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	p := Period{Year: year, Month: time.Month(month)}
	if !p.Valid() {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return p, nil
}

func (p Period) Valid() bool {
	return p.Year >= 1 && p.Year <= 9999 && p.Month >= time.January && p.Month <= time.December
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Period) index() int {
	return p.Year*12 + int(p.Month) - 1
}

func periodFromIndex(i int) Period {
	return Period{Year: floorDiv(i, 12), Month: time.Month(i-floorDiv(i, 12)*12) + 1}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// AddMonths shifts the period by n months (n may be negative).
func (p Period) AddMonths(n int) Period {
	return periodFromIndex(p.index() + n)
}

// Step advances the period by the frequency interval. ONCE has no step: the period is
// returned unchanged and callers must not iterate on it.
func (p Period) Step(f Frequency) Period {
	return p.AddMonths(f.Interval())
}

// PeriodsBetween returns the signed month distance from a to b.
func PeriodsBetween(a, b Period) int {
	return b.index() - a.index()
}

// Compare returns -1, 0 or +1.
func (p Period) Compare(o Period) int {
	switch d := p.index() - o.index(); {
	case d < 0:
		return -1
	case d > 0:
		return 1
	}
	return 0
}

func (p Period) Before(o Period) bool { return p.index() < o.index() }
func (p Period) After(o Period) bool  { return p.index() > o.index() }

// Start returns the first day of the period.
func (p Period) Start() Date {
	return NewDate(p.Year, int(p.Month), 1)
}

// End returns the last day of the period.
func (p Period) End() Date {
	return NewDate(p.Year, int(p.Month)+1, 0)
}

// DaysIn returns the number of days in the period.
func (p Period) DaysIn() int {
	return p.End().Day()
}

// DueDate places day inside the period, clamping to the last day for short months
// (a due day of 31 falls on 28/29 February).
func (p Period) DueDate(day int) Date {
	if day < 1 {
		day = 1
	}
	if last := p.DaysIn(); day > last {
		day = last
	}
	return NewDate(p.Year, int(p.Month), day)
}

// Range returns every period from p to end inclusive. It returns nil when end precedes p.
func (p Period) Range(end Period) []Period {
	n := PeriodsBetween(p, end)
	if n < 0 {
		return nil
	}
	out := make([]Period, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, p.AddMonths(i))
	}
	return out
}
