package rates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const snapshot = `
base: eur
rates:
  USD:
    - from: 2025-03-01
      rate: 0.95
    - from: 2025-01-01
      rate: "0.92"
  clf:
    - from: 2025-01-01
      rate: 39.41
`

func TestTable_Rate(t *testing.T) {
	table, err := Parse([]byte(snapshot))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name   string
		unit   string
		asOf   time.Time
		want   string
		wantOK bool
	}{
		{"base unit", "EUR", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "1", true},
		{"first rate", "USD", time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC), "0.92", true},
		{"rate change day", "usd", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "0.95", true},
		{"lowercase unit in file", "CLF", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "39.41", true},
		{"before first rate", "USD", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "", false},
		{"unknown unit", "GBP", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Rate(tt.unit, tt.asOf)
			if ok != tt.wantOK {
				t.Fatalf("Rate(%s) ok = %v, want %v", tt.unit, ok, tt.wantOK)
			}
			if ok && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Rate(%s) = %s, want %s", tt.unit, got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"missing base":  "rates: {}",
		"bad date":      "base: EUR\nrates:\n  USD:\n    - from: soon\n      rate: 1",
		"bad rate":      "base: EUR\nrates:\n  USD:\n    - from: 2025-01-01\n      rate: lots",
		"negative rate": "base: EUR\nrates:\n  USD:\n    - from: 2025-01-01\n      rate: -1",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Errorf("Parse() error = nil")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(snapshot), 0644); err != nil {
		t.Fatal(err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if table.Base() != "EUR" {
		t.Errorf("Base() = %q, want EUR", table.Base())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load() of a missing file error = nil")
	}
}

func TestStatic(t *testing.T) {
	table := Static("EUR", map[string]decimal.Decimal{"usd": decimal.RequireFromString("0.9")})
	if r, ok := table.Rate("USD", time.Now()); !ok || !r.Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("Rate(USD) = %v, %v", r, ok)
	}
}
