// Package rates loads the currency rate snapshot used to convert amounts into the base
// unit. Rates are never fetched; an operator exports them to a YAML file.
package rates

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Table is an immutable rate snapshot. It implements core.RateTable.
//
// File format:
//
//	base: EUR
//	rates:
//	  USD:
//	    - from: 2025-01-01
//	      rate: 0.92
//	  CLF:
//	    - from: 2025-01-01
//	      rate: "39.41"
type Table struct {
	base  string
	rates map[string][]entry
}

type entry struct {
	from time.Time
	rate decimal.Decimal
}

type fileFormat struct {
	Base  string                 `yaml:"base"`
	Rates map[string][]fileEntry `yaml:"rates"`
}

type fileEntry struct {
	From day    `yaml:"from"`
	Rate amount `yaml:"rate"`
}

// day and amount read the raw scalar so quoting in the file does not matter.
type (
	day    struct{ time.Time }
	amount struct{ decimal.Decimal }
)

func (d *day) UnmarshalYAML(n *yaml.Node) error {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid date %q", n.Line, n.Value)
	}
	d.Time = t
	return nil
}

func (a *amount) UnmarshalYAML(n *yaml.Node) error {
	v, err := decimal.NewFromString(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid rate %q", n.Line, n.Value)
	}
	a.Decimal = v
	return nil
}

// Load reads a rate snapshot from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse rates file %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a YAML rate snapshot.
func Parse(data []byte) (*Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	base := strings.ToUpper(strings.TrimSpace(f.Base))
	if base == "" {
		return nil, fmt.Errorf("base unit is required")
	}

	t := &Table{base: base, rates: make(map[string][]entry, len(f.Rates))}
	for unit, list := range f.Rates {
		unit = strings.ToUpper(strings.TrimSpace(unit))
		for _, e := range list {
			if !e.Rate.IsPositive() {
				return nil, fmt.Errorf("unit %s: rate must be positive, got %s", unit, e.Rate)
			}
			t.rates[unit] = append(t.rates[unit], entry{from: e.From.Time, rate: e.Rate.Decimal})
		}
		entries := t.rates[unit]
		sort.Slice(entries, func(i, j int) bool { return entries[i].from.Before(entries[j].from) })
	}
	return t, nil
}

// Static returns a table with one rate per unit valid for all dates.
func Static(base string, rates map[string]decimal.Decimal) *Table {
	t := &Table{base: strings.ToUpper(base), rates: make(map[string][]entry, len(rates))}
	for unit, r := range rates {
		t.rates[strings.ToUpper(unit)] = []entry{{rate: r}}
	}
	return t
}

// Base returns the reporting unit.
func (t *Table) Base() string {
	return t.base
}

// Rate returns the latest rate for unit that took effect on or before asOf. The base
// unit always converts at 1.
func (t *Table) Rate(unit string, asOf time.Time) (decimal.Decimal, bool) {
	unit = strings.ToUpper(strings.TrimSpace(unit))
	if unit == t.base {
		return decimal.NewFromInt(1), true
	}
	entries := t.rates[unit]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].from.After(asOf) })
	if i == 0 {
		return decimal.Decimal{}, false
	}
	return entries[i-1].rate, true
}
