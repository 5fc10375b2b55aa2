// Package core provides money parsing and handling utilities.
//
// This file contains the Money value type and parsing of user-entered amounts.
package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Money is an amount in some unit (currency, UF, ...) plus the rate that converts it to the
// reporting base unit.
type Money struct {
	Amount     decimal.Decimal
	Unit       string
	RateToBase decimal.Decimal
}

// RateTable is the snapshot of conversion rates supplied by an external provider.
type RateTable interface {
	// Rate returns the rate from unit to the base unit valid on asOf.
	Rate(unit string, asOf time.Time) (decimal.Decimal, bool)
}

// NewMoney builds a base-unit amount (rate 1).
func NewMoney(amount decimal.Decimal, unit string) Money {
	return Money{Amount: amount, Unit: unit, RateToBase: decimal.NewFromInt(1)}
}

// InBase converts the amount into the reporting base unit. A missing rate counts as 1.
func (m Money) InBase() decimal.Decimal {
	if m.RateToBase.IsZero() {
		return m.Amount
	}
	return m.Amount.Mul(m.RateToBase)
}

func (m Money) Validate() error {
	if !m.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(m.Unit) == "" {
		return ErrInvalidUnit
	}
	if m.RateToBase.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// WithRate fills a missing rate from the table, leaving explicit rates untouched.
func (m Money) WithRate(table RateTable, asOf time.Time) Money {
	if !m.RateToBase.IsZero() || table == nil {
		return m
	}
	if rate, ok := table.Rate(m.Unit, asOf); ok {
		m.RateToBase = rate
	}
	return m
}

// ParseAmount converts a user-entered decimal string into a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Thousands separators
// are not supported. Returns ErrInvalidAmount for invalid formats, negative values, or
// zero amounts.
//
// Examples:
//
//	ParseAmount("12.34")   -> 12.34, nil
//	ParseAmount("12,34")   -> 12.34, nil
//	ParseAmount("1000000") -> 1000000, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
