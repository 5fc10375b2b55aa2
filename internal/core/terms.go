package core

import (
	"fmt"
)

// TermShape is the tagged view of a term's mutually exclusive nullable fields
// (effective-until, installment count, divided flag).
type TermShape int

const (
	// ShapeOnce covers exactly one period.
	ShapeOnce TermShape = iota + 1
	// ShapeOpenEnded has neither an end period nor an installment count.
	ShapeOpenEnded
	// ShapeBoundedByDate ends at an explicit period.
	ShapeBoundedByDate
	// ShapeBoundedByInstallments repeats a flat amount for a fixed number of periods.
	ShapeBoundedByInstallments
	// ShapeDividedInstallmentPlan splits a total amount across its installments.
	ShapeDividedInstallmentPlan
)

func (s TermShape) String() string {
	switch s {
	case ShapeOnce:
		return "once"
	case ShapeOpenEnded:
		return "open_ended"
	case ShapeBoundedByDate:
		return "bounded_by_date"
	case ShapeBoundedByInstallments:
		return "bounded_by_installments"
	case ShapeDividedInstallmentPlan:
		return "divided_installment_plan"
	}
	return "unknown"
}

// Shape classifies the term's persisted fields.
func (t Term) Shape() TermShape {
	switch {
	case t.Frequency == Once:
		return ShapeOnce
	case t.Installments != nil && t.Divided:
		return ShapeDividedInstallmentPlan
	case t.Installments != nil:
		return ShapeBoundedByInstallments
	case t.EffectiveUntil != nil:
		return ShapeBoundedByDate
	}
	return ShapeOpenEnded
}

// InstallmentCount returns the installment count, or 0 when none is set.
func (t Term) InstallmentCount() int {
	if t.Installments == nil {
		return 0
	}
	return *t.Installments
}

// Covers reports whether period lies inside the term's month-truncated effective range.
func (t Term) Covers(p Period) bool {
	if p.Before(t.EffectiveFrom) {
		return false
	}
	return t.EffectiveUntil == nil || !p.After(*t.EffectiveUntil)
}

// DerivedUntil returns effective-from advanced by (installments-1) frequency intervals.
func (t Term) DerivedUntil() (Period, bool) {
	if t.Installments == nil || *t.Installments < 1 {
		return Period{}, false
	}
	return t.EffectiveFrom.AddMonths((*t.Installments - 1) * t.Frequency.Interval()), true
}

// NormalizeTerm enforces the term shape invariants on user input. prev is the stored version
// of the same term when editing, nil when creating.
//
// A user-narrowed effective-until (earlier than the derived one, e.g. an early termination)
// survives an edit as long as effective-from, frequency and installment count are unchanged.
func NormalizeTerm(t Term, prev *Term) Term {
	if t.Estimation == "" {
		t.Estimation = EstimateFixed
	}
	if t.Frequency == Once {
		from := t.EffectiveFrom
		one := 1
		t.EffectiveUntil = &from
		t.Installments = &one
		return t
	}
	derived, ok := t.DerivedUntil()
	if !ok {
		return t
	}
	if prev != nil && t.EffectiveUntil != nil && t.EffectiveUntil.Before(derived) && !derivationChanged(*prev, t) {
		return t
	}
	t.EffectiveUntil = &derived
	return t
}

func derivationChanged(prev, next Term) bool {
	return prev.EffectiveFrom != next.EffectiveFrom ||
		prev.Frequency != next.Frequency ||
		prev.InstallmentCount() != next.InstallmentCount()
}

// Validate checks a normalized term.
func (t Term) Validate() error {
	if !t.EffectiveFrom.Valid() {
		return fmt.Errorf("%w: effective from %v", ErrInvalidPeriod, t.EffectiveFrom)
	}
	if !t.Frequency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, t.Frequency)
	}
	if t.DueDay < 1 || t.DueDay > 31 {
		return fmt.Errorf("%w: %d", ErrInvalidDueDay, t.DueDay)
	}
	if t.Estimation != "" && !t.Estimation.Valid() {
		return fmt.Errorf("%w: estimation mode %q", ErrInvalidTermShape, t.Estimation)
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.EffectiveUntil != nil {
		if !t.EffectiveUntil.Valid() {
			return fmt.Errorf("%w: effective until %v", ErrInvalidPeriod, *t.EffectiveUntil)
		}
		if t.EffectiveUntil.Before(t.EffectiveFrom) {
			return fmt.Errorf("%w: effective until %s precedes effective from %s", ErrInvalidTermShape, *t.EffectiveUntil, t.EffectiveFrom)
		}
	}
	if t.Installments != nil && *t.Installments < 1 {
		return fmt.Errorf("%w: installment count must be at least 1", ErrInvalidTermShape)
	}

	switch t.Shape() {
	case ShapeOnce:
		if t.EffectiveUntil == nil || *t.EffectiveUntil != t.EffectiveFrom {
			return fmt.Errorf("%w: a one-off term covers exactly its start period", ErrInvalidTermShape)
		}
		if t.InstallmentCount() > 1 {
			return fmt.Errorf("%w: a one-off term has a single installment", ErrInvalidTermShape)
		}
	case ShapeBoundedByInstallments, ShapeDividedInstallmentPlan:
		if t.EffectiveUntil == nil {
			return fmt.Errorf("%w: an indefinite term cannot carry an installment count", ErrInvalidTermShape)
		}
		if derived, ok := t.DerivedUntil(); ok && t.EffectiveUntil != nil && t.EffectiveUntil.After(derived) {
			return fmt.Errorf("%w: effective until %s is past the last installment %s", ErrInvalidTermShape, *t.EffectiveUntil, derived)
		}
	}
	return nil
}
