package schedule

import (
	"scadenze/internal/core"
)

// Classify returns the settlement status of period p.
//
//   - no term covering p: not applicable, whatever payment exists
//   - a settled payment: paid
//   - p is not one of the term's due periods: not applicable
//   - today past the due date: overdue
//   - p entirely after today's month: upcoming
//   - otherwise: pending
//
// Classify never fails; a missing term is a valid outcome.
func Classify(term *core.Term, payment *core.Payment, p core.Period, today core.Date) core.Status {
	if term == nil {
		return core.StatusNotApplicable
	}
	if payment != nil && payment.Settled() {
		return core.StatusPaid
	}
	if _, ok := Entry(*term, p); !ok {
		return core.StatusNotApplicable
	}

	due := DueDate(*term, payment, p)
	if today.After(due.Time) {
		return core.StatusOverdue
	}
	if p.After(today.Period()) {
		return core.StatusUpcoming
	}
	return core.StatusPending
}

// DueDate returns the payment's override when present, otherwise the term's due day placed
// inside p.
func DueDate(term core.Term, payment *core.Payment, p core.Period) core.Date {
	if payment != nil && payment.DueDateOverride != nil && !payment.DueDateOverride.IsZero() {
		return *payment.DueDateOverride
	}
	return p.DueDate(term.DueDay)
}
