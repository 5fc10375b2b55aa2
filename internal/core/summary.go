package core

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the settlement classification of one commitment period.
type Status string

const (
	StatusNotApplicable Status = "not_applicable"
	StatusPaid          Status = "paid"
	StatusOverdue       Status = "overdue"
	StatusPending       Status = "pending"
	StatusUpcoming      Status = "upcoming"
)

// Urgency buckets for the upcoming-payments list, in display order.
type Urgency string

const (
	UrgencyOverdue     Urgency = "overdue"
	UrgencyNext7Days   Urgency = "next7days"
	UrgencyRestOfMonth Urgency = "restOfMonth"
)

// Rank orders urgency buckets, most urgent first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyOverdue:
		return 0
	case UrgencyNext7Days:
		return 1
	}
	return 2
}

// PeriodKey identifies one obligation-period of one commitment.
type PeriodKey struct {
	CommitmentID uuid.UUID
	Period       Period
}

// MonthTotals is the projected and settled cash flow of one period.
type MonthTotals struct {
	Period         Period
	Income         decimal.Decimal
	Expenses       decimal.Decimal
	Balance        decimal.Decimal
	PaidIncome     decimal.Decimal
	PaidExpenses   decimal.Decimal
	HasIncomeData  bool
	HasExpenseData bool
}

// ArrearsItem is one overdue obligation-period.
type ArrearsItem struct {
	CommitmentID uuid.UUID
	Name         string
	Flow         FlowType
	Period       Period
	DueDate      Date
	Amount       decimal.Decimal
	// InWindow is set when the period is already part of the monthly totals window.
	InWindow bool
}

// ArrearsBacklog lists overdue periods. Total sums overdue expenses and Receivable overdue
// income; OutsideWindow is the part of Total not already counted by the monthly totals.
type ArrearsBacklog struct {
	Items         []ArrearsItem
	Total         decimal.Decimal
	Receivable    decimal.Decimal
	OutsideWindow decimal.Decimal
}

// ScheduleRow is one generated installment of a commitment with its current status.
type ScheduleRow struct {
	TermID       uuid.UUID
	Version      int
	Period       Period
	Cuota        int
	Installments int
	DueDate      Date
	Amount       decimal.Decimal
	Status       Status
	PaymentID    *uuid.UUID
}

// UpcomingItem is one unsettled expense due around the requested month.
type UpcomingItem struct {
	CommitmentID uuid.UUID
	Name         string
	Important    bool
	Period       Period
	DueDate      Date
	Amount       decimal.Decimal
	Cuota        int
	Installments int
	Status       Status
	DaysUntil    int
	Urgency      Urgency
}
