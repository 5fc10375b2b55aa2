// Package forecast composes the scheduling rules across commitments and periods into the
// read-only projections consumed by reports: monthly totals, the arrears backlog and the
// upcoming-payments list.
package forecast

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/netting"
	"scadenze/internal/schedule"
)

// Input is one owner's data set.
type Input struct {
	Commitments []core.Commitment
	Terms       []core.Term
	Payments    []core.Payment
}

// Aggregator answers projection queries over an immutable Input.
type Aggregator struct {
	commitments []core.Commitment
	terms       map[uuid.UUID][]core.Term
	payments    map[core.PeriodKey]core.Payment
	history     map[uuid.UUID][]core.Payment
	partners    map[uuid.UUID]core.Commitment
}

// New indexes in. Commitments are processed in ID order so results never depend on the
// order the caller passes them in.
func New(in Input) *Aggregator {
	a := &Aggregator{
		commitments: make([]core.Commitment, len(in.Commitments)),
		terms:       make(map[uuid.UUID][]core.Term),
		payments:    make(map[core.PeriodKey]core.Payment, len(in.Payments)),
		history:     make(map[uuid.UUID][]core.Payment),
		partners:    netting.Partners(in.Commitments),
	}
	copy(a.commitments, in.Commitments)
	sort.Slice(a.commitments, func(i, j int) bool {
		return a.commitments[i].ID.String() < a.commitments[j].ID.String()
	})
	for _, t := range in.Terms {
		a.terms[t.CommitmentID] = append(a.terms[t.CommitmentID], t)
	}
	for _, p := range in.Payments {
		a.payments[core.PeriodKey{CommitmentID: p.CommitmentID, Period: p.Period}] = p
		if p.Settled() {
			a.history[p.CommitmentID] = append(a.history[p.CommitmentID], p)
		}
	}
	for id := range a.history {
		h := a.history[id]
		sort.Slice(h, func(i, j int) bool { return h[i].Period.Before(h[j].Period) })
	}
	return a
}

// Window is a run of consecutive periods around a center month.
type Window struct {
	Center  core.Period
	Back    int
	Forward int
}

// DefaultWindow is eight months back, the center month and three months forward.
func DefaultWindow(center core.Period) Window {
	return Window{Center: center, Back: 8, Forward: 3}
}

func (w Window) Periods() []core.Period {
	return w.Center.AddMonths(-w.Back).Range(w.Center.AddMonths(w.Forward))
}

func (w Window) Contains(p core.Period) bool {
	d := core.PeriodsBetween(w.Center, p)
	return d >= -w.Back && d <= w.Forward
}

func (a *Aggregator) payment(id uuid.UUID, p core.Period) (core.Payment, bool) {
	pay, ok := a.payments[core.PeriodKey{CommitmentID: id, Period: p}]
	return pay, ok
}

// Expected returns the amount commitment c is expected to move in p, in base units. A
// recorded payment overrides the projection. The boolean is false when no term covers p or
// p is not one of the term's due periods and nothing was recorded.
func (a *Aggregator) Expected(c core.Commitment, p core.Period) (decimal.Decimal, bool) {
	term, ok := schedule.Resolve(a.terms[c.ID], p)
	if !ok {
		return decimal.Zero, false
	}
	if pay, ok := a.payment(c.ID, p); ok {
		return pay.Amount.InBase(), true
	}
	inst, ok := schedule.Entry(term, p)
	if !ok {
		return decimal.Zero, false
	}
	return a.estimate(c, term, inst), true
}

// settled returns the settled amount of c in p, if any.
func (a *Aggregator) settled(c core.Commitment, p core.Period) (decimal.Decimal, bool) {
	if _, ok := schedule.Resolve(a.terms[c.ID], p); !ok {
		return decimal.Zero, false
	}
	pay, ok := a.payment(c.ID, p)
	if !ok || !pay.Settled() {
		return decimal.Zero, false
	}
	return pay.Amount.InBase(), true
}

// MonthlyTotals returns income, expenses and balance for every period of w. Linked pairs
// contribute their net once per period, under the flow of the larger side.
func (a *Aggregator) MonthlyTotals(w Window) []core.MonthTotals {
	periods := w.Periods()
	out := make([]core.MonthTotals, 0, len(periods))
	visited := netting.NewVisited()

	for _, p := range periods {
		mt := core.MonthTotals{
			Period:       p,
			Income:       decimal.Zero,
			Expenses:     decimal.Zero,
			PaidIncome:   decimal.Zero,
			PaidExpenses: decimal.Zero,
		}
		for _, c := range a.commitments {
			if partner, ok := a.partners[c.ID]; ok {
				if !visited.Visit(netting.KeyOf(c.ID, partner.ID), p) {
					continue
				}
				a.addPair(&mt, c, partner, p)
				continue
			}
			if amt, ok := a.Expected(c, p); ok {
				addExpected(&mt, c.Flow, amt)
			}
			if amt, ok := a.settled(c, p); ok {
				addPaid(&mt, c.Flow, amt)
			}
		}
		mt.Balance = mt.Income.Sub(mt.Expenses)
		out = append(out, mt)
	}
	return out
}

func (a *Aggregator) addPair(mt *core.MonthTotals, c, partner core.Commitment, p core.Period) {
	primary, secondary := c, partner
	if c.Link.Role != core.Primary {
		primary, secondary = partner, c
	}

	ea, oka := a.Expected(primary, p)
	eb, okb := a.Expected(secondary, p)
	if oka || okb {
		r := netting.Net(
			netting.Side{Flow: primary.Flow, Amount: ea, Present: oka},
			netting.Side{Flow: secondary.Flow, Amount: eb, Present: okb},
		)
		addExpected(mt, r.Flow, r.Amount)
	}

	sa, psa := a.settled(primary, p)
	sb, psb := a.settled(secondary, p)
	if psa || psb {
		r := netting.Net(
			netting.Side{Flow: primary.Flow, Amount: sa, Present: psa},
			netting.Side{Flow: secondary.Flow, Amount: sb, Present: psb},
		)
		addPaid(mt, r.Flow, r.Amount)
	}
}

func addExpected(mt *core.MonthTotals, flow core.FlowType, amt decimal.Decimal) {
	switch flow {
	case core.Income:
		mt.Income = mt.Income.Add(amt)
		mt.HasIncomeData = true
	case core.Expense:
		mt.Expenses = mt.Expenses.Add(amt)
		mt.HasExpenseData = true
	}
}

func addPaid(mt *core.MonthTotals, flow core.FlowType, amt decimal.Decimal) {
	switch flow {
	case core.Income:
		mt.PaidIncome = mt.PaidIncome.Add(amt)
	case core.Expense:
		mt.PaidExpenses = mt.PaidExpenses.Add(amt)
	}
}

// CountedKeys returns the (commitment, period) combinations MonthlyTotals(w) draws on.
func (a *Aggregator) CountedKeys(w Window) map[core.PeriodKey]struct{} {
	out := make(map[core.PeriodKey]struct{})
	for _, p := range w.Periods() {
		for _, c := range a.commitments {
			if _, ok := a.Expected(c, p); ok {
				out[core.PeriodKey{CommitmentID: c.ID, Period: p}] = struct{}{}
			}
		}
	}
	return out
}
