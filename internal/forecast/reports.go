package forecast

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// ArrearsBacklog re-scans the lookback months ending at today's month for overdue periods.
// Items whose key is in counted are flagged InWindow and left out of OutsideWindow.
func (a *Aggregator) ArrearsBacklog(today core.Date, lookback int, counted map[core.PeriodKey]struct{}) core.ArrearsBacklog {
	if lookback < 1 {
		lookback = 1
	}
	end := today.Period()
	start := end.AddMonths(-(lookback - 1))

	out := core.ArrearsBacklog{
		Total:         decimal.Zero,
		Receivable:    decimal.Zero,
		OutsideWindow: decimal.Zero,
	}
	for _, c := range a.commitments {
		terms := a.terms[c.ID]
		for _, p := range start.Range(end) {
			term := schedule.ResolveRef(terms, p)
			var pay *core.Payment
			if rec, ok := a.payment(c.ID, p); ok {
				pay = &rec
			}
			if schedule.Classify(term, pay, p, today) != core.StatusOverdue {
				continue
			}
			amount, _ := a.Expected(c, p)
			key := core.PeriodKey{CommitmentID: c.ID, Period: p}
			_, inWindow := counted[key]

			out.Items = append(out.Items, core.ArrearsItem{
				CommitmentID: c.ID,
				Name:         c.Name,
				Flow:         c.Flow,
				Period:       p,
				DueDate:      schedule.DueDate(*term, pay, p),
				Amount:       amount,
				InWindow:     inWindow,
			})
			if c.Flow == core.Income {
				out.Receivable = out.Receivable.Add(amount)
				continue
			}
			out.Total = out.Total.Add(amount)
			if !inWindow {
				out.OutsideWindow = out.OutsideWindow.Add(amount)
			}
		}
	}
	sort.SliceStable(out.Items, func(i, j int) bool {
		x, y := out.Items[i], out.Items[j]
		if x.Period != y.Period {
			return x.Period.Before(y.Period)
		}
		return x.Name < y.Name
	})
	return out
}

// Upcoming lists the unsettled expense installments of period p, most urgent first.
func (a *Aggregator) Upcoming(p core.Period, today core.Date) []core.UpcomingItem {
	var out []core.UpcomingItem
	for _, c := range a.commitments {
		if c.Flow != core.Expense {
			continue
		}
		term := schedule.ResolveRef(a.terms[c.ID], p)
		var pay *core.Payment
		if rec, ok := a.payment(c.ID, p); ok {
			pay = &rec
		}
		status := schedule.Classify(term, pay, p, today)
		if status == core.StatusNotApplicable || status == core.StatusPaid {
			continue
		}
		inst, _ := schedule.Entry(*term, p)
		amount, _ := a.Expected(c, p)
		due := schedule.DueDate(*term, pay, p)
		days := today.DaysUntil(due)

		out = append(out, core.UpcomingItem{
			CommitmentID: c.ID,
			Name:         c.Name,
			Important:    c.Important,
			Period:       p,
			DueDate:      due,
			Amount:       amount,
			Cuota:        inst.Cuota,
			Installments: planSize(*term),
			Status:       status,
			DaysUntil:    days,
			Urgency:      urgencyOf(days),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if x.Urgency.Rank() != y.Urgency.Rank() {
			return x.Urgency.Rank() < y.Urgency.Rank()
		}
		if x.DaysUntil != y.DaysUntil {
			return x.DaysUntil < y.DaysUntil
		}
		return x.Name < y.Name
	})
	return out
}

func urgencyOf(days int) core.Urgency {
	switch {
	case days < 0:
		return core.UrgencyOverdue
	case days <= 7:
		return core.UrgencyNext7Days
	default:
		return core.UrgencyRestOfMonth
	}
}

func planSize(t core.Term) int {
	if n := t.InstallmentCount(); n > 1 {
		return n
	}
	return 0
}

// Schedule lists every installment of commitment id up to horizon across all of its term
// versions, with the status each one has today.
func (a *Aggregator) Schedule(id uuid.UUID, today core.Date, horizon core.Period) []core.ScheduleRow {
	terms := append([]core.Term(nil), a.terms[id]...)
	sort.Slice(terms, func(i, j int) bool {
		return terms[i].EffectiveFrom.Before(terms[j].EffectiveFrom)
	})

	var out []core.ScheduleRow
	for _, t := range terms {
		for inst := range schedule.Generate(t, horizon).All() {
			if inst.Period.After(horizon) {
				break
			}
			row := core.ScheduleRow{
				TermID:       t.ID,
				Version:      t.Version,
				Period:       inst.Period,
				Cuota:        inst.Cuota,
				Installments: planSize(t),
				Amount:       inst.Amount,
			}
			var pay *core.Payment
			if rec, ok := a.payment(id, inst.Period); ok {
				pay = &rec
				payID := rec.ID
				row.PaymentID = &payID
				row.Amount = rec.Amount.InBase()
			}
			term := t
			row.DueDate = schedule.DueDate(term, pay, inst.Period)
			row.Status = schedule.Classify(&term, pay, inst.Period, today)
			out = append(out, row)
		}
	}
	return out
}
