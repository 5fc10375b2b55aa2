package schedule

import (
	"iter"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// amountPlaces is the rounding applied to divided installments.
const amountPlaces = 2

// Installment is one due period of a term.
type Installment struct {
	Period core.Period
	// Cuota is the 1-based position in an installment plan, 0 when the term has no plan.
	Cuota  int
	Amount decimal.Decimal
}

// Sequence is the finite, restartable list of installments a term produces.
type Sequence struct {
	term    core.Term
	horizon core.Period
}

// Generate returns the installments of term. horizon bounds open-ended terms that have
// neither an end period nor an installment count; it is ignored otherwise.
func Generate(term core.Term, horizon core.Period) Sequence {
	return Sequence{term: term, horizon: horizon}
}

// All yields installments in period order. Each call restarts from the first one.
func (s Sequence) All() iter.Seq[Installment] {
	return func(yield func(Installment) bool) {
		t := s.term
		if t.Frequency == core.Once {
			yield(Installment{Period: t.EffectiveFrom, Amount: t.Amount.InBase()})
			return
		}
		step := t.Frequency.Interval()
		if step <= 0 {
			return
		}
		last := s.last()
		n := t.InstallmentCount()
		for i, p := 1, t.EffectiveFrom; !p.After(last); i, p = i+1, p.Step(t.Frequency) {
			if n > 0 && i > n {
				return
			}
			if !yield(installmentAt(t, p, i)) {
				return
			}
		}
	}
}

// Slice collects All into a slice.
func (s Sequence) Slice() []Installment {
	var out []Installment
	for inst := range s.All() {
		out = append(out, inst)
	}
	return out
}

func (s Sequence) last() core.Period {
	t := s.term
	if t.EffectiveUntil != nil {
		return *t.EffectiveUntil
	}
	if derived, ok := t.DerivedUntil(); ok {
		return derived
	}
	return s.horizon
}

// Entry returns the installment term makes due in period p, if any. Unlike Generate it
// needs no horizon: open-ended terms are checked arithmetically.
func Entry(term core.Term, p core.Period) (Installment, bool) {
	if !term.Covers(p) {
		return Installment{}, false
	}
	if term.Frequency == core.Once {
		if p != term.EffectiveFrom {
			return Installment{}, false
		}
		return Installment{Period: p, Amount: term.Amount.InBase()}, true
	}
	step := term.Frequency.Interval()
	if step <= 0 {
		return Installment{}, false
	}
	d := core.PeriodsBetween(term.EffectiveFrom, p)
	if d%step != 0 {
		return Installment{}, false
	}
	idx := d/step + 1
	if n := term.InstallmentCount(); n > 0 && idx > n {
		return Installment{}, false
	}
	return installmentAt(term, p, idx), true
}

func installmentAt(t core.Term, p core.Period, idx int) Installment {
	n := t.InstallmentCount()
	inst := Installment{Period: p, Amount: PeriodAmount(t, idx)}
	if n > 1 {
		inst.Cuota = idx
	}
	return inst
}

// PeriodAmount returns the base-unit amount due for the idx-th installment. Divided plans
// split the total into cent-rounded shares; the final installment absorbs the rounding
// remainder so the shares add up to the total.
func PeriodAmount(t core.Term, idx int) decimal.Decimal {
	total := t.Amount.InBase()
	n := t.InstallmentCount()
	if !t.Divided || n <= 1 {
		return total
	}
	share := total.DivRound(decimal.NewFromInt(int64(n)), amountPlaces)
	if idx == n {
		return total.Sub(share.Mul(decimal.NewFromInt(int64(n - 1))))
	}
	return share
}
