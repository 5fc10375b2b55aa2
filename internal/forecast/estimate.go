package forecast

import (
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// estimate projects an unrecorded installment. Divided plans and FIXED terms use the
// scheduled amount; AVERAGE and LAST look at the commitment's settled payments for earlier
// periods and fall back to the scheduled amount when there are none.
func (a *Aggregator) estimate(c core.Commitment, term core.Term, inst schedule.Installment) decimal.Decimal {
	if term.Divided || term.Estimation == core.EstimateFixed || term.Estimation == "" {
		return inst.Amount
	}

	var prior []core.Payment
	for _, p := range a.history[c.ID] {
		if !p.Period.Before(inst.Period) {
			break
		}
		prior = append(prior, p)
	}
	if len(prior) == 0 {
		return inst.Amount
	}

	switch term.Estimation {
	case core.EstimateLast:
		return prior[len(prior)-1].Amount.InBase()
	case core.EstimateAverage:
		sum := decimal.Zero
		for _, p := range prior {
			sum = sum.Add(p.Amount.InBase())
		}
		return sum.DivRound(decimal.NewFromInt(int64(len(prior))), 2)
	}
	return inst.Amount
}
