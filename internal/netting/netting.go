// Package netting reports two deliberately linked commitments as one net flow.
package netting

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// PairKey identifies a linked pair independently of which side is visited first.
type PairKey struct {
	Low  uuid.UUID
	High uuid.UUID
}

// KeyOf returns the canonical key of the pair (a, b): identifiers sorted ascending.
func KeyOf(a, b uuid.UUID) PairKey {
	if a.String() > b.String() {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// Visited remembers which pairs have been netted for which period during one
// aggregation pass.
type Visited struct {
	seen map[visit]struct{}
}

type visit struct {
	key    PairKey
	period core.Period
}

func NewVisited() *Visited {
	return &Visited{seen: make(map[visit]struct{})}
}

// Visit marks the pair as handled for p and reports whether this is the first visit.
func (v *Visited) Visit(key PairKey, p core.Period) bool {
	k := visit{key: key, period: p}
	if _, ok := v.seen[k]; ok {
		return false
	}
	v.seen[k] = struct{}{}
	return true
}

// Side is one commitment's contribution to a pair for one period.
type Side struct {
	Flow   core.FlowType
	Amount decimal.Decimal
	// Present is false when the side has nothing for the period (no covering term, or no
	// settlement when netting paid amounts). Absent sides count as zero.
	Present bool
}

// Result is the net flow of a pair.
type Result struct {
	Flow   core.FlowType
	Amount decimal.Decimal
}

// IsZero reports whether the pair cancels out or has no data.
func (r Result) IsZero() bool {
	return r.Amount.IsZero()
}

// Net returns |a - b| under the flow of whichever side is larger. A side that is not
// present counts as zero: when netting settled amounts and only one side has a settlement,
// that side's full amount is reported. When both sides are equal the result is zero.
func Net(a, b Side) Result {
	av, bv := sideValue(a), sideValue(b)
	switch av.Cmp(bv) {
	case 1:
		return Result{Flow: a.Flow, Amount: av.Sub(bv)}
	case -1:
		return Result{Flow: b.Flow, Amount: bv.Sub(av)}
	}
	flow := a.Flow
	if !a.Present && b.Present {
		flow = b.Flow
	}
	return Result{Flow: flow, Amount: decimal.Zero}
}

func sideValue(s Side) decimal.Decimal {
	if !s.Present {
		return decimal.Zero
	}
	return s.Amount
}

// Partners indexes the well-formed linked pairs among commitments by commitment ID. A
// commitment whose partner is missing or does not link back is reported unlinked.
func Partners(commitments []core.Commitment) map[uuid.UUID]core.Commitment {
	byID := make(map[uuid.UUID]core.Commitment, len(commitments))
	for _, c := range commitments {
		byID[c.ID] = c
	}
	out := make(map[uuid.UUID]core.Commitment)
	for _, c := range commitments {
		if c.Link == nil {
			continue
		}
		partner, ok := byID[c.Link.CommitmentID]
		if !ok || !c.LinkedTo(partner) {
			continue
		}
		out[c.ID] = partner
	}
	return out
}
