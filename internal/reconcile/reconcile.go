// Package reconcile re-derives each payment's governing term after a commitment's terms
// change. Plan is pure; the caller applies its result atomically.
package reconcile

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
)

// Result is the set of changes a reconciliation pass must write.
type Result struct {
	// Updated holds the payments whose term reference or orphan state changed, already
	// carrying their new values.
	Updated []core.Payment
	// Audit holds one entry per term reference reassignment.
	Audit []core.AuditEntry
	// Orphaned lists the payments this pass flagged as orphaned.
	Orphaned []core.Payment
}

// Empty reports whether the pass found nothing to change.
func (r Result) Empty() bool {
	return len(r.Updated) == 0
}

// Plan resolves every payment's immutable period against terms. A payment whose resolved
// term differs from its stored reference is reassigned; a payment no term covers any more
// is flagged orphaned, unless the user already accepted it as historical. Running Plan on
// its own output yields an empty Result.
func Plan(terms []core.Term, payments []core.Payment, now time.Time) Result {
	sorted := make([]core.Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Period.Before(sorted[j].Period) })

	var res Result
	for _, p := range sorted {
		next, reason, changed := derive(terms, p)
		if !changed {
			continue
		}
		res.Updated = append(res.Updated, next)
		if next.Orphaned() {
			res.Orphaned = append(res.Orphaned, next)
		}
		if core.SameTerm(p.TermID, next.TermID) {
			continue
		}
		res.Audit = append(res.Audit, core.AuditEntry{
			ID:           uuid.New(),
			CommitmentID: p.CommitmentID,
			PaymentID:    p.ID,
			OldPeriod:    p.Period,
			OldTermID:    p.TermID,
			NewPeriod:    next.Period,
			NewTermID:    next.TermID,
			Reason:       reason,
			At:           now,
		})
	}
	return res
}

func derive(terms []core.Term, p core.Payment) (core.Payment, string, bool) {
	t := schedule.ResolveRef(terms, p.Period)
	if t == nil {
		if p.TermID == nil && p.Orphan != core.OrphanNone {
			return p, "", false
		}
		p.TermID = nil
		p.Orphan = core.OrphanFlagged
		return p, core.ReasonOrphaned, true
	}

	id := t.ID
	if core.SameTerm(p.TermID, &id) && p.Orphan == core.OrphanNone {
		return p, "", false
	}
	reason := core.ReasonTermChanged
	if p.TermID == nil {
		reason = core.ReasonCoverageRestored
	}
	p.TermID = &id
	p.Orphan = core.OrphanNone
	return p, reason, true
}

// Consistent reports whether every payment either references the term resolved for its
// period or is flagged orphaned (or accepted) with no term left to reference.
func Consistent(terms []core.Term, payments []core.Payment) bool {
	for _, p := range payments {
		t := schedule.ResolveRef(terms, p.Period)
		if t == nil {
			if p.TermID != nil || p.Orphan == core.OrphanNone {
				return false
			}
			continue
		}
		id := t.ID
		if !core.SameTerm(p.TermID, &id) || p.Orphan != core.OrphanNone {
			return false
		}
	}
	return true
}

// Apply returns payments with the updates of res merged in, keyed by payment ID.
func Apply(payments []core.Payment, res Result) []core.Payment {
	byID := make(map[uuid.UUID]core.Payment, len(res.Updated))
	for _, u := range res.Updated {
		byID[u.ID] = u
	}
	out := make([]core.Payment, len(payments))
	for i, p := range payments {
		if u, ok := byID[p.ID]; ok {
			p = u
		}
		out[i] = p
	}
	return out
}
