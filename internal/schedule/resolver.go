// Package schedule holds the pure scheduling rules: which term governs a period, which
// periods a term makes due and for how much, and how a period is classified against its
// settlement record. Nothing here touches storage.
package schedule

import (
	"sort"

	"scadenze/internal/core"
)

// Resolve returns the term governing period p. Terms are matched on their month-truncated
// effective range; if several match (the no-overlap rule was bypassed somewhere) the highest
// version wins. The boolean is false when no term covers p, which callers treat as "not
// applicable", never as an error.
func Resolve(terms []core.Term, p core.Period) (core.Term, bool) {
	var (
		best  core.Term
		found bool
	)
	for _, t := range terms {
		if !t.Covers(p) {
			continue
		}
		if !found || t.Version > best.Version {
			best = t
			found = true
		}
	}
	return best, found
}

// ResolveRef is Resolve returning a pointer, nil when nothing covers p.
func ResolveRef(terms []core.Term, p core.Period) *core.Term {
	t, ok := Resolve(terms, p)
	if !ok {
		return nil
	}
	return &t
}

// CheckOverlap returns an *core.OverlapError for the first pair of terms covering a common
// period. Gaps between terms are allowed.
func CheckOverlap(terms []core.Term) error {
	sorted := make([]core.Term, len(terms))
	copy(sorted, terms)
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].EffectiveFrom.Compare(sorted[j].EffectiveFrom); c != 0 {
			return c < 0
		}
		return sorted[i].Version < sorted[j].Version
	})

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if p, ok := firstShared(sorted[i], sorted[j]); ok {
				return &core.OverlapError{VersionA: sorted[i].Version, VersionB: sorted[j].Version, Period: p}
			}
		}
	}
	return nil
}

func firstShared(a, b core.Term) (core.Period, bool) {
	start := a.EffectiveFrom
	if b.EffectiveFrom.After(start) {
		start = b.EffectiveFrom
	}
	if !a.Covers(start) || !b.Covers(start) {
		return core.Period{}, false
	}
	return start, true
}

// NextVersion returns the version number a new term of the commitment receives.
func NextVersion(terms []core.Term) int {
	max := 0
	for _, t := range terms {
		if t.Version > max {
			max = t.Version
		}
	}
	return max + 1
}
