package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scadenze/internal/cache"
	"scadenze/internal/core"
	"scadenze/internal/forecast"
	"scadenze/internal/metrics"
	"scadenze/internal/storage"
)

// ReportConfig sizes the report windows.
type ReportConfig struct {
	MonthsBack        int
	MonthsForward     int
	ArrearsLookback   int
	ScheduleLookahead int
}

// DefaultReportConfig matches the configuration defaults.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{MonthsBack: 8, MonthsForward: 3, ArrearsLookback: 3, ScheduleLookahead: 3}
}

// ReportService computes the read-only projections of one owner. Results are cached per
// owner and dropped by Invalidate whenever that owner's data changes.
type ReportService struct {
	repo  storage.Repository
	cache cache.Cache[any]
	cfg   ReportConfig

	mu          sync.Mutex
	generations map[string]uint64
}

func NewReportService(repo storage.Repository, c cache.Cache[any], cfg ReportConfig) *ReportService {
	return &ReportService{
		repo:        repo,
		cache:       c,
		cfg:         cfg,
		generations: make(map[string]uint64),
	}
}

// Invalidate implements Invalidator.
func (s *ReportService) Invalidate(owner string) {
	s.mu.Lock()
	s.generations[owner]++
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.DeletePrefix(ownerPrefix(owner))
	}
}

func ownerPrefix(owner string) string {
	return owner + "|"
}

func (s *ReportService) generation(owner string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[owner]
}

// Window returns the monthly totals window centered on p.
func (s *ReportService) Window(p core.Period) forecast.Window {
	return forecast.Window{Center: p, Back: s.cfg.MonthsBack, Forward: s.cfg.MonthsForward}
}

// MonthlyTotals returns the totals of the window centered on center.
func (s *ReportService) MonthlyTotals(ctx context.Context, owner string, center core.Period) ([]core.MonthTotals, error) {
	defer metrics.ObserveReport("monthly", time.Now())
	key := cacheKey(owner, "monthly", center.String())
	return cached(ctx, s, owner, key, func(a *forecast.Aggregator) []core.MonthTotals {
		return a.MonthlyTotals(s.Window(center))
	})
}

// ArrearsBacklog returns the overdue periods of the lookback ending at today's month,
// marking those the monthly totals window centered on today already counts.
func (s *ReportService) ArrearsBacklog(ctx context.Context, owner string, today core.Date) (core.ArrearsBacklog, error) {
	defer metrics.ObserveReport("arrears", time.Now())
	key := cacheKey(owner, "arrears", today.String())
	return cached(ctx, s, owner, key, func(a *forecast.Aggregator) core.ArrearsBacklog {
		counted := a.CountedKeys(s.Window(today.Period()))
		return a.ArrearsBacklog(today, s.cfg.ArrearsLookback, counted)
	})
}

// Upcoming returns the unsettled expenses of period p as seen on today.
func (s *ReportService) Upcoming(ctx context.Context, owner string, p core.Period, today core.Date) ([]core.UpcomingItem, error) {
	defer metrics.ObserveReport("upcoming", time.Now())
	key := cacheKey(owner, "upcoming", p.String(), today.String())
	return cached(ctx, s, owner, key, func(a *forecast.Aggregator) []core.UpcomingItem {
		return a.Upcoming(p, today)
	})
}

// Schedule lists the installments of one commitment up to the configured lookahead past
// today's month.
func (s *ReportService) Schedule(ctx context.Context, owner string, commitmentID uuid.UUID, today core.Date) ([]core.ScheduleRow, error) {
	defer metrics.ObserveReport("schedule", time.Now())
	if _, err := s.repo.GetCommitment(ctx, owner, commitmentID); err != nil {
		return nil, fmt.Errorf("get commitment: %w", err)
	}
	horizon := today.Period().AddMonths(s.cfg.ScheduleLookahead)
	key := cacheKey(owner, "schedule", commitmentID.String(), today.String())
	return cached(ctx, s, owner, key, func(a *forecast.Aggregator) []core.ScheduleRow {
		return a.Schedule(commitmentID, today, horizon)
	})
}

func cacheKey(owner string, parts ...string) string {
	return ownerPrefix(owner) + strings.Join(parts, "|")
}

// cached returns the cached value under key or computes it from a fresh load. A result
// computed across an Invalidate of the same owner is returned but not stored.
func cached[T any](ctx context.Context, s *ReportService, owner, key string, compute func(*forecast.Aggregator) T) (T, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if out, ok := v.(T); ok {
				metrics.ReportCacheLookups.WithLabelValues("hit").Inc()
				return out, nil
			}
		}
		metrics.ReportCacheLookups.WithLabelValues("miss").Inc()
	}

	gen := s.generation(owner)
	in, err := s.load(ctx, owner)
	if err != nil {
		var zero T
		return zero, err
	}
	out := compute(forecast.New(in))
	if s.cache != nil && s.generation(owner) == gen {
		s.cache.Set(key, out)
	}
	return out, nil
}

// load reads the owner's commitments, terms and payments concurrently from one snapshot,
// so a report never mixes the terms of one reconciliation with the payments of another.
func (s *ReportService) load(ctx context.Context, owner string) (forecast.Input, error) {
	var in forecast.Input
	err := s.repo.Snapshot(ctx, func(r storage.Reader) error {
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			list, err := r.ListCommitments(ctx, owner)
			if err != nil {
				return fmt.Errorf("list commitments: %w", err)
			}
			in.Commitments = list
			return nil
		})
		g.Go(func() error {
			list, err := r.ListTermsByOwner(ctx, owner)
			if err != nil {
				return fmt.Errorf("list terms: %w", err)
			}
			in.Terms = list
			return nil
		})
		g.Go(func() error {
			list, err := r.ListPaymentsByOwner(ctx, owner)
			if err != nil {
				return fmt.Errorf("list payments: %w", err)
			}
			in.Payments = list
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return forecast.Input{}, fmt.Errorf("load reports for %s: %w", owner, err)
	}
	return in, nil
}
