package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/amqp"
	"scadenze/internal/core"
	"scadenze/internal/rates"
	"scadenze/internal/storage"
	"scadenze/internal/storage/memory"
)

const owner = "owner-1"

type recordingPublisher struct {
	mu         sync.Mutex
	reconciled []*amqp.TermsReconciledMessage
	orphaned   []*amqp.PaymentOrphanedMessage
	err        error
}

func (p *recordingPublisher) PublishTermsReconciled(_ context.Context, msg *amqp.TermsReconciledMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconciled = append(p.reconciled, msg)
	return p.err
}

func (p *recordingPublisher) PublishPaymentOrphaned(_ context.Context, msg *amqp.PaymentOrphanedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orphaned = append(p.orphaned, msg)
	return p.err
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingInvalidator) Invalidate(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[owner]++
}

type fixture struct {
	svc       *CommitmentService
	store     *memory.Store
	publisher *recordingPublisher
	reports   *countingInvalidator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		store:     memory.New(),
		publisher: &recordingPublisher{},
		reports:   &countingInvalidator{},
	}
	f.svc = NewCommitmentService(f.store, Options{
		Publisher: f.publisher,
		Rates:     rates.Static("EUR", map[string]decimal.Decimal{"USD": decimal.RequireFromString("0.9")}),
		BaseUnit:  "EUR",
		Reports:   f.reports,
	})
	f.svc.now = func() time.Time { return time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC) }
	return f
}

func per(y int, m time.Month) core.Period { return core.Period{Year: y, Month: m} }

func eur(s string) core.Money {
	return core.Money{Amount: decimal.RequireFromString(s), Unit: "EUR"}
}

func monthlyTerm(from core.Period, until *core.Period, amount string) core.Term {
	return core.Term{
		EffectiveFrom:  from,
		EffectiveUntil: until,
		Frequency:      core.Monthly,
		DueDay:         10,
		Amount:         eur(amount),
	}
}

func (f fixture) commitment(t *testing.T, name string, flow core.FlowType) core.Commitment {
	t.Helper()
	c, err := f.svc.CreateCommitment(context.Background(), core.Commitment{OwnerID: owner, Flow: flow, Name: name})
	if err != nil {
		t.Fatalf("CreateCommitment() error = %v", err)
	}
	return c
}

func (f fixture) addTerm(t *testing.T, c core.Commitment, term core.Term) core.Term {
	t.Helper()
	got, err := f.svc.AddTerm(context.Background(), owner, c.ID, term)
	if err != nil {
		t.Fatalf("AddTerm() error = %v", err)
	}
	return got
}

func (f fixture) pay(t *testing.T, c core.Commitment, p core.Period) core.Payment {
	t.Helper()
	got, err := f.svc.RecordPayment(context.Background(), owner, c.ID, core.Payment{Period: p})
	if err != nil {
		t.Fatalf("RecordPayment(%s) error = %v", p, err)
	}
	return got
}

func TestCommitmentService_TermEditReconciles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.commitment(t, "rent", core.Expense)
	v1 := f.addTerm(t, c, monthlyTerm(per(2025, 1), nil, "50"))
	if v1.Version != 1 {
		t.Fatalf("first term version = %d, want 1", v1.Version)
	}
	for m := time.January; m <= time.April; m++ {
		f.pay(t, c, per(2025, m))
	}

	feb := per(2025, 2)
	narrowed := monthlyTerm(per(2025, 1), &feb, "50")
	if _, err := f.svc.UpdateTerm(ctx, owner, v1.ID, narrowed); err != nil {
		t.Fatalf("UpdateTerm() error = %v", err)
	}

	orphans, err := f.svc.Orphans(ctx, owner, &c.ID)
	if err != nil {
		t.Fatalf("Orphans() error = %v", err)
	}
	if len(orphans) != 2 || orphans[0].TermID != nil {
		t.Fatalf("Orphans() = %+v, want March and April without a term", orphans)
	}
	if len(f.publisher.reconciled) != 1 || len(f.publisher.orphaned) != 2 {
		t.Errorf("published %d reconciled and %d orphaned events, want 1 and 2", len(f.publisher.reconciled), len(f.publisher.orphaned))
	}
	warnings, _ := f.svc.OrphanWarnings(ctx, owner)
	if len(warnings) != 2 || !errors.Is(warnings[0], core.ErrOrphanedPayment) {
		t.Errorf("OrphanWarnings() = %v", warnings)
	}

	v2 := f.addTerm(t, c, monthlyTerm(per(2025, 3), nil, "60"))
	if v2.Version != 2 {
		t.Errorf("second term version = %d, want 2", v2.Version)
	}

	view, err := f.svc.Commitment(ctx, owner, c.ID)
	if err != nil {
		t.Fatalf("Commitment() error = %v", err)
	}
	for _, p := range view.Payments {
		want := v1.ID
		if !p.Period.Before(per(2025, 3)) {
			want = v2.ID
		}
		if p.TermID == nil || *p.TermID != want || p.Orphan != core.OrphanNone {
			t.Errorf("payment %s term = %v orphan = %q, want %s", p.Period, p.TermID, p.Orphan, want)
		}
	}

	audit, err := f.svc.AuditTrail(ctx, owner, c.ID)
	if err != nil {
		t.Fatalf("AuditTrail() error = %v", err)
	}
	reasons := map[string]int{}
	for _, e := range audit {
		reasons[e.Reason]++
	}
	if reasons[core.ReasonOrphaned] != 2 || reasons[core.ReasonCoverageRestored] != 2 {
		t.Errorf("audit reasons = %v, want 2 orphaned and 2 coverage_restored", reasons)
	}

	res, err := f.svc.Reconcile(ctx, owner, c.ID)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !res.Empty() {
		t.Errorf("second Reconcile() = %+v, want no changes", res)
	}
	if f.reports.calls[owner] == 0 {
		t.Errorf("reports were never invalidated")
	}
}

func TestCommitmentService_OverlapRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.commitment(t, "insurance", core.Expense)
	f.addTerm(t, c, monthlyTerm(per(2025, 1), nil, "30"))

	_, err := f.svc.AddTerm(ctx, owner, c.ID, monthlyTerm(per(2025, 6), nil, "35"))
	var overlap *core.OverlapError
	if !errors.As(err, &overlap) || !errors.Is(err, core.ErrInvalidTermOverlap) {
		t.Fatalf("AddTerm() error = %v, want an OverlapError", err)
	}
	if overlap.Period != per(2025, 6) {
		t.Errorf("overlap period = %s, want 2025-06", overlap.Period)
	}

	terms, _ := f.store.ListTerms(ctx, c.ID)
	if len(terms) != 1 {
		t.Errorf("rejected term was stored: %d terms", len(terms))
	}
}

func TestCommitmentService_RecordPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.commitment(t, "laptop", core.Expense)
	n, mar := 3, per(2025, 3)
	f.addTerm(t, c, core.Term{
		EffectiveFrom:  per(2025, 1),
		EffectiveUntil: &mar,
		Frequency:      core.Monthly,
		Installments:   &n,
		Divided:        true,
		DueDay:         5,
		Amount:         eur("300"),
	})

	tests := []struct {
		name    string
		payment core.Payment
		want    string
		wantErr error
	}{
		{"defaults to the installment share", core.Payment{Period: per(2025, 2)}, "100", nil},
		{"explicit amount", core.Payment{Period: per(2025, 3), Amount: eur("99.50")}, "99.5", nil},
		{"duplicate period", core.Payment{Period: per(2025, 2)}, "", core.ErrPaymentExists},
		{"outside coverage", core.Payment{Period: per(2025, 4)}, "", core.ErrPaymentOutsideCoverage},
		{"invalid period", core.Payment{Period: core.Period{Year: 2025, Month: 13}}, "", core.ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.RecordPayment(ctx, owner, c.ID, tt.payment)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("RecordPayment() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RecordPayment() error = %v", err)
			}
			if !got.Amount.Amount.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("RecordPayment() amount = %s, want %s", got.Amount.Amount, tt.want)
			}
			if got.TermID == nil {
				t.Errorf("RecordPayment() did not derive the term")
			}
		})
	}

	if _, err := f.svc.RecordPayment(ctx, "owner-2", c.ID, core.Payment{Period: per(2025, 1)}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RecordPayment() by another owner error = %v, want ErrNotFound", err)
	}
}

func TestCommitmentService_SettleAndAcceptOrphan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.commitment(t, "gym", core.Expense)
	term := f.addTerm(t, c, monthlyTerm(per(2025, 1), nil, "40"))
	p := f.pay(t, c, per(2025, 1))

	settled, err := f.svc.SettlePayment(ctx, owner, p.ID, core.NewDate(2025, 1, 9), nil)
	if err != nil {
		t.Fatalf("SettlePayment() error = %v", err)
	}
	if !settled.Settled() || !settled.Amount.Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("SettlePayment() = %+v", settled)
	}

	if _, err := f.svc.AcceptOrphan(ctx, owner, p.ID); !errors.Is(err, core.ErrNotOrphaned) {
		t.Errorf("AcceptOrphan() on a covered payment error = %v, want ErrNotOrphaned", err)
	}

	if err := f.svc.DeleteTerm(ctx, owner, term.ID); err != nil {
		t.Fatalf("DeleteTerm() error = %v", err)
	}
	accepted, err := f.svc.AcceptOrphan(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("AcceptOrphan() error = %v", err)
	}
	if accepted.Orphan != core.OrphanAccepted {
		t.Errorf("AcceptOrphan() state = %q", accepted.Orphan)
	}
	if orphans, _ := f.svc.Orphans(ctx, owner, nil); len(orphans) != 0 {
		t.Errorf("accepted payment still listed as orphan")
	}
	if res, err := f.svc.Reconcile(ctx, owner, c.ID); err != nil || !res.Empty() {
		t.Errorf("Reconcile() after accept = %+v, %v; want no changes", res, err)
	}

	_, err = f.svc.SettlePayment(ctx, owner, p.ID, core.NewDate(2025, 2, 1), nil)
	if !errors.Is(err, core.ErrPaymentOutsideCoverage) {
		t.Errorf("SettlePayment() on an uncovered period error = %v, want ErrPaymentOutsideCoverage", err)
	}
	if stored, _ := f.store.GetPayment(ctx, p.ID); stored.SettledOn == nil || stored.SettledOn.String() != "2025-01-09" {
		t.Errorf("rejected settle changed the stored payment: %+v", stored)
	}

	if err := f.svc.DeletePayment(ctx, owner, p.ID); err != nil {
		t.Fatalf("DeletePayment() error = %v", err)
	}
	if err := f.svc.DeletePayment(ctx, owner, p.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeletePayment() error = %v, want ErrNotFound", err)
	}
}

func TestCommitmentService_DividedPlanEndsAtLastInstallment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.commitment(t, "sofa", core.Expense)
	n := 3
	plan := f.addTerm(t, c, core.Term{
		EffectiveFrom: per(2025, 11),
		Frequency:     core.Monthly,
		Installments:  &n,
		Divided:       true,
		DueDay:        5,
		Amount:        eur("300"),
	})
	if plan.EffectiveUntil == nil {
		t.Fatal("AddTerm() effective until = nil, want 2026-01")
	}
	if *plan.EffectiveUntil != per(2026, 1) {
		t.Errorf("AddTerm() effective until = %s, want 2026-01", *plan.EffectiveUntil)
	}

	if _, err := f.svc.RecordPayment(ctx, owner, c.ID, core.Payment{Period: per(2026, 2)}); !errors.Is(err, core.ErrPaymentOutsideCoverage) {
		t.Errorf("RecordPayment(2026-02) error = %v, want ErrPaymentOutsideCoverage", err)
	}
	if p := f.pay(t, c, per(2026, 1)); !p.Amount.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("last cuota amount = %s, want 100", p.Amount.Amount)
	}

	next := f.addTerm(t, c, monthlyTerm(per(2026, 6), nil, "20"))
	if next.Version != plan.Version+1 {
		t.Errorf("next version = %d, want %d", next.Version, plan.Version+1)
	}
}

func TestCommitmentService_ForeignUnitUsesRateTable(t *testing.T) {
	f := newFixture(t)
	c := f.commitment(t, "hosting", core.Expense)
	term := monthlyTerm(per(2025, 1), nil, "100")
	term.Amount.Unit = "usd"

	got := f.addTerm(t, c, term)
	if got.Amount.Unit != "USD" || !got.Amount.RateToBase.Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("term amount = %+v, want USD at 0.9", got.Amount)
	}
	if !got.Amount.InBase().Equal(decimal.NewFromInt(90)) {
		t.Errorf("InBase() = %s, want 90", got.Amount.InBase())
	}
}

func TestCommitmentService_LinkAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gym := f.commitment(t, "gym", core.Expense)
	refund := f.commitment(t, "gym refund", core.Income)
	other := f.commitment(t, "other", core.Expense)

	if err := f.svc.Link(ctx, owner, gym.ID, refund.ID, uuid.New()); !errors.Is(err, core.ErrInvalidLink) {
		t.Errorf("Link() with a foreign primary error = %v", err)
	}
	if err := f.svc.Link(ctx, owner, gym.ID, refund.ID, gym.ID); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if err := f.svc.Link(ctx, owner, other.ID, refund.ID, other.ID); !errors.Is(err, core.ErrInvalidLink) {
		t.Errorf("Link() to an already linked commitment error = %v", err)
	}

	a, _ := f.store.GetCommitment(ctx, owner, gym.ID)
	b, _ := f.store.GetCommitment(ctx, owner, refund.ID)
	if !a.LinkedTo(b) || a.Link.Role != core.Primary {
		t.Fatalf("link not symmetric: %+v / %+v", a.Link, b.Link)
	}

	if err := f.svc.DeleteCommitment(ctx, owner, gym.ID); err != nil {
		t.Fatalf("DeleteCommitment() error = %v", err)
	}
	b, _ = f.store.GetCommitment(ctx, owner, refund.ID)
	if b.Link != nil {
		t.Errorf("partner kept its link after delete: %+v", b.Link)
	}

	if err := f.svc.Link(ctx, owner, other.ID, refund.ID, refund.ID); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if err := f.svc.Unlink(ctx, owner, other.ID); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	a, _ = f.store.GetCommitment(ctx, owner, other.ID)
	b, _ = f.store.GetCommitment(ctx, owner, refund.ID)
	if a.Link != nil || b.Link != nil {
		t.Errorf("Unlink() left %+v / %+v", a.Link, b.Link)
	}
}

func TestCommitmentService_UpdateCommitment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.commitment(t, "water", core.Expense)

	name, important := "  water bill ", true
	got, err := f.svc.UpdateCommitment(ctx, owner, c.ID, CommitmentPatch{Name: &name, Important: &important})
	if err != nil {
		t.Fatalf("UpdateCommitment() error = %v", err)
	}
	if got.Name != "water bill" || !got.Important || got.Flow != core.Expense {
		t.Errorf("UpdateCommitment() = %+v", got)
	}

	empty := ""
	if _, err := f.svc.UpdateCommitment(ctx, owner, c.ID, CommitmentPatch{Name: &empty}); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("UpdateCommitment() with empty name error = %v", err)
	}
}

// failingRepo makes every payment update inside a transaction fail.
type failingRepo struct {
	storage.Repository
}

type failingTx struct {
	storage.Tx
}

func (r failingRepo) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return r.Repository.WithTx(ctx, func(tx storage.Tx) error { return fn(failingTx{tx}) })
}

func (failingTx) UpdatePayment(context.Context, core.Payment) error {
	return errors.New("disk I/O error")
}

func TestCommitmentService_ReconciliationInterrupted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.commitment(t, "phone", core.Expense)
	term := f.addTerm(t, c, monthlyTerm(per(2025, 1), nil, "20"))
	f.pay(t, c, per(2025, 2))

	broken := NewCommitmentService(failingRepo{f.store}, Options{})
	err := broken.DeleteTerm(ctx, owner, term.ID)
	if !errors.Is(err, core.ErrReconciliationInterrupted) || !core.Retryable(err) {
		t.Fatalf("DeleteTerm() error = %v, want ErrReconciliationInterrupted", err)
	}

	terms, _ := f.store.ListTerms(ctx, c.ID)
	payments, _ := f.store.ListPayments(ctx, c.ID)
	if len(terms) != 1 || payments[0].TermID == nil || *payments[0].TermID != term.ID {
		t.Errorf("interrupted edit was partially applied: terms=%d payment=%+v", len(terms), payments[0])
	}
}

func TestCommitmentService_PublishFailureDoesNotFailEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publisher.err = errors.New("circuit breaker is open")
	c := f.commitment(t, "tv", core.Expense)
	term := f.addTerm(t, c, monthlyTerm(per(2025, 1), nil, "10"))
	f.pay(t, c, per(2025, 1))

	if err := f.svc.DeleteTerm(ctx, owner, term.ID); err != nil {
		t.Fatalf("DeleteTerm() error = %v", err)
	}
	if len(f.publisher.orphaned) != 1 {
		t.Errorf("orphaned events = %d, want 1", len(f.publisher.orphaned))
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	a, b := uuid.New(), uuid.New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []uuid.UUID{a, b}
			if i%2 == 0 {
				ids = []uuid.UUID{b, a, b}
			}
			unlock := k.Lock(ids...)
			counter++
			unlock()
		}(i)
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if k.size() != 0 {
		t.Errorf("size() = %d, want 0 after all unlocks", k.size())
	}
}
