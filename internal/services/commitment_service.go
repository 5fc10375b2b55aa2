package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/amqp"
	"scadenze/internal/core"
	applog "scadenze/internal/log"
	"scadenze/internal/metrics"
	"scadenze/internal/reconcile"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

// EventPublisher receives domain events after their transaction committed. *amqp.Client
// implements it.
type EventPublisher interface {
	PublishTermsReconciled(ctx context.Context, msg *amqp.TermsReconciledMessage) error
	PublishPaymentOrphaned(ctx context.Context, msg *amqp.PaymentOrphanedMessage) error
}

// Invalidator drops whatever an owner's cached projections hold.
type Invalidator interface {
	Invalidate(owner string)
}

// Options carries the optional collaborators of CommitmentService.
type Options struct {
	Publisher EventPublisher
	Rates     core.RateTable
	BaseUnit  string
	Reports   Invalidator
	Logger    *applog.Logger
}

// CommitmentService owns every mutation of commitments, terms and payments. Term edits run
// in one transaction with the reconciliation they trigger, under the commitment's lock.
type CommitmentService struct {
	repo      storage.Repository
	locks     *keyedMutex
	publisher EventPublisher
	rates     core.RateTable
	baseUnit  string
	reports   Invalidator
	logger    *applog.Logger
	events    *applog.StructuredLogger
	now       func() time.Time
}

func NewCommitmentService(repo storage.Repository, opts Options) *CommitmentService {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentCommitment)
	}
	if opts.BaseUnit == "" {
		opts.BaseUnit = "EUR"
	}
	return &CommitmentService{
		repo:      repo,
		locks:     newKeyedMutex(),
		publisher: opts.Publisher,
		rates:     opts.Rates,
		baseUnit:  opts.BaseUnit,
		reports:   opts.Reports,
		logger:    logger.WithComponent(applog.ComponentCommitment),
		events:    applog.NewStructuredLogger(logger),
		now:       time.Now,
	}
}

// CommitmentView is a commitment together with its terms and payments.
type CommitmentView struct {
	Commitment core.Commitment
	Terms      []core.Term
	Payments   []core.Payment
}

// CommitmentPatch lists the editable commitment attributes; nil fields are left unchanged.
type CommitmentPatch struct {
	Name        *string
	CategoryRef *string
	Important   *bool
}

// ---- reads ----

func (s *CommitmentService) Commitments(ctx context.Context, owner string) ([]core.Commitment, error) {
	list, err := s.repo.ListCommitments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	return list, nil
}

func (s *CommitmentService) Commitment(ctx context.Context, owner string, id uuid.UUID) (CommitmentView, error) {
	c, err := s.repo.GetCommitment(ctx, owner, id)
	if err != nil {
		return CommitmentView{}, fmt.Errorf("get commitment: %w", err)
	}
	terms, err := s.repo.ListTerms(ctx, id)
	if err != nil {
		return CommitmentView{}, fmt.Errorf("list terms: %w", err)
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return CommitmentView{}, fmt.Errorf("list payments: %w", err)
	}
	return CommitmentView{Commitment: c, Terms: terms, Payments: payments}, nil
}

// Orphans returns the payments no term covers any more. With a nil commitment it lists the
// orphans of every commitment of owner.
func (s *CommitmentService) Orphans(ctx context.Context, owner string, commitmentID *uuid.UUID) ([]core.Payment, error) {
	if commitmentID == nil {
		list, err := s.repo.ListOrphans(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("list orphans: %w", err)
		}
		return list, nil
	}
	if _, err := s.repo.GetCommitment(ctx, owner, *commitmentID); err != nil {
		return nil, fmt.Errorf("get commitment: %w", err)
	}
	payments, err := s.repo.ListPayments(ctx, *commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	var out []core.Payment
	for _, p := range payments {
		if p.Orphaned() {
			out = append(out, p)
		}
	}
	return out, nil
}

// OrphanWarnings reports each orphaned payment of owner as an error wrapping
// core.ErrOrphanedPayment.
func (s *CommitmentService) OrphanWarnings(ctx context.Context, owner string) ([]error, error) {
	orphans, err := s.Orphans(ctx, owner, nil)
	if err != nil {
		return nil, err
	}
	out := make([]error, 0, len(orphans))
	for _, p := range orphans {
		out = append(out, fmt.Errorf("payment %s for %s: %w", p.ID, p.Period, core.ErrOrphanedPayment))
	}
	return out, nil
}

func (s *CommitmentService) AuditTrail(ctx context.Context, owner string, commitmentID uuid.UUID) ([]core.AuditEntry, error) {
	if _, err := s.repo.GetCommitment(ctx, owner, commitmentID); err != nil {
		return nil, fmt.Errorf("get commitment: %w", err)
	}
	list, err := s.repo.ListAudit(ctx, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return list, nil
}

// ---- commitments ----

// CreateCommitment stores a new, unlinked commitment.
func (s *CommitmentService) CreateCommitment(ctx context.Context, c core.Commitment) (core.Commitment, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Name = strings.TrimSpace(c.Name)
	c.Link = nil
	c.CreatedAt = s.now().UTC()
	if err := c.Validate(); err != nil {
		return core.Commitment{}, fmt.Errorf("validate commitment: %w", err)
	}

	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertCommitment(ctx, c)
	})
	if err != nil {
		return core.Commitment{}, fmt.Errorf("create commitment: %w", err)
	}

	s.logger.InfoContext(ctx, "Commitment created",
		applog.FieldOwner, c.OwnerID,
		applog.FieldCommitmentID, c.ID,
		"flow", c.Flow)
	s.invalidate(c.OwnerID)
	return c, nil
}

func (s *CommitmentService) UpdateCommitment(ctx context.Context, owner string, id uuid.UUID, patch CommitmentPatch) (core.Commitment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var out core.Commitment
	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetCommitment(ctx, owner, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.CategoryRef != nil {
			c.CategoryRef = *patch.CategoryRef
		}
		if patch.Important != nil {
			c.Important = *patch.Important
		}
		if err := c.Validate(); err != nil {
			return err
		}
		out = c
		return tx.UpdateCommitment(ctx, c)
	})
	if err != nil {
		return core.Commitment{}, fmt.Errorf("update commitment %s: %w", id, err)
	}
	s.invalidate(owner)
	return out, nil
}

// DeleteCommitment removes a commitment with its terms and payments and clears the link on
// its partner.
func (s *CommitmentService) DeleteCommitment(ctx context.Context, owner string, id uuid.UUID) error {
	c, err := s.repo.GetCommitment(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("delete commitment %s: %w", id, err)
	}
	ids := []uuid.UUID{id}
	if c.Link != nil {
		ids = append(ids, c.Link.CommitmentID)
	}
	unlock := s.locks.Lock(ids...)
	defer unlock()

	err = s.repo.WithTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetCommitment(ctx, owner, id)
		if err != nil {
			return err
		}
		if c.Link != nil {
			if err := clearLink(ctx, tx, owner, c.Link.CommitmentID, id); err != nil {
				return err
			}
		}
		return tx.DeleteCommitment(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete commitment %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Commitment deleted",
		applog.FieldOwner, owner,
		applog.FieldCommitmentID, id)
	s.invalidate(owner)
	return nil
}

// clearLink removes partnerID's link if it still points at id.
func clearLink(ctx context.Context, tx storage.Tx, owner string, partnerID, id uuid.UUID) error {
	partner, err := tx.GetCommitment(ctx, owner, partnerID)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if partner.Link == nil || partner.Link.CommitmentID != id {
		return nil
	}
	partner.Link = nil
	return tx.UpdateCommitment(ctx, partner)
}

// Link pairs a and b for netting; primary names the side holding the primary role.
// Relinking the same pair only moves the primary role.
func (s *CommitmentService) Link(ctx context.Context, owner string, a, b, primary uuid.UUID) error {
	if a == b {
		return fmt.Errorf("%w: commitment cannot link to itself", core.ErrInvalidLink)
	}
	if primary != a && primary != b {
		return fmt.Errorf("%w: primary must be one of the linked commitments", core.ErrInvalidLink)
	}
	unlock := s.locks.Lock(a, b)
	defer unlock()

	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		ca, err := tx.GetCommitment(ctx, owner, a)
		if err != nil {
			return err
		}
		cb, err := tx.GetCommitment(ctx, owner, b)
		if err != nil {
			return err
		}
		if ca.Link != nil && ca.Link.CommitmentID != b {
			return fmt.Errorf("%w: %s is already linked to %s", core.ErrInvalidLink, a, ca.Link.CommitmentID)
		}
		if cb.Link != nil && cb.Link.CommitmentID != a {
			return fmt.Errorf("%w: %s is already linked to %s", core.ErrInvalidLink, b, cb.Link.CommitmentID)
		}

		roleA := core.Secondary
		if primary == a {
			roleA = core.Primary
		}
		ca.Link = &core.Link{CommitmentID: b, Role: roleA}
		cb.Link = &core.Link{CommitmentID: a, Role: roleA.Opposite()}
		if err := tx.UpdateCommitment(ctx, ca); err != nil {
			return err
		}
		return tx.UpdateCommitment(ctx, cb)
	})
	if err != nil {
		return fmt.Errorf("link %s and %s: %w", a, b, err)
	}

	s.logger.InfoContext(ctx, "Commitments linked",
		applog.FieldOwner, owner,
		"primary", primary,
		"commitments", []string{a.String(), b.String()})
	s.invalidate(owner)
	return nil
}

// Unlink dissolves the pair id belongs to. Unlinking an unlinked commitment is a no-op.
func (s *CommitmentService) Unlink(ctx context.Context, owner string, id uuid.UUID) error {
	c, err := s.repo.GetCommitment(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("unlink %s: %w", id, err)
	}
	if c.Link == nil {
		return nil
	}
	unlock := s.locks.Lock(id, c.Link.CommitmentID)
	defer unlock()

	err = s.repo.WithTx(ctx, func(tx storage.Tx) error {
		c, err := tx.GetCommitment(ctx, owner, id)
		if err != nil || c.Link == nil {
			return err
		}
		if err := clearLink(ctx, tx, owner, c.Link.CommitmentID, id); err != nil {
			return err
		}
		c.Link = nil
		return tx.UpdateCommitment(ctx, c)
	})
	if err != nil {
		return fmt.Errorf("unlink %s: %w", id, err)
	}
	s.invalidate(owner)
	return nil
}

// ---- terms ----

// AddTerm stores t as the next version of the commitment's terms and reconciles its
// payments in the same transaction.
func (s *CommitmentService) AddTerm(ctx context.Context, owner string, commitmentID uuid.UUID, t core.Term) (core.Term, error) {
	unlock := s.locks.Lock(commitmentID)
	defer unlock()

	var (
		out core.Term
		res reconcile.Result
	)
	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetCommitment(ctx, owner, commitmentID); err != nil {
			return err
		}
		terms, err := tx.ListTerms(ctx, commitmentID)
		if err != nil {
			return err
		}

		t.ID = uuid.New()
		t.CommitmentID = commitmentID
		t.Version = schedule.NextVersion(terms)
		t.Amount = s.money(t.Amount, t.EffectiveFrom)
		t = core.NormalizeTerm(t, nil)
		if err := t.Validate(); err != nil {
			return err
		}
		if err := schedule.CheckOverlap(append(terms, t)); err != nil {
			return err
		}
		if err := tx.InsertTerm(ctx, t); err != nil {
			return err
		}
		out = t

		res, err = s.reconcileTx(ctx, tx, commitmentID)
		return err
	})
	if err != nil {
		return core.Term{}, s.fail(ctx, "add term", owner, commitmentID, err)
	}

	s.logger.InfoContext(ctx, "Term added",
		applog.NewFields().WithCommitment(owner, commitmentID.String()).WithTerm(out.ID.String(), out.Version).ToSlice()...)
	s.afterReconcile(ctx, owner, commitmentID, res)
	return out, nil
}

// UpdateTerm replaces the editable fields of a stored term, keeping its identity and
// version, then reconciles.
func (s *CommitmentService) UpdateTerm(ctx context.Context, owner string, termID uuid.UUID, t core.Term) (core.Term, error) {
	stored, err := s.repo.GetTerm(ctx, termID)
	if err != nil {
		return core.Term{}, fmt.Errorf("update term %s: %w", termID, err)
	}
	commitmentID := stored.CommitmentID
	unlock := s.locks.Lock(commitmentID)
	defer unlock()

	var (
		out core.Term
		res reconcile.Result
	)
	err = s.repo.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetCommitment(ctx, owner, commitmentID); err != nil {
			return err
		}
		prev, err := tx.GetTerm(ctx, termID)
		if err != nil {
			return err
		}
		terms, err := tx.ListTerms(ctx, commitmentID)
		if err != nil {
			return err
		}

		t.ID = prev.ID
		t.CommitmentID = prev.CommitmentID
		t.Version = prev.Version
		t.Amount = s.money(t.Amount, t.EffectiveFrom)
		t = core.NormalizeTerm(t, &prev)
		if err := t.Validate(); err != nil {
			return err
		}
		if err := schedule.CheckOverlap(replaceTerm(terms, t)); err != nil {
			return err
		}
		if err := tx.UpdateTerm(ctx, t); err != nil {
			return err
		}
		out = t

		res, err = s.reconcileTx(ctx, tx, commitmentID)
		return err
	})
	if err != nil {
		return core.Term{}, s.fail(ctx, "update term", owner, commitmentID, err)
	}

	s.logger.InfoContext(ctx, "Term updated",
		applog.NewFields().WithCommitment(owner, commitmentID.String()).WithTerm(out.ID.String(), out.Version).ToSlice()...)
	s.afterReconcile(ctx, owner, commitmentID, res)
	return out, nil
}

func replaceTerm(terms []core.Term, t core.Term) []core.Term {
	out := make([]core.Term, 0, len(terms))
	for _, existing := range terms {
		if existing.ID == t.ID {
			existing = t
		}
		out = append(out, existing)
	}
	return out
}

// DeleteTerm removes a term; payments it governed become orphaned unless another term
// covers them.
func (s *CommitmentService) DeleteTerm(ctx context.Context, owner string, termID uuid.UUID) error {
	stored, err := s.repo.GetTerm(ctx, termID)
	if err != nil {
		return fmt.Errorf("delete term %s: %w", termID, err)
	}
	commitmentID := stored.CommitmentID
	unlock := s.locks.Lock(commitmentID)
	defer unlock()

	var res reconcile.Result
	err = s.repo.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetCommitment(ctx, owner, commitmentID); err != nil {
			return err
		}
		if err := tx.DeleteTerm(ctx, termID); err != nil {
			return err
		}
		res, err = s.reconcileTx(ctx, tx, commitmentID)
		return err
	})
	if err != nil {
		return s.fail(ctx, "delete term", owner, commitmentID, err)
	}

	s.logger.InfoContext(ctx, "Term deleted",
		applog.NewFields().WithCommitment(owner, commitmentID.String()).WithTerm(termID.String(), stored.Version).ToSlice()...)
	s.afterReconcile(ctx, owner, commitmentID, res)
	return nil
}

// ---- payments ----

// RecordPayment records the payment of one period. The period must be covered by a term;
// a zero amount defaults to the period's scheduled amount.
func (s *CommitmentService) RecordPayment(ctx context.Context, owner string, commitmentID uuid.UUID, p core.Payment) (core.Payment, error) {
	if !p.Period.Valid() {
		return core.Payment{}, fmt.Errorf("record payment: %w: %v", core.ErrInvalidPeriod, p.Period)
	}
	unlock := s.locks.Lock(commitmentID)
	defer unlock()

	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetCommitment(ctx, owner, commitmentID); err != nil {
			return err
		}
		terms, err := tx.ListTerms(ctx, commitmentID)
		if err != nil {
			return err
		}
		t, ok := schedule.Resolve(terms, p.Period)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrPaymentOutsideCoverage, p.Period)
		}

		termID := t.ID
		p.ID = uuid.New()
		p.CommitmentID = commitmentID
		p.TermID = &termID
		p.Orphan = core.OrphanNone
		p.CreatedAt = s.now().UTC()
		if p.Amount.Amount.IsZero() {
			p.Amount = s.scheduledAmount(t, p.Period)
		}
		p.Amount = s.money(p.Amount, p.Period)
		if err := p.Validate(); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, p)
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("record payment for %s: %w", p.Period, err)
	}

	s.logger.InfoContext(ctx, "Payment recorded",
		applog.NewFields().WithCommitment(owner, commitmentID.String()).WithPayment(p.ID.String(), p.Period.String()).ToSlice()...)
	s.invalidate(owner)
	return p, nil
}

// scheduledAmount is what t expects for p: the installment share for a divided plan, the
// term amount otherwise.
func (s *CommitmentService) scheduledAmount(t core.Term, p core.Period) core.Money {
	if t.Shape() == core.ShapeDividedInstallmentPlan {
		if inst, ok := schedule.Entry(t, p); ok {
			return core.NewMoney(inst.Amount, s.baseUnit)
		}
	}
	return t.Amount
}

// SettlePayment marks a recorded payment settled on the given day, optionally correcting
// its amount.
func (s *CommitmentService) SettlePayment(ctx context.Context, owner string, paymentID uuid.UUID, on core.Date, amount *core.Money) (core.Payment, error) {
	if err := on.Validate(); err != nil {
		return core.Payment{}, fmt.Errorf("settle payment: %w", err)
	}
	var out core.Payment
	err := s.withPayment(ctx, owner, paymentID, func(tx storage.Tx, p core.Payment) error {
		terms, err := tx.ListTerms(ctx, p.CommitmentID)
		if err != nil {
			return err
		}
		if _, ok := schedule.Resolve(terms, p.Period); !ok {
			return fmt.Errorf("%w: %s", core.ErrPaymentOutsideCoverage, p.Period)
		}
		p.SettledOn = &on
		if amount != nil {
			p.Amount = s.money(*amount, p.Period)
		}
		if err := p.Validate(); err != nil {
			return err
		}
		out = p
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("settle payment %s: %w", paymentID, err)
	}
	return out, nil
}

func (s *CommitmentService) DeletePayment(ctx context.Context, owner string, paymentID uuid.UUID) error {
	err := s.withPayment(ctx, owner, paymentID, func(tx storage.Tx, p core.Payment) error {
		return tx.DeletePayment(ctx, p.ID)
	})
	if err != nil {
		return fmt.Errorf("delete payment %s: %w", paymentID, err)
	}
	return nil
}

// AcceptOrphan keeps an orphaned payment as historical record; it stops being reported as
// orphaned and keeps counting towards settled totals only through its commitment.
func (s *CommitmentService) AcceptOrphan(ctx context.Context, owner string, paymentID uuid.UUID) (core.Payment, error) {
	var out core.Payment
	err := s.withPayment(ctx, owner, paymentID, func(tx storage.Tx, p core.Payment) error {
		if !p.Orphaned() {
			return core.ErrNotOrphaned
		}
		p.Orphan = core.OrphanAccepted
		out = p
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("accept orphan %s: %w", paymentID, err)
	}
	return out, nil
}

// withPayment runs fn on a payment of owner under its commitment's lock.
func (s *CommitmentService) withPayment(ctx context.Context, owner string, paymentID uuid.UUID, fn func(tx storage.Tx, p core.Payment) error) error {
	stored, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(stored.CommitmentID)
	defer unlock()

	err = s.repo.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetCommitment(ctx, owner, stored.CommitmentID); err != nil {
			return err
		}
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		return fn(tx, p)
	})
	if err != nil {
		return err
	}
	s.invalidate(owner)
	return nil
}

// ---- reconciliation ----

// Reconcile re-derives the governing term of every payment of the commitment. Running it
// on a consistent commitment changes nothing.
func (s *CommitmentService) Reconcile(ctx context.Context, owner string, commitmentID uuid.UUID) (reconcile.Result, error) {
	unlock := s.locks.Lock(commitmentID)
	defer unlock()

	var res reconcile.Result
	err := s.repo.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetCommitment(ctx, owner, commitmentID); err != nil {
			return err
		}
		var err error
		res, err = s.reconcileTx(ctx, tx, commitmentID)
		return err
	})
	if err != nil {
		return reconcile.Result{}, s.fail(ctx, "reconcile", owner, commitmentID, err)
	}
	s.afterReconcile(ctx, owner, commitmentID, res)
	return res, nil
}

// ReconcileAll reconciles every commitment of owner, one transaction each.
func (s *CommitmentService) ReconcileAll(ctx context.Context, owner string) (map[uuid.UUID]reconcile.Result, error) {
	list, err := s.repo.ListCommitments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	out := make(map[uuid.UUID]reconcile.Result, len(list))
	for _, c := range list {
		res, err := s.Reconcile(ctx, owner, c.ID)
		if err != nil {
			return out, err
		}
		out[c.ID] = res
	}
	return out, nil
}

// reconcileTx plans and writes a reconciliation pass inside tx. Any failure is reported as
// core.ErrReconciliationInterrupted so the caller can retry the whole edit.
func (s *CommitmentService) reconcileTx(ctx context.Context, tx storage.Tx, commitmentID uuid.UUID) (reconcile.Result, error) {
	terms, err := tx.ListTerms(ctx, commitmentID)
	if err != nil {
		return reconcile.Result{}, interrupted("list terms", err)
	}
	payments, err := tx.ListPayments(ctx, commitmentID)
	if err != nil {
		return reconcile.Result{}, interrupted("list payments", err)
	}

	res := reconcile.Plan(terms, payments, s.now().UTC())
	for _, p := range res.Updated {
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return reconcile.Result{}, interrupted("update payment "+p.ID.String(), err)
		}
	}
	for _, e := range res.Audit {
		if err := tx.InsertAudit(ctx, e); err != nil {
			return reconcile.Result{}, interrupted("write audit", err)
		}
	}
	return res, nil
}

func interrupted(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrReconciliationInterrupted, step, err)
}

// fail records a failed term edit or reconciliation and wraps err.
func (s *CommitmentService) fail(ctx context.Context, op, owner string, commitmentID uuid.UUID, err error) error {
	if errors.Is(err, core.ErrReconciliationInterrupted) {
		metrics.RecordReconcile(0, 0, err)
		s.events.LogError(ctx, "Reconciliation interrupted", err, applog.ComponentReconcile, applog.OpReconcile,
			applog.NewFields().WithCommitment(owner, commitmentID.String()))
	}
	return fmt.Errorf("%s for commitment %s: %w", op, commitmentID, err)
}

// afterReconcile runs once the reconciling transaction committed.
func (s *CommitmentService) afterReconcile(ctx context.Context, owner string, commitmentID uuid.UUID, res reconcile.Result) {
	reassigned := len(res.Audit) - countAudit(res.Audit, core.ReasonOrphaned)
	orphaned := len(res.Orphaned)
	metrics.RecordReconcile(reassigned, orphaned, nil)
	s.events.LogReconciled(ctx, owner, commitmentID.String(), reassigned, orphaned)
	s.invalidate(owner)

	if s.publisher == nil || res.Empty() {
		return
	}
	msg := amqp.NewTermsReconciledMessage(owner, commitmentID.String(), reassigned, orphaned)
	s.publish(ctx, amqp.RoutingTermsReconciled, s.publisher.PublishTermsReconciled(ctx, msg))
	for _, p := range res.Orphaned {
		msg := amqp.NewPaymentOrphanedMessage(owner, commitmentID.String(), p.ID.String(), p.Period.String())
		s.publish(ctx, amqp.RoutingPaymentOrphaned, s.publisher.PublishPaymentOrphaned(ctx, msg))
	}
}

func (s *CommitmentService) publish(ctx context.Context, event string, err error) {
	metrics.EventsPublished.WithLabelValues(event, metrics.Result(err)).Inc()
	if err != nil {
		// The write already committed; the event is lost but the data is not.
		s.logger.ErrorContext(ctx, "Failed to publish event", "event", event, applog.FieldError, err)
	}
}

func countAudit(entries []core.AuditEntry, reason string) int {
	n := 0
	for _, e := range entries {
		if e.Reason == reason {
			n++
		}
	}
	return n
}

func (s *CommitmentService) invalidate(owner string) {
	if s.reports != nil {
		s.reports.Invalidate(owner)
	}
}

// money fills the unit and conversion rate of m, as of the start of period p.
func (s *CommitmentService) money(m core.Money, p core.Period) core.Money {
	m.Unit = strings.ToUpper(strings.TrimSpace(m.Unit))
	if m.Unit == "" {
		m.Unit = s.baseUnit
	}
	if m.Unit == s.baseUnit && m.RateToBase.IsZero() {
		m.RateToBase = decimal.NewFromInt(1)
	}
	return m.WithRate(s.rates, p.Start().Time)
}
