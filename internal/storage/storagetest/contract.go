// Package storagetest holds the behavior every storage.Repository must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/storage"
)

const owner = "owner-1"

func commitment(name string) core.Commitment {
	return core.Commitment{
		ID:        uuid.New(),
		OwnerID:   owner,
		Flow:      core.Expense,
		Name:      name,
		CreatedAt: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func term(c core.Commitment, version int, from core.Period, until *core.Period) core.Term {
	return core.Term{
		ID:             uuid.New(),
		CommitmentID:   c.ID,
		Version:        version,
		EffectiveFrom:  from,
		EffectiveUntil: until,
		Frequency:      core.Monthly,
		DueDay:         10,
		Amount:         core.NewMoney(decimal.RequireFromString("49.90"), "EUR"),
		Estimation:     core.EstimateFixed,
	}
}

func payment(c core.Commitment, p core.Period) core.Payment {
	return core.Payment{
		ID:           uuid.New(),
		CommitmentID: c.ID,
		Period:       p,
		Amount:       core.NewMoney(decimal.RequireFromString("49.90"), "EUR"),
		CreatedAt:    time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func per(y int, m time.Month) core.Period { return core.Period{Year: y, Month: m} }

func mustTx(t *testing.T, repo storage.Repository, fn func(tx storage.Tx) error) {
	t.Helper()
	if err := repo.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}

// Run exercises repo; newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("round trip", func(t *testing.T) { testRoundTrip(t, newRepo(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newRepo(t)) })
	t.Run("overlap rejected", func(t *testing.T) { testOverlap(t, newRepo(t)) })
	t.Run("one payment per period", func(t *testing.T) { testUniquePayment(t, newRepo(t)) })
	t.Run("cascade delete", func(t *testing.T) { testCascade(t, newRepo(t)) })
	t.Run("owner scoping", func(t *testing.T) { testOwnerScoping(t, newRepo(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, newRepo(t)) })
	t.Run("snapshot", func(t *testing.T) { testSnapshot(t, newRepo(t)) })
}

func testSnapshot(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	c := commitment("rent")
	tm := term(c, 1, per(2025, 1), nil)
	p := payment(c, per(2025, 2))
	mustTx(t, repo, func(tx storage.Tx) error {
		if err := tx.InsertCommitment(ctx, c); err != nil {
			return err
		}
		if err := tx.InsertTerm(ctx, tm); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, p)
	})

	err := repo.Snapshot(ctx, func(r storage.Reader) error {
		list, err := r.ListCommitments(ctx, owner)
		if err != nil {
			return err
		}
		terms, err := r.ListTermsByOwner(ctx, owner)
		if err != nil {
			return err
		}
		payments, err := r.ListPaymentsByOwner(ctx, owner)
		if err != nil {
			return err
		}
		if len(list) != 1 || len(terms) != 1 || len(payments) != 1 {
			t.Errorf("Snapshot() saw %d commitments, %d terms, %d payments; want 1 each", len(list), len(terms), len(payments))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	errStop := errors.New("stop")
	if err := repo.Snapshot(ctx, func(storage.Reader) error { return errStop }); !errors.Is(err, errStop) {
		t.Errorf("Snapshot() error = %v, want %v", err, errStop)
	}

	// The store stays writable after a snapshot ends.
	mustTx(t, repo, func(tx storage.Tx) error { return tx.DeletePayment(ctx, p.ID) })
}

func testRoundTrip(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	c := commitment("gym")
	partner := commitment("gym refund")
	partner.Flow = core.Income
	c.Link = &core.Link{CommitmentID: partner.ID, Role: core.Primary}
	partner.Link = &core.Link{CommitmentID: c.ID, Role: core.Secondary}

	n := 12
	tm := term(c, 1, per(2025, 1), &core.Period{Year: 2025, Month: time.December})
	tm.Installments = &n
	p := payment(c, per(2025, 3))
	settled := core.NewDate(2025, 3, 9)
	p.SettledOn = &settled
	p.TermID = &tm.ID
	p.Note = "paid at the desk"

	mustTx(t, repo, func(tx storage.Tx) error {
		if err := tx.InsertCommitment(ctx, c); err != nil {
			return err
		}
		if err := tx.InsertCommitment(ctx, partner); err != nil {
			return err
		}
		if err := tx.InsertTerm(ctx, tm); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, core.AuditEntry{
			ID:           uuid.New(),
			CommitmentID: c.ID,
			PaymentID:    p.ID,
			OldPeriod:    p.Period,
			NewPeriod:    p.Period,
			NewTermID:    &tm.ID,
			Reason:       core.ReasonCoverageRestored,
			At:           time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		})
	})

	gotC, err := repo.GetCommitment(ctx, owner, c.ID)
	if err != nil {
		t.Fatalf("GetCommitment() error = %v", err)
	}
	if gotC.Name != "gym" || gotC.Link == nil || gotC.Link.CommitmentID != partner.ID || gotC.Link.Role != core.Primary {
		t.Errorf("GetCommitment() = %+v", gotC)
	}

	terms, err := repo.ListTerms(ctx, c.ID)
	if err != nil || len(terms) != 1 {
		t.Fatalf("ListTerms() = %v, %v", terms, err)
	}
	got := terms[0]
	if got.EffectiveFrom != tm.EffectiveFrom || got.EffectiveUntil == nil || *got.EffectiveUntil != *tm.EffectiveUntil {
		t.Errorf("term range = %v..%v", got.EffectiveFrom, got.EffectiveUntil)
	}
	if got.InstallmentCount() != 12 || !got.Amount.Amount.Equal(tm.Amount.Amount) || got.Amount.Unit != "EUR" {
		t.Errorf("term = %+v", got)
	}

	payments, err := repo.ListPaymentsByOwner(ctx, owner)
	if err != nil || len(payments) != 1 {
		t.Fatalf("ListPaymentsByOwner() = %v, %v", payments, err)
	}
	gotP := payments[0]
	if !gotP.Settled() || !gotP.SettledOn.Equal(settled.Time) || gotP.TermID == nil || *gotP.TermID != tm.ID {
		t.Errorf("payment = %+v", gotP)
	}
	if gotP.Note != p.Note || gotP.Period != p.Period {
		t.Errorf("payment = %+v", gotP)
	}

	audit, err := repo.ListAudit(ctx, c.ID)
	if err != nil || len(audit) != 1 || audit[0].Reason != core.ReasonCoverageRestored {
		t.Errorf("ListAudit() = %v, %v", audit, err)
	}
}

func testRollback(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	c := commitment("phone")
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertCommitment(ctx, c); err != nil {
			return err
		}
		if _, err := tx.GetCommitment(ctx, owner, c.ID); err != nil {
			t.Errorf("write not visible inside its transaction: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	if _, err := repo.GetCommitment(ctx, owner, c.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("rolled back commitment is visible: %v", err)
	}
}

func testOverlap(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	c := commitment("insurance")
	v1 := term(c, 1, per(2025, 1), &core.Period{Year: 2025, Month: time.June})
	mustTx(t, repo, func(tx storage.Tx) error {
		if err := tx.InsertCommitment(ctx, c); err != nil {
			return err
		}
		return tx.InsertTerm(ctx, v1)
	})

	err := repo.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertTerm(ctx, term(c, 2, per(2025, 6), nil))
	})
	if !errors.Is(err, core.ErrInvalidTermOverlap) {
		t.Fatalf("overlapping insert error = %v, want ErrInvalidTermOverlap", err)
	}

	v2 := term(c, 2, per(2025, 9), nil)
	mustTx(t, repo, func(tx storage.Tx) error { return tx.InsertTerm(ctx, v2) })

	err = repo.WithTx(ctx, func(tx storage.Tx) error {
		v1.EffectiveUntil = nil
		return tx.UpdateTerm(ctx, v1)
	})
	if !errors.Is(err, core.ErrInvalidTermOverlap) {
		t.Errorf("overlapping update error = %v, want ErrInvalidTermOverlap", err)
	}
}

func testUniquePayment(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	c := commitment("water")
	mustTx(t, repo, func(tx storage.Tx) error {
		if err := tx.InsertCommitment(ctx, c); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, payment(c, per(2025, 2)))
	})
	err := repo.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertPayment(ctx, payment(c, per(2025, 2)))
	})
	if !errors.Is(err, core.ErrPaymentExists) {
		t.Errorf("duplicate payment error = %v, want ErrPaymentExists", err)
	}
}

func testCascade(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	c := commitment("car")
	mustTx(t, repo, func(tx storage.Tx) error {
		if err := tx.InsertCommitment(ctx, c); err != nil {
			return err
		}
		if err := tx.InsertTerm(ctx, term(c, 1, per(2025, 1), nil)); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, payment(c, per(2025, 1)))
	})
	mustTx(t, repo, func(tx storage.Tx) error { return tx.DeleteCommitment(ctx, c.ID) })

	terms, _ := repo.ListTerms(ctx, c.ID)
	payments, _ := repo.ListPayments(ctx, c.ID)
	if len(terms) != 0 || len(payments) != 0 {
		t.Errorf("cascade left %d terms and %d payments", len(terms), len(payments))
	}
}

func testOwnerScoping(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	mine := commitment("mine")
	theirs := commitment("theirs")
	theirs.OwnerID = "owner-2"
	orphan := payment(theirs, per(2025, 1))
	orphan.Orphan = core.OrphanFlagged
	mustTx(t, repo, func(tx storage.Tx) error {
		if err := tx.InsertCommitment(ctx, mine); err != nil {
			return err
		}
		if err := tx.InsertCommitment(ctx, theirs); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, orphan)
	})

	list, err := repo.ListCommitments(ctx, owner)
	if err != nil || len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("ListCommitments() = %v, %v", list, err)
	}
	if _, err := repo.GetCommitment(ctx, owner, theirs.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetCommitment() across owners error = %v", err)
	}
	if orphans, _ := repo.ListOrphans(ctx, owner); len(orphans) != 0 {
		t.Errorf("ListOrphans() leaked another owner's payment")
	}
	if orphans, _ := repo.ListOrphans(ctx, "owner-2"); len(orphans) != 1 {
		t.Errorf("ListOrphans() = %d, want 1", len(orphans))
	}
}

func testNotFound(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	if _, err := repo.GetTerm(ctx, uuid.New()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetTerm() error = %v", err)
	}
	if _, err := repo.GetPayment(ctx, uuid.New()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPayment() error = %v", err)
	}
	err := repo.WithTx(ctx, func(tx storage.Tx) error { return tx.DeletePayment(ctx, uuid.New()) })
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeletePayment() error = %v", err)
	}
}
