package storage

import (
	"context"

	"github.com/google/uuid"

	"scadenze/internal/core"
)

// Ports for the persistence layer. Every backend must enforce one payment per
// (commitment, period) and reject overlapping terms of one commitment, reporting
// core.ErrPaymentExists and core.ErrInvalidTermOverlap respectively.
type (
	Reader interface {
		GetCommitment(ctx context.Context, owner string, id uuid.UUID) (core.Commitment, error)
		ListCommitments(ctx context.Context, owner string) ([]core.Commitment, error)

		GetTerm(ctx context.Context, id uuid.UUID) (core.Term, error)
		ListTerms(ctx context.Context, commitmentID uuid.UUID) ([]core.Term, error)
		ListTermsByOwner(ctx context.Context, owner string) ([]core.Term, error)

		GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error)
		ListPayments(ctx context.Context, commitmentID uuid.UUID) ([]core.Payment, error)
		ListPaymentsByOwner(ctx context.Context, owner string) ([]core.Payment, error)
		ListOrphans(ctx context.Context, owner string) ([]core.Payment, error)

		ListAudit(ctx context.Context, commitmentID uuid.UUID) ([]core.AuditEntry, error)
	}

	Writer interface {
		InsertCommitment(ctx context.Context, c core.Commitment) error
		UpdateCommitment(ctx context.Context, c core.Commitment) error
		DeleteCommitment(ctx context.Context, id uuid.UUID) error

		InsertTerm(ctx context.Context, t core.Term) error
		UpdateTerm(ctx context.Context, t core.Term) error
		DeleteTerm(ctx context.Context, id uuid.UUID) error

		InsertPayment(ctx context.Context, p core.Payment) error
		UpdatePayment(ctx context.Context, p core.Payment) error
		DeletePayment(ctx context.Context, id uuid.UUID) error

		InsertAudit(ctx context.Context, e core.AuditEntry) error
	}

	// Tx is a unit of work. Nothing written through it is visible to other readers until
	// the enclosing WithTx returns nil.
	Tx interface {
		Reader
		Writer
	}

	Repository interface {
		Reader
		// WithTx runs fn in a transaction, committing when fn returns nil and rolling back
		// otherwise.
		WithTx(ctx context.Context, fn func(tx Tx) error) error
		// Snapshot runs fn against one consistent view of the committed data. Writes that
		// commit while fn runs are not visible to it.
		Snapshot(ctx context.Context, fn func(r Reader) error) error
		Close() error
	}
)
