package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"scadenze/internal/core"
)

// overlapMessage is raised by the terms_no_overlap_* triggers.
const overlapMessage = "term_overlap"

type SQLiteRepository struct {
	store
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers; transactions never interleave.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{store: store{q: New(db)}, db: db}, nil
}

func dsn(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database still answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(store{q: r.q.WithTx(sqlTx)}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Snapshot reads inside a transaction that is always rolled back, so every query of fn
// sees the same database state.
func (r *SQLiteRepository) Snapshot(ctx context.Context, fn func(r Reader) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Snapshot rollback failed", "error", rbErr)
		}
	}()
	return fn(store{q: r.q.WithTx(sqlTx)})
}

// store implements Reader and Writer over any DBTX.
type store struct {
	q *Queries
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %v: %w", what, id, err)
}

func affected(n int64, err error, what string, id uuid.UUID) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

func constraintCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func mapTermErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), overlapMessage) {
		return fmt.Errorf("%w: rejected by storage", core.ErrInvalidTermOverlap)
	}
	return err
}

func mapPaymentErr(err error) error {
	if err == nil {
		return nil
	}
	if constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return core.ErrPaymentExists
	}
	return err
}

func (s store) GetCommitment(ctx context.Context, owner string, id uuid.UUID) (core.Commitment, error) {
	row, err := s.q.GetCommitment(ctx, owner, id.String())
	if err != nil {
		return core.Commitment{}, notFound(err, "commitment", id)
	}
	return row.toCore()
}

func (s store) ListCommitments(ctx context.Context, owner string) ([]core.Commitment, error) {
	rows, err := s.q.ListCommitments(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	return convertAll(rows, CommitmentRow.toCore)
}

func (s store) GetTerm(ctx context.Context, id uuid.UUID) (core.Term, error) {
	row, err := s.q.GetTerm(ctx, id.String())
	if err != nil {
		return core.Term{}, notFound(err, "term", id)
	}
	return row.toCore()
}

func (s store) ListTerms(ctx context.Context, commitmentID uuid.UUID) ([]core.Term, error) {
	rows, err := s.q.ListTerms(ctx, commitmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return convertAll(rows, TermRow.toCore)
}

func (s store) ListTermsByOwner(ctx context.Context, owner string) ([]core.Term, error) {
	rows, err := s.q.ListTermsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list terms by owner: %w", err)
	}
	return convertAll(rows, TermRow.toCore)
}

func (s store) GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error) {
	row, err := s.q.GetPayment(ctx, id.String())
	if err != nil {
		return core.Payment{}, notFound(err, "payment", id)
	}
	return row.toCore()
}

func (s store) ListPayments(ctx context.Context, commitmentID uuid.UUID) ([]core.Payment, error) {
	rows, err := s.q.ListPayments(ctx, commitmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return convertAll(rows, PaymentRow.toCore)
}

func (s store) ListPaymentsByOwner(ctx context.Context, owner string) ([]core.Payment, error) {
	rows, err := s.q.ListPaymentsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list payments by owner: %w", err)
	}
	return convertAll(rows, PaymentRow.toCore)
}

func (s store) ListOrphans(ctx context.Context, owner string) ([]core.Payment, error) {
	rows, err := s.q.ListOrphans(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	return convertAll(rows, PaymentRow.toCore)
}

func (s store) ListAudit(ctx context.Context, commitmentID uuid.UUID) ([]core.AuditEntry, error) {
	rows, err := s.q.ListAudit(ctx, commitmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return convertAll(rows, AuditRow.toCore)
}

func (s store) InsertCommitment(ctx context.Context, c core.Commitment) error {
	if err := s.q.CreateCommitment(ctx, commitmentToRow(c)); err != nil {
		return fmt.Errorf("insert commitment: %w", err)
	}
	return nil
}

func (s store) UpdateCommitment(ctx context.Context, c core.Commitment) error {
	n, err := s.q.UpdateCommitment(ctx, commitmentToRow(c))
	return affected(n, err, "update commitment", c.ID)
}

func (s store) DeleteCommitment(ctx context.Context, id uuid.UUID) error {
	n, err := s.q.DeleteCommitment(ctx, id.String())
	return affected(n, err, "delete commitment", id)
}

func (s store) InsertTerm(ctx context.Context, t core.Term) error {
	if err := mapTermErr(s.q.CreateTerm(ctx, termToRow(t))); err != nil {
		return fmt.Errorf("insert term: %w", err)
	}
	return nil
}

func (s store) UpdateTerm(ctx context.Context, t core.Term) error {
	n, err := s.q.UpdateTerm(ctx, termToRow(t))
	return affected(n, mapTermErr(err), "update term", t.ID)
}

func (s store) DeleteTerm(ctx context.Context, id uuid.UUID) error {
	n, err := s.q.DeleteTerm(ctx, id.String())
	return affected(n, err, "delete term", id)
}

func (s store) InsertPayment(ctx context.Context, p core.Payment) error {
	if err := mapPaymentErr(s.q.CreatePayment(ctx, paymentToRow(p))); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s store) UpdatePayment(ctx context.Context, p core.Payment) error {
	n, err := s.q.UpdatePayment(ctx, paymentToRow(p))
	return affected(n, err, "update payment", p.ID)
}

func (s store) DeletePayment(ctx context.Context, id uuid.UUID) error {
	n, err := s.q.DeletePayment(ctx, id.String())
	return affected(n, err, "delete payment", id)
}

func (s store) InsertAudit(ctx context.Context, e core.AuditEntry) error {
	if err := s.q.CreateAudit(ctx, auditToRow(e)); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func convertAll[R any, T any](rows []R, conv func(R) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		item, err := conv(r)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
