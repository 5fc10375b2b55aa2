package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const commitmentColumns = `id, owner_id, flow, name, category_ref, important, link_commitment_id, link_role, created_at`

const termColumns = `id, commitment_id, version, effective_from, effective_until, frequency, installments,
due_day, amount, unit, rate_to_base, divided, estimation`

const paymentColumns = `id, commitment_id, period, settled_on, amount, unit, rate_to_base, due_date_override,
note, term_id, orphan, created_at`

const auditColumns = `id, commitment_id, payment_id, old_period, old_term_id, new_period, new_term_id, reason, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommitment(s rowScanner) (CommitmentRow, error) {
	var r CommitmentRow
	err := s.Scan(&r.ID, &r.OwnerID, &r.Flow, &r.Name, &r.CategoryRef, &r.Important,
		&r.LinkCommitmentID, &r.LinkRole, &r.CreatedAt)
	return r, err
}

func scanTerm(s rowScanner) (TermRow, error) {
	var r TermRow
	err := s.Scan(&r.ID, &r.CommitmentID, &r.Version, &r.EffectiveFrom, &r.EffectiveUntil,
		&r.Frequency, &r.Installments, &r.DueDay, &r.Amount, &r.Unit, &r.RateToBase,
		&r.Divided, &r.Estimation)
	return r, err
}

func scanPayment(s rowScanner) (PaymentRow, error) {
	var r PaymentRow
	err := s.Scan(&r.ID, &r.CommitmentID, &r.Period, &r.SettledOn, &r.Amount, &r.Unit,
		&r.RateToBase, &r.DueDateOverride, &r.Note, &r.TermID, &r.Orphan, &r.CreatedAt)
	return r, err
}

func scanAudit(s rowScanner) (AuditRow, error) {
	var r AuditRow
	err := s.Scan(&r.ID, &r.CommitmentID, &r.PaymentID, &r.OldPeriod, &r.OldTermID,
		&r.NewPeriod, &r.NewTermID, &r.Reason, &r.CreatedAt)
	return r, err
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Commitments

const getCommitment = `-- name: GetCommitment :one
SELECT ` + commitmentColumns + ` FROM commitments WHERE owner_id = ? AND id = ?`

func (q *Queries) GetCommitment(ctx context.Context, ownerID, id string) (CommitmentRow, error) {
	return scanCommitment(q.db.QueryRowContext(ctx, getCommitment, ownerID, id))
}

const listCommitments = `-- name: ListCommitments :many
SELECT ` + commitmentColumns + ` FROM commitments WHERE owner_id = ? ORDER BY created_at, id`

func (q *Queries) ListCommitments(ctx context.Context, ownerID string) ([]CommitmentRow, error) {
	rows, err := q.db.QueryContext(ctx, listCommitments, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCommitment)
}

const createCommitment = `-- name: CreateCommitment :exec
INSERT INTO commitments (` + commitmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCommitment(ctx context.Context, r CommitmentRow) error {
	_, err := q.db.ExecContext(ctx, createCommitment, r.ID, r.OwnerID, r.Flow, r.Name, r.CategoryRef,
		r.Important, r.LinkCommitmentID, r.LinkRole, r.CreatedAt)
	return err
}

const updateCommitment = `-- name: UpdateCommitment :execrows
UPDATE commitments
SET flow = ?, name = ?, category_ref = ?, important = ?, link_commitment_id = ?, link_role = ?
WHERE id = ?`

func (q *Queries) UpdateCommitment(ctx context.Context, r CommitmentRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCommitment, r.Flow, r.Name, r.CategoryRef, r.Important,
		r.LinkCommitmentID, r.LinkRole, r.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteCommitment = `-- name: DeleteCommitment :execrows
DELETE FROM commitments WHERE id = ?`

func (q *Queries) DeleteCommitment(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCommitment, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Terms

const getTerm = `-- name: GetTerm :one
SELECT ` + termColumns + ` FROM terms WHERE id = ?`

func (q *Queries) GetTerm(ctx context.Context, id string) (TermRow, error) {
	return scanTerm(q.db.QueryRowContext(ctx, getTerm, id))
}

const listTerms = `-- name: ListTerms :many
SELECT ` + termColumns + ` FROM terms WHERE commitment_id = ? ORDER BY version`

func (q *Queries) ListTerms(ctx context.Context, commitmentID string) ([]TermRow, error) {
	rows, err := q.db.QueryContext(ctx, listTerms, commitmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTerm)
}

const listTermsByOwner = `-- name: ListTermsByOwner :many
SELECT t.id, t.commitment_id, t.version, t.effective_from, t.effective_until, t.frequency,
       t.installments, t.due_day, t.amount, t.unit, t.rate_to_base, t.divided, t.estimation
FROM terms t JOIN commitments c ON c.id = t.commitment_id
WHERE c.owner_id = ?
ORDER BY t.commitment_id, t.version`

func (q *Queries) ListTermsByOwner(ctx context.Context, ownerID string) ([]TermRow, error) {
	rows, err := q.db.QueryContext(ctx, listTermsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTerm)
}

const createTerm = `-- name: CreateTerm :exec
INSERT INTO terms (` + termColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTerm(ctx context.Context, r TermRow) error {
	_, err := q.db.ExecContext(ctx, createTerm, r.ID, r.CommitmentID, r.Version, r.EffectiveFrom,
		r.EffectiveUntil, r.Frequency, r.Installments, r.DueDay, r.Amount, r.Unit, r.RateToBase,
		r.Divided, r.Estimation)
	return err
}

const updateTerm = `-- name: UpdateTerm :execrows
UPDATE terms
SET effective_from = ?, effective_until = ?, frequency = ?, installments = ?, due_day = ?,
    amount = ?, unit = ?, rate_to_base = ?, divided = ?, estimation = ?
WHERE id = ?`

func (q *Queries) UpdateTerm(ctx context.Context, r TermRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTerm, r.EffectiveFrom, r.EffectiveUntil, r.Frequency,
		r.Installments, r.DueDay, r.Amount, r.Unit, r.RateToBase, r.Divided, r.Estimation, r.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTerm = `-- name: DeleteTerm :execrows
DELETE FROM terms WHERE id = ?`

func (q *Queries) DeleteTerm(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTerm, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Payments

const getPayment = `-- name: GetPayment :one
SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

func (q *Queries) GetPayment(ctx context.Context, id string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRowContext(ctx, getPayment, id))
}

const listPayments = `-- name: ListPayments :many
SELECT ` + paymentColumns + ` FROM payments WHERE commitment_id = ? ORDER BY period`

func (q *Queries) ListPayments(ctx context.Context, commitmentID string) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPayments, commitmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

const listPaymentsByOwner = `-- name: ListPaymentsByOwner :many
SELECT p.id, p.commitment_id, p.period, p.settled_on, p.amount, p.unit, p.rate_to_base,
       p.due_date_override, p.note, p.term_id, p.orphan, p.created_at
FROM payments p JOIN commitments c ON c.id = p.commitment_id
WHERE c.owner_id = ?
ORDER BY p.commitment_id, p.period`

func (q *Queries) ListPaymentsByOwner(ctx context.Context, ownerID string) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

const listOrphans = `-- name: ListOrphans :many
SELECT p.id, p.commitment_id, p.period, p.settled_on, p.amount, p.unit, p.rate_to_base,
       p.due_date_override, p.note, p.term_id, p.orphan, p.created_at
FROM payments p JOIN commitments c ON c.id = p.commitment_id
WHERE c.owner_id = ? AND p.orphan = 'orphaned'
ORDER BY p.commitment_id, p.period`

func (q *Queries) ListOrphans(ctx context.Context, ownerID string) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listOrphans, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

const createPayment = `-- name: CreatePayment :exec
INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreatePayment(ctx context.Context, r PaymentRow) error {
	_, err := q.db.ExecContext(ctx, createPayment, r.ID, r.CommitmentID, r.Period, r.SettledOn,
		r.Amount, r.Unit, r.RateToBase, r.DueDateOverride, r.Note, r.TermID, r.Orphan, r.CreatedAt)
	return err
}

// The period column is never updated.
const updatePayment = `-- name: UpdatePayment :execrows
UPDATE payments
SET settled_on = ?, amount = ?, unit = ?, rate_to_base = ?, due_date_override = ?, note = ?,
    term_id = ?, orphan = ?
WHERE id = ?`

func (q *Queries) UpdatePayment(ctx context.Context, r PaymentRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePayment, r.SettledOn, r.Amount, r.Unit, r.RateToBase,
		r.DueDateOverride, r.Note, r.TermID, r.Orphan, r.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deletePayment = `-- name: DeletePayment :execrows
DELETE FROM payments WHERE id = ?`

func (q *Queries) DeletePayment(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePayment, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Audit

const createAudit = `-- name: CreateAudit :exec
INSERT INTO reconciliation_audit (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateAudit(ctx context.Context, r AuditRow) error {
	_, err := q.db.ExecContext(ctx, createAudit, r.ID, r.CommitmentID, r.PaymentID, r.OldPeriod,
		r.OldTermID, r.NewPeriod, r.NewTermID, r.Reason, r.CreatedAt)
	return err
}

const listAudit = `-- name: ListAudit :many
SELECT ` + auditColumns + ` FROM reconciliation_audit WHERE commitment_id = ? ORDER BY created_at, id`

func (q *Queries) ListAudit(ctx context.Context, commitmentID string) ([]AuditRow, error) {
	rows, err := q.db.QueryContext(ctx, listAudit, commitmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAudit)
}
