// Package memory is an in-process storage.Repository used for tests and the memory backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

type state struct {
	commitments map[uuid.UUID]core.Commitment
	terms       map[uuid.UUID]core.Term
	payments    map[uuid.UUID]core.Payment
	audit       []core.AuditEntry
}

func newState() *state {
	return &state{
		commitments: make(map[uuid.UUID]core.Commitment),
		terms:       make(map[uuid.UUID]core.Term),
		payments:    make(map[uuid.UUID]core.Payment),
	}
}

func (s *state) clone() *state {
	c := &state{
		commitments: make(map[uuid.UUID]core.Commitment, len(s.commitments)),
		terms:       make(map[uuid.UUID]core.Term, len(s.terms)),
		payments:    make(map[uuid.UUID]core.Payment, len(s.payments)),
		audit:       append([]core.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.commitments {
		c.commitments[k] = v
	}
	for k, v := range s.terms {
		c.terms[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// Store keeps its data in maps. Transactions run against a private copy that replaces the
// live state only when the transaction function succeeds.
type Store struct {
	// txMu serializes transactions; mu guards cur.
	txMu sync.Mutex
	mu   sync.RWMutex
	cur  *state
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{cur: newState()}
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) view() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) WithTx(_ context.Context, fn func(tx storage.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	work := s.view().clone()
	if err := fn(&txn{reader{work}}); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = work
	s.mu.Unlock()
	return nil
}

// Snapshot hands fn the committed state as of the call.
func (s *Store) Snapshot(_ context.Context, fn func(r storage.Reader) error) error {
	return fn(reader{s.view()})
}

// Reads outside a transaction see the last committed state. Committed states are never
// mutated, so the snapshot needs no lock once taken.

func (s *Store) GetCommitment(ctx context.Context, owner string, id uuid.UUID) (core.Commitment, error) {
	return reader{s.view()}.GetCommitment(ctx, owner, id)
}

func (s *Store) ListCommitments(ctx context.Context, owner string) ([]core.Commitment, error) {
	return reader{s.view()}.ListCommitments(ctx, owner)
}

func (s *Store) GetTerm(ctx context.Context, id uuid.UUID) (core.Term, error) {
	return reader{s.view()}.GetTerm(ctx, id)
}

func (s *Store) ListTerms(ctx context.Context, commitmentID uuid.UUID) ([]core.Term, error) {
	return reader{s.view()}.ListTerms(ctx, commitmentID)
}

func (s *Store) ListTermsByOwner(ctx context.Context, owner string) ([]core.Term, error) {
	return reader{s.view()}.ListTermsByOwner(ctx, owner)
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error) {
	return reader{s.view()}.GetPayment(ctx, id)
}

func (s *Store) ListPayments(ctx context.Context, commitmentID uuid.UUID) ([]core.Payment, error) {
	return reader{s.view()}.ListPayments(ctx, commitmentID)
}

func (s *Store) ListPaymentsByOwner(ctx context.Context, owner string) ([]core.Payment, error) {
	return reader{s.view()}.ListPaymentsByOwner(ctx, owner)
}

func (s *Store) ListOrphans(ctx context.Context, owner string) ([]core.Payment, error) {
	return reader{s.view()}.ListOrphans(ctx, owner)
}

func (s *Store) ListAudit(ctx context.Context, commitmentID uuid.UUID) ([]core.AuditEntry, error) {
	return reader{s.view()}.ListAudit(ctx, commitmentID)
}

type reader struct {
	st *state
}

func (r reader) GetCommitment(_ context.Context, owner string, id uuid.UUID) (core.Commitment, error) {
	c, ok := r.st.commitments[id]
	if !ok || c.OwnerID != owner {
		return core.Commitment{}, fmt.Errorf("commitment %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (r reader) ListCommitments(_ context.Context, owner string) ([]core.Commitment, error) {
	var out []core.Commitment
	for _, c := range r.st.commitments {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r reader) GetTerm(_ context.Context, id uuid.UUID) (core.Term, error) {
	t, ok := r.st.terms[id]
	if !ok {
		return core.Term{}, fmt.Errorf("term %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (r reader) ListTerms(_ context.Context, commitmentID uuid.UUID) ([]core.Term, error) {
	return r.termsWhere(func(t core.Term) bool { return t.CommitmentID == commitmentID }), nil
}

func (r reader) ListTermsByOwner(_ context.Context, owner string) ([]core.Term, error) {
	return r.termsWhere(func(t core.Term) bool { return r.owns(owner, t.CommitmentID) }), nil
}

func (r reader) termsWhere(keep func(core.Term) bool) []core.Term {
	var out []core.Term
	for _, t := range r.st.terms {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommitmentID != out[j].CommitmentID {
			return out[i].CommitmentID.String() < out[j].CommitmentID.String()
		}
		return out[i].Version < out[j].Version
	})
	return out
}

func (r reader) owns(owner string, commitmentID uuid.UUID) bool {
	c, ok := r.st.commitments[commitmentID]
	return ok && c.OwnerID == owner
}

func (r reader) GetPayment(_ context.Context, id uuid.UUID) (core.Payment, error) {
	p, ok := r.st.payments[id]
	if !ok {
		return core.Payment{}, fmt.Errorf("payment %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (r reader) ListPayments(_ context.Context, commitmentID uuid.UUID) ([]core.Payment, error) {
	return r.paymentsWhere(func(p core.Payment) bool { return p.CommitmentID == commitmentID }), nil
}

func (r reader) ListPaymentsByOwner(_ context.Context, owner string) ([]core.Payment, error) {
	return r.paymentsWhere(func(p core.Payment) bool { return r.owns(owner, p.CommitmentID) }), nil
}

func (r reader) ListOrphans(_ context.Context, owner string) ([]core.Payment, error) {
	return r.paymentsWhere(func(p core.Payment) bool {
		return p.Orphaned() && r.owns(owner, p.CommitmentID)
	}), nil
}

func (r reader) paymentsWhere(keep func(core.Payment) bool) []core.Payment {
	var out []core.Payment
	for _, p := range r.st.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommitmentID != out[j].CommitmentID {
			return out[i].CommitmentID.String() < out[j].CommitmentID.String()
		}
		return out[i].Period.Before(out[j].Period)
	})
	return out
}

func (r reader) ListAudit(_ context.Context, commitmentID uuid.UUID) ([]core.AuditEntry, error) {
	var out []core.AuditEntry
	for _, e := range r.st.audit {
		if e.CommitmentID == commitmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// txn reads and writes a private state.
type txn struct {
	reader
}

func (t *txn) InsertCommitment(_ context.Context, c core.Commitment) error {
	if _, ok := t.st.commitments[c.ID]; ok {
		return fmt.Errorf("insert commitment %s: already exists", c.ID)
	}
	t.st.commitments[c.ID] = c
	return nil
}

func (t *txn) UpdateCommitment(_ context.Context, c core.Commitment) error {
	old, ok := t.st.commitments[c.ID]
	if !ok {
		return fmt.Errorf("update commitment %s: %w", c.ID, core.ErrNotFound)
	}
	c.OwnerID = old.OwnerID
	c.CreatedAt = old.CreatedAt
	t.st.commitments[c.ID] = c
	return nil
}

func (t *txn) DeleteCommitment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.commitments[id]; !ok {
		return fmt.Errorf("delete commitment %s: %w", id, core.ErrNotFound)
	}
	delete(t.st.commitments, id)
	for tid, term := range t.st.terms {
		if term.CommitmentID == id {
			delete(t.st.terms, tid)
		}
	}
	for pid, p := range t.st.payments {
		if p.CommitmentID == id {
			delete(t.st.payments, pid)
		}
	}
	return nil
}

// checkOverlap mirrors the storage triggers: next may not share a period with another
// term of its commitment.
func (t *txn) checkOverlap(next core.Term) error {
	others := []core.Term{next}
	for _, term := range t.st.terms {
		if term.CommitmentID == next.CommitmentID && term.ID != next.ID {
			others = append(others, term)
		}
	}
	if err := schedule.CheckOverlap(others); err != nil {
		return fmt.Errorf("%w: rejected by storage", core.ErrInvalidTermOverlap)
	}
	return nil
}

func (t *txn) InsertTerm(_ context.Context, term core.Term) error {
	if _, ok := t.st.commitments[term.CommitmentID]; !ok {
		return fmt.Errorf("insert term: commitment %s: %w", term.CommitmentID, core.ErrNotFound)
	}
	if err := t.checkOverlap(term); err != nil {
		return fmt.Errorf("insert term: %w", err)
	}
	t.st.terms[term.ID] = term
	return nil
}

func (t *txn) UpdateTerm(_ context.Context, term core.Term) error {
	old, ok := t.st.terms[term.ID]
	if !ok {
		return fmt.Errorf("update term %s: %w", term.ID, core.ErrNotFound)
	}
	term.CommitmentID = old.CommitmentID
	term.Version = old.Version
	if err := t.checkOverlap(term); err != nil {
		return fmt.Errorf("update term %s: %w", term.ID, err)
	}
	t.st.terms[term.ID] = term
	return nil
}

func (t *txn) DeleteTerm(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.terms[id]; !ok {
		return fmt.Errorf("delete term %s: %w", id, core.ErrNotFound)
	}
	delete(t.st.terms, id)
	return nil
}

func (t *txn) InsertPayment(_ context.Context, p core.Payment) error {
	if _, ok := t.st.commitments[p.CommitmentID]; !ok {
		return fmt.Errorf("insert payment: commitment %s: %w", p.CommitmentID, core.ErrNotFound)
	}
	for _, existing := range t.st.payments {
		if existing.CommitmentID == p.CommitmentID && existing.Period == p.Period {
			return fmt.Errorf("insert payment: %w", core.ErrPaymentExists)
		}
	}
	t.st.payments[p.ID] = p
	return nil
}

func (t *txn) UpdatePayment(_ context.Context, p core.Payment) error {
	old, ok := t.st.payments[p.ID]
	if !ok {
		return fmt.Errorf("update payment %s: %w", p.ID, core.ErrNotFound)
	}
	p.CommitmentID = old.CommitmentID
	p.Period = old.Period
	p.CreatedAt = old.CreatedAt
	t.st.payments[p.ID] = p
	return nil
}

func (t *txn) DeletePayment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.payments[id]; !ok {
		return fmt.Errorf("delete payment %s: %w", id, core.ErrNotFound)
	}
	delete(t.st.payments, id)
	return nil
}

func (t *txn) InsertAudit(_ context.Context, e core.AuditEntry) error {
	t.st.audit = append(t.st.audit, e)
	return nil
}
