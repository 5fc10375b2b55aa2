package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// Row models mirror the table layout; conversion to and from the domain types happens in
// this file only.

type CommitmentRow struct {
	ID               string
	OwnerID          string
	Flow             string
	Name             string
	CategoryRef      string
	Important        bool
	LinkCommitmentID sql.NullString
	LinkRole         sql.NullString
	CreatedAt        string
}

type TermRow struct {
	ID             string
	CommitmentID   string
	Version        int64
	EffectiveFrom  string
	EffectiveUntil sql.NullString
	Frequency      string
	Installments   sql.NullInt64
	DueDay         int64
	Amount         string
	Unit           string
	RateToBase     string
	Divided        bool
	Estimation     string
}

type PaymentRow struct {
	ID              string
	CommitmentID    string
	Period          string
	SettledOn       sql.NullString
	Amount          string
	Unit            string
	RateToBase      string
	DueDateOverride sql.NullString
	Note            string
	TermID          sql.NullString
	Orphan          string
	CreatedAt       string
}

type AuditRow struct {
	ID           string
	CommitmentID string
	PaymentID    string
	OldPeriod    string
	OldTermID    sql.NullString
	NewPeriod    string
	NewTermID    sql.NullString
	Reason       string
	CreatedAt    string
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func nullPeriod(p *core.Period) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}

func nullDate(d *core.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseNullPeriod(ns sql.NullString) (*core.Period, error) {
	if !ns.Valid {
		return nil, nil
	}
	p, err := core.ParsePeriod(ns.String)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseNullDate(ns sql.NullString) (*core.Date, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := core.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func commitmentToRow(c core.Commitment) CommitmentRow {
	row := CommitmentRow{
		ID:          c.ID.String(),
		OwnerID:     c.OwnerID,
		Flow:        string(c.Flow),
		Name:        c.Name,
		CategoryRef: c.CategoryRef,
		Important:   c.Important,
		CreatedAt:   formatTime(c.CreatedAt),
	}
	if c.Link != nil {
		row.LinkCommitmentID = sql.NullString{String: c.Link.CommitmentID.String(), Valid: true}
		row.LinkRole = sql.NullString{String: string(c.Link.Role), Valid: true}
	}
	return row
}

func (r CommitmentRow) toCore() (core.Commitment, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return core.Commitment{}, fmt.Errorf("commitment id: %w", err)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return core.Commitment{}, fmt.Errorf("commitment %s created_at: %w", r.ID, err)
	}
	c := core.Commitment{
		ID:          id,
		OwnerID:     r.OwnerID,
		Flow:        core.FlowType(r.Flow),
		Name:        r.Name,
		CategoryRef: r.CategoryRef,
		Important:   r.Important,
		CreatedAt:   created,
	}
	if r.LinkCommitmentID.Valid {
		partner, err := uuid.Parse(r.LinkCommitmentID.String)
		if err != nil {
			return core.Commitment{}, fmt.Errorf("commitment %s link: %w", r.ID, err)
		}
		c.Link = &core.Link{CommitmentID: partner, Role: core.LinkRole(r.LinkRole.String)}
	}
	return c, nil
}

func termToRow(t core.Term) TermRow {
	row := TermRow{
		ID:             t.ID.String(),
		CommitmentID:   t.CommitmentID.String(),
		Version:        int64(t.Version),
		EffectiveFrom:  t.EffectiveFrom.String(),
		EffectiveUntil: nullPeriod(t.EffectiveUntil),
		Frequency:      string(t.Frequency),
		DueDay:         int64(t.DueDay),
		Amount:         t.Amount.Amount.String(),
		Unit:           t.Amount.Unit,
		RateToBase:     t.Amount.RateToBase.String(),
		Divided:        t.Divided,
		Estimation:     string(t.Estimation),
	}
	if t.Installments != nil {
		row.Installments = sql.NullInt64{Int64: int64(*t.Installments), Valid: true}
	}
	return row
}

func (r TermRow) toCore() (core.Term, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return core.Term{}, fmt.Errorf("term id: %w", err)
	}
	cid, err := uuid.Parse(r.CommitmentID)
	if err != nil {
		return core.Term{}, fmt.Errorf("term %s commitment id: %w", r.ID, err)
	}
	from, err := core.ParsePeriod(r.EffectiveFrom)
	if err != nil {
		return core.Term{}, fmt.Errorf("term %s: %w", r.ID, err)
	}
	until, err := parseNullPeriod(r.EffectiveUntil)
	if err != nil {
		return core.Term{}, fmt.Errorf("term %s: %w", r.ID, err)
	}
	amount, err := parseMoney(r.Amount, r.Unit, r.RateToBase)
	if err != nil {
		return core.Term{}, fmt.Errorf("term %s: %w", r.ID, err)
	}
	t := core.Term{
		ID:             id,
		CommitmentID:   cid,
		Version:        int(r.Version),
		EffectiveFrom:  from,
		EffectiveUntil: until,
		Frequency:      core.Frequency(r.Frequency),
		DueDay:         int(r.DueDay),
		Amount:         amount,
		Divided:        r.Divided,
		Estimation:     core.EstimationMode(r.Estimation),
	}
	if r.Installments.Valid {
		n := int(r.Installments.Int64)
		t.Installments = &n
	}
	return t, nil
}

func paymentToRow(p core.Payment) PaymentRow {
	return PaymentRow{
		ID:              p.ID.String(),
		CommitmentID:    p.CommitmentID.String(),
		Period:          p.Period.String(),
		SettledOn:       nullDate(p.SettledOn),
		Amount:          p.Amount.Amount.String(),
		Unit:            p.Amount.Unit,
		RateToBase:      p.Amount.RateToBase.String(),
		DueDateOverride: nullDate(p.DueDateOverride),
		Note:            p.Note,
		TermID:          nullUUID(p.TermID),
		Orphan:          string(p.Orphan),
		CreatedAt:       formatTime(p.CreatedAt),
	}
}

func (r PaymentRow) toCore() (core.Payment, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment id: %w", err)
	}
	cid, err := uuid.Parse(r.CommitmentID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s commitment id: %w", r.ID, err)
	}
	period, err := core.ParsePeriod(r.Period)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s: %w", r.ID, err)
	}
	settled, err := parseNullDate(r.SettledOn)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s settled_on: %w", r.ID, err)
	}
	override, err := parseNullDate(r.DueDateOverride)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s due_date_override: %w", r.ID, err)
	}
	termID, err := parseNullUUID(r.TermID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s term id: %w", r.ID, err)
	}
	amount, err := parseMoney(r.Amount, r.Unit, r.RateToBase)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s: %w", r.ID, err)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s created_at: %w", r.ID, err)
	}
	return core.Payment{
		ID:              id,
		CommitmentID:    cid,
		Period:          period,
		SettledOn:       settled,
		Amount:          amount,
		DueDateOverride: override,
		Note:            r.Note,
		TermID:          termID,
		Orphan:          core.OrphanState(r.Orphan),
		CreatedAt:       created,
	}, nil
}

func auditToRow(e core.AuditEntry) AuditRow {
	return AuditRow{
		ID:           e.ID.String(),
		CommitmentID: e.CommitmentID.String(),
		PaymentID:    e.PaymentID.String(),
		OldPeriod:    e.OldPeriod.String(),
		OldTermID:    nullUUID(e.OldTermID),
		NewPeriod:    e.NewPeriod.String(),
		NewTermID:    nullUUID(e.NewTermID),
		Reason:       e.Reason,
		CreatedAt:    formatTime(e.At),
	}
}

func (r AuditRow) toCore() (core.AuditEntry, error) {
	var (
		e   core.AuditEntry
		err error
	)
	if e.ID, err = uuid.Parse(r.ID); err != nil {
		return e, fmt.Errorf("audit id: %w", err)
	}
	if e.CommitmentID, err = uuid.Parse(r.CommitmentID); err != nil {
		return e, fmt.Errorf("audit %s commitment id: %w", r.ID, err)
	}
	if e.PaymentID, err = uuid.Parse(r.PaymentID); err != nil {
		return e, fmt.Errorf("audit %s payment id: %w", r.ID, err)
	}
	if e.OldPeriod, err = core.ParsePeriod(r.OldPeriod); err != nil {
		return e, fmt.Errorf("audit %s: %w", r.ID, err)
	}
	if e.NewPeriod, err = core.ParsePeriod(r.NewPeriod); err != nil {
		return e, fmt.Errorf("audit %s: %w", r.ID, err)
	}
	if e.OldTermID, err = parseNullUUID(r.OldTermID); err != nil {
		return e, fmt.Errorf("audit %s old term: %w", r.ID, err)
	}
	if e.NewTermID, err = parseNullUUID(r.NewTermID); err != nil {
		return e, fmt.Errorf("audit %s new term: %w", r.ID, err)
	}
	if e.At, err = parseTime(r.CreatedAt); err != nil {
		return e, fmt.Errorf("audit %s created_at: %w", r.ID, err)
	}
	e.Reason = r.Reason
	return e, nil
}

func parseMoney(amount, unit, rate string) (core.Money, error) {
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Money{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return core.Money{}, fmt.Errorf("rate %q: %w", rate, err)
	}
	return core.Money{Amount: a, Unit: unit, RateToBase: r}, nil
}
