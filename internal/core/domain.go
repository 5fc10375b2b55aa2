package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Once         Frequency = "once"
	Monthly      Frequency = "monthly"
	Bimonthly    Frequency = "bimonthly"
	Quarterly    Frequency = "quarterly"
	Semiannually Frequency = "semiannually"
	Annually     Frequency = "annually"
)

const (
	Expense FlowType = "expense"
	Income  FlowType = "income"
)

const (
	Primary   LinkRole = "primary"
	Secondary LinkRole = "secondary"
)

const (
	EstimateFixed   EstimationMode = "fixed"
	EstimateAverage EstimationMode = "average"
	EstimateLast    EstimationMode = "last"
)

const (
	OrphanNone     OrphanState = ""
	OrphanFlagged  OrphanState = "orphaned"
	OrphanAccepted OrphanState = "accepted"
)

const (
	ReasonTermChanged      = "term_changed"
	ReasonOrphaned         = "orphaned"
	ReasonCoverageRestored = "coverage_restored"
)

type (
	Frequency      string
	FlowType       string
	LinkRole       string
	EstimationMode string
	OrphanState    string

	Date struct {
		time.Time
	}

	// Link ties a commitment to exactly one partner whose amounts are reported net of its own.
	Link struct {
		CommitmentID uuid.UUID
		Role         LinkRole
	}

	Commitment struct {
		ID          uuid.UUID
		OwnerID     string
		Flow        FlowType
		Name        string
		CategoryRef string
		Important   bool
		Link        *Link
		CreatedAt   time.Time
	}

	// Term is one version of the contract governing a commitment. The persisted shape is
	// flat; Shape() gives the tagged view consumers switch on.
	Term struct {
		ID             uuid.UUID
		CommitmentID   uuid.UUID
		Version        int
		EffectiveFrom  Period
		EffectiveUntil *Period
		Frequency      Frequency
		Installments   *int
		DueDay         int
		Amount         Money
		Divided        bool
		Estimation     EstimationMode
	}

	Payment struct {
		ID              uuid.UUID
		CommitmentID    uuid.UUID
		Period          Period
		SettledOn       *Date
		Amount          Money
		DueDateOverride *Date
		Note            string
		TermID          *uuid.UUID
		Orphan          OrphanState
		CreatedAt       time.Time
	}

	// AuditEntry records one reassignment of a payment's derived term reference.
	AuditEntry struct {
		ID           uuid.UUID
		CommitmentID uuid.UUID
		PaymentID    uuid.UUID
		OldPeriod    Period
		OldTermID    *uuid.UUID
		NewPeriod    Period
		NewTermID    *uuid.UUID
		Reason       string
		At           time.Time
	}
)

var frequencyIntervals = map[Frequency]int{
	Once:         0,
	Monthly:      1,
	Bimonthly:    2,
	Quarterly:    3,
	Semiannually: 6,
	Annually:     12,
}

// Interval returns the number of months between two due periods. ONCE has no step and
// reports 0.
func (f Frequency) Interval() int {
	return frequencyIntervals[f]
}

func (f Frequency) Valid() bool {
	_, ok := frequencyIntervals[f]
	return ok
}

func (f FlowType) Valid() bool {
	return f == Expense || f == Income
}

func (r LinkRole) Valid() bool {
	return r == Primary || r == Secondary
}

// Opposite returns the role the partner side must hold.
func (r LinkRole) Opposite() LinkRole {
	if r == Primary {
		return Secondary
	}
	return Primary
}

func (m EstimationMode) Valid() bool {
	switch m {
	case EstimateFixed, EstimateAverage, EstimateLast:
		return true
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Period returns the month the date falls in.
func (d Date) Period() Period {
	return TruncateToMonth(d.Time)
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON and UnmarshalJSON shadow the promoted time.Time methods so dates travel as
// YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("parse date %s: %w", b, err)
	}
	return d.UnmarshalText([]byte(s))
}

// DaysUntil returns the signed number of calendar days from d to other. Both sides are
// truncated to their calendar day first, so a time of day never shifts the count.
func (d Date) DaysUntil(other Date) int {
	from, to := DateOf(d.Time), DateOf(other.Time)
	return int(to.Sub(from.Time) / (24 * time.Hour))
}

func (c Commitment) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(c.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if !c.Flow.Valid() {
		return fmt.Errorf("%w: flow %q", ErrInvalidFlow, c.Flow)
	}
	if c.Link != nil {
		if !c.Link.Role.Valid() {
			return fmt.Errorf("%w: role %q", ErrInvalidLink, c.Link.Role)
		}
		if c.Link.CommitmentID == c.ID {
			return fmt.Errorf("%w: commitment cannot link to itself", ErrInvalidLink)
		}
	}
	return nil
}

// LinkedTo reports whether c and other form a well-formed linked pair: each points at the
// other and exactly one side is primary.
func (c Commitment) LinkedTo(other Commitment) bool {
	if c.Link == nil || other.Link == nil {
		return false
	}
	if c.Link.CommitmentID != other.ID || other.Link.CommitmentID != c.ID {
		return false
	}
	return c.Link.Role.Valid() && other.Link.Role == c.Link.Role.Opposite()
}

func (p Payment) Validate() error {
	if !p.Period.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidPeriod, p.Period)
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if len(p.Note) > 500 {
		return errors.New("note too long (max 500 characters)")
	}
	return nil
}

// Settled reports whether the payment carries a settlement date.
func (p Payment) Settled() bool {
	return p.SettledOn != nil && !p.SettledOn.IsZero()
}

// Orphaned reports whether the payment currently has no governing term and has not been
// accepted as historical by the user.
func (p Payment) Orphaned() bool {
	return p.Orphan == OrphanFlagged
}

// SameTerm reports whether two optional term references point at the same term.
func SameTerm(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
