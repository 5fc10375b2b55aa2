package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func eur(v int64) Money {
	return NewMoney(decimal.NewFromInt(v), "EUR")
}

func intp(v int) *int { return &v }

func per(y int, m time.Month) Period { return Period{Year: y, Month: m} }

func perp(y int, m time.Month) *Period {
	p := per(y, m)
	return &p
}

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestCommitmentValidate(t *testing.T) {
	id := uuid.New()
	good := Commitment{ID: id, OwnerID: "u1", Flow: Expense, Name: "Rent"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Commitment{
		{ID: id, OwnerID: "u1", Flow: Expense, Name: ""},
		{ID: id, OwnerID: "", Flow: Expense, Name: "Rent"},
		{ID: id, OwnerID: "u1", Flow: "transfer", Name: "Rent"},
		{ID: id, OwnerID: "u1", Flow: Expense, Name: "Rent", Link: &Link{CommitmentID: id, Role: Primary}},
		{ID: id, OwnerID: "u1", Flow: Expense, Name: "Rent", Link: &Link{CommitmentID: uuid.New(), Role: "both"}},
	}
	for i, c := range bads {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestCommitmentLinkedTo(t *testing.T) {
	a := Commitment{ID: uuid.New()}
	b := Commitment{ID: uuid.New()}
	a.Link = &Link{CommitmentID: b.ID, Role: Primary}
	b.Link = &Link{CommitmentID: a.ID, Role: Secondary}

	if !a.LinkedTo(b) || !b.LinkedTo(a) {
		t.Fatalf("symmetric link not recognized")
	}

	b.Link.Role = Primary
	if a.LinkedTo(b) {
		t.Errorf("two primary sides must not count as a linked pair")
	}

	b.Link = &Link{CommitmentID: uuid.New(), Role: Secondary}
	if a.LinkedTo(b) {
		t.Errorf("one-sided link must not count as a linked pair")
	}
}

func TestNormalizeTerm_Once(t *testing.T) {
	in := Term{EffectiveFrom: per(2025, 6), EffectiveUntil: perp(2025, 12), Installments: intp(4), Frequency: Once, DueDay: 1, Amount: eur(100)}
	got := NormalizeTerm(in, nil)

	if got.EffectiveUntil == nil || *got.EffectiveUntil != per(2025, 6) {
		t.Errorf("effective until = %v, want 2025-06", got.EffectiveUntil)
	}
	if got.InstallmentCount() != 1 {
		t.Errorf("installments = %d, want 1", got.InstallmentCount())
	}
	if got.Shape() != ShapeOnce {
		t.Errorf("shape = %v, want once", got.Shape())
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestNormalizeTerm_DerivedUntil(t *testing.T) {
	tests := []struct {
		name string
		in   Term
		want *Period
	}{
		{
			name: "monthly installments",
			in:   Term{EffectiveFrom: per(2025, 11), Frequency: Monthly, Installments: intp(3)},
			want: perp(2026, 1),
		},
		{
			name: "quarterly installments",
			in:   Term{EffectiveFrom: per(2025, 1), Frequency: Quarterly, Installments: intp(4)},
			want: perp(2025, 10),
		},
		{
			name: "annual installments ignore supplied end",
			in:   Term{EffectiveFrom: per(2025, 3), EffectiveUntil: perp(2040, 1), Frequency: Annually, Installments: intp(2)},
			want: perp(2026, 3),
		},
		{
			name: "divided with end is derived",
			in:   Term{EffectiveFrom: per(2025, 1), EffectiveUntil: perp(2025, 2), Frequency: Monthly, Installments: intp(12), Divided: true},
			want: perp(2025, 12),
		},
		{
			name: "divided without end is derived",
			in:   Term{EffectiveFrom: per(2025, 11), Frequency: Monthly, Installments: intp(3), Divided: true},
			want: perp(2026, 1),
		},
		{
			name: "divided without installment count stays open",
			in:   Term{EffectiveFrom: per(2025, 1), Frequency: Monthly, Divided: true},
			want: nil,
		},
		{
			name: "open-ended without installments",
			in:   Term{EffectiveFrom: per(2025, 1), Frequency: Monthly},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTerm(tt.in, nil).EffectiveUntil
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("NormalizeTerm().EffectiveUntil = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeTerm_DerivationProperty(t *testing.T) {
	freqs := []Frequency{Monthly, Bimonthly, Quarterly, Semiannually, Annually}
	from := per(2024, 7)
	for _, f := range freqs {
		for n := 2; n <= 24; n++ {
			got := NormalizeTerm(Term{EffectiveFrom: from, Frequency: f, Installments: intp(n)}, nil)
			want := from.AddMonths((n - 1) * f.Interval())
			if got.EffectiveUntil == nil || *got.EffectiveUntil != want {
				t.Fatalf("%s n=%d: effective until = %v, want %s", f, n, got.EffectiveUntil, want)
			}
		}
	}
}

func TestNormalizeTerm_NarrowingSurvivesEdit(t *testing.T) {
	prev := NormalizeTerm(Term{EffectiveFrom: per(2025, 1), Frequency: Monthly, Installments: intp(12), DueDay: 5, Amount: eur(50)}, nil)

	// Early termination: only the end moves.
	edit := prev
	edit.EffectiveUntil = perp(2025, 6)
	got := NormalizeTerm(edit, &prev)
	if *got.EffectiveUntil != per(2025, 6) {
		t.Errorf("narrowed end recalculated to %s", *got.EffectiveUntil)
	}

	// Amount change alone keeps the narrowing too.
	edit.Amount = eur(60)
	got = NormalizeTerm(edit, &prev)
	if *got.EffectiveUntil != per(2025, 6) {
		t.Errorf("narrowed end recalculated after amount change to %s", *got.EffectiveUntil)
	}

	// Changing a derivation input recomputes.
	edit.Installments = intp(6)
	got = NormalizeTerm(edit, &prev)
	if *got.EffectiveUntil != per(2025, 6) {
		t.Errorf("effective until = %s, want derived 2025-06", *got.EffectiveUntil)
	}
	edit.Installments = intp(12)
	edit.EffectiveFrom = per(2025, 2)
	got = NormalizeTerm(edit, &prev)
	if *got.EffectiveUntil != per(2026, 1) {
		t.Errorf("effective until = %s, want derived 2026-01", *got.EffectiveUntil)
	}

	// Extending beyond the derived end is never kept.
	edit = prev
	edit.EffectiveUntil = perp(2027, 1)
	got = NormalizeTerm(edit, &prev)
	if *got.EffectiveUntil != per(2025, 12) {
		t.Errorf("effective until = %s, want 2025-12", *got.EffectiveUntil)
	}
}

func TestTermValidate(t *testing.T) {
	base := Term{EffectiveFrom: per(2025, 1), Frequency: Monthly, DueDay: 10, Amount: eur(10), Estimation: EstimateFixed}

	tests := []struct {
		name    string
		mutate  func(*Term)
		wantErr error
	}{
		{"valid open-ended", func(*Term) {}, nil},
		{"bad due day", func(t *Term) { t.DueDay = 32 }, ErrInvalidDueDay},
		{"bad frequency", func(t *Term) { t.Frequency = "weekly" }, ErrInvalidFrequency},
		{"zero amount", func(t *Term) { t.Amount = eur(0) }, ErrInvalidAmount},
		{"end before start", func(t *Term) { t.EffectiveUntil = perp(2024, 12) }, ErrInvalidTermShape},
		{"indefinite with installments", func(t *Term) { t.Installments = intp(3) }, ErrInvalidTermShape},
		{"zero installments", func(t *Term) { t.Installments = intp(0); t.EffectiveUntil = perp(2025, 1) }, ErrInvalidTermShape},
		{"end past last installment", func(t *Term) { t.Installments = intp(3); t.EffectiveUntil = perp(2025, 4) }, ErrInvalidTermShape},
		{"narrowed installments", func(t *Term) { t.Installments = intp(3); t.EffectiveUntil = perp(2025, 2) }, nil},
		{"divided installments without end", func(t *Term) { t.Installments = intp(36); t.Divided = true }, ErrInvalidTermShape},
		{"divided installments with end", func(t *Term) { t.Installments = intp(3); t.Divided = true; t.EffectiveUntil = perp(2025, 3) }, nil},
		{"divided without installments", func(t *Term) { t.Divided = true }, nil},
		{"once spanning months", func(t *Term) { t.Frequency = Once; t.EffectiveUntil = perp(2025, 3) }, ErrInvalidTermShape},
		{"bad estimation", func(t *Term) { t.Estimation = "median" }, ErrInvalidTermShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := base
			tt.mutate(&term)
			err := term.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTermShape(t *testing.T) {
	tests := []struct {
		term Term
		want TermShape
	}{
		{Term{Frequency: Once}, ShapeOnce},
		{Term{Frequency: Monthly}, ShapeOpenEnded},
		{Term{Frequency: Monthly, EffectiveUntil: perp(2025, 5)}, ShapeBoundedByDate},
		{Term{Frequency: Monthly, EffectiveUntil: perp(2025, 5), Installments: intp(5)}, ShapeBoundedByInstallments},
		{Term{Frequency: Monthly, Installments: intp(5), Divided: true}, ShapeDividedInstallmentPlan},
		{Term{Frequency: Monthly, Divided: true}, ShapeOpenEnded},
	}
	for _, tt := range tests {
		if got := tt.term.Shape(); got != tt.want {
			t.Errorf("Shape() = %v, want %v", got, tt.want)
		}
	}
}

func TestSameTerm(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	a2 := a
	if !SameTerm(nil, nil) || !SameTerm(&a, &a2) {
		t.Errorf("SameTerm should match equal references")
	}
	if SameTerm(&a, nil) || SameTerm(nil, &b) || SameTerm(&a, &b) {
		t.Errorf("SameTerm should not match different references")
	}
}

func TestDateJSON(t *testing.T) {
	in := struct {
		On  Date  `json:"on"`
		Opt *Date `json:"opt"`
	}{On: NewDate(2025, 3, 5)}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"on":"2025-03-05","opt":null}` {
		t.Errorf("Marshal() = %s", b)
	}

	var out struct {
		On Date `json:"on"`
	}
	if err := json.Unmarshal([]byte(`{"on":"2024-02-29"}`), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !out.On.Equal(NewDate(2024, 2, 29).Time) {
		t.Errorf("Unmarshal() = %v", out.On)
	}
	if err := json.Unmarshal([]byte(`{"on":"2024-02-29T10:00:00Z"}`), &out); err == nil {
		t.Errorf("Unmarshal() accepted a timestamp")
	}
}

func TestDate_DaysUntil(t *testing.T) {
	rome := time.FixedZone("CET", 3600)
	tests := []struct {
		name     string
		from, to Date
		want     int
	}{
		{"same day", NewDate(2025, 5, 20), NewDate(2025, 5, 20), 0},
		{"forward across month", NewDate(2025, 5, 20), NewDate(2025, 6, 5), 16},
		{"backward", NewDate(2025, 6, 5), NewDate(2025, 5, 20), -16},
		{"leap day", NewDate(2024, 2, 28), NewDate(2024, 3, 1), 2},
		{"late evening counts as its own day", Date{Time: time.Date(2025, 5, 20, 23, 59, 0, 0, time.UTC)}, NewDate(2025, 5, 21), 1},
		{"time of day on the target", NewDate(2025, 5, 20), Date{Time: time.Date(2025, 5, 22, 6, 0, 0, 0, time.UTC)}, 2},
		{"non-UTC location", Date{Time: time.Date(2025, 5, 21, 0, 30, 0, 0, rome)}, NewDate(2025, 5, 22), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.DaysUntil(tt.to); got != tt.want {
				t.Errorf("DaysUntil() = %d, want %d", got, tt.want)
			}
		})
	}
}
