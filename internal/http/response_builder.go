// Package http provides HTTP server and handler implementations.
//
// This file maps domain values and errors onto JSON responses.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/log"
	"scadenze/internal/reconcile"
	"scadenze/internal/services"
)

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Retryable bool           `json:"retryable,omitempty"`
	Overlap   *overlapDetail `json:"overlap,omitempty"`
}

type overlapDetail struct {
	VersionA int         `json:"version_a"`
	VersionB int         `json:"version_b"`
	Period   core.Period `json:"period"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: msg, Type: errType}})
}

// statusFor maps an error to its HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrInvalidTermOverlap):
		return http.StatusConflict, "term_overlap"
	case errors.Is(err, core.ErrPaymentExists):
		return http.StatusConflict, "payment_exists"
	case errors.Is(err, core.ErrNotOrphaned):
		return http.StatusConflict, "not_orphaned"
	case errors.Is(err, core.ErrPaymentOutsideCoverage):
		return http.StatusUnprocessableEntity, "outside_coverage"
	case errors.Is(err, core.ErrReconciliationInterrupted):
		return http.StatusServiceUnavailable, "reconciliation_interrupted"
	case errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidDueDay),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidUnit),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidTermShape),
		errors.Is(err, core.ErrInvalidFlow),
		errors.Is(err, core.ErrInvalidLink),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyOwner):
		return http.StatusUnprocessableEntity, "validation"
	}
	return http.StatusInternalServerError, "internal"
}

// respondError writes err with its mapped status. Server-side failures are logged and
// their details withheld from the client.
func respondError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	status, errType := statusFor(err)
	body := errorBody{Error: errorDetail{Message: err.Error(), Type: errType}}

	switch {
	case status == http.StatusInternalServerError:
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", log.FieldOperation, op, log.FieldError, err.Error())
		body.Error.Message = "internal error"
	case status == http.StatusServiceUnavailable:
		log.FromContext(ctx).WarnContext(ctx, "Request interrupted", log.FieldOperation, op, log.FieldError, err.Error())
		body.Error.Retryable = core.Retryable(err)
		w.Header().Set("Retry-After", "1")
	}

	var overlap *core.OverlapError
	if errors.As(err, &overlap) {
		body.Error.Overlap = &overlapDetail{VersionA: overlap.VersionA, VersionB: overlap.VersionB, Period: overlap.Period}
	}
	writeJSON(w, status, body)
}

type moneyResponse struct {
	Amount     decimal.Decimal `json:"amount"`
	Unit       string          `json:"unit"`
	RateToBase decimal.Decimal `json:"rate_to_base"`
	InBase     decimal.Decimal `json:"in_base"`
}

func moneyOf(m core.Money) moneyResponse {
	return moneyResponse{Amount: m.Amount, Unit: m.Unit, RateToBase: m.RateToBase, InBase: m.InBase()}
}

type linkResponse struct {
	CommitmentID uuid.UUID     `json:"commitment_id"`
	Role         core.LinkRole `json:"role"`
}

type commitmentResponse struct {
	ID          uuid.UUID     `json:"id"`
	Flow        core.FlowType `json:"flow"`
	Name        string        `json:"name"`
	CategoryRef string        `json:"category_ref,omitempty"`
	Important   bool          `json:"important"`
	Link        *linkResponse `json:"link,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func commitmentOf(c core.Commitment) commitmentResponse {
	out := commitmentResponse{
		ID:          c.ID,
		Flow:        c.Flow,
		Name:        c.Name,
		CategoryRef: c.CategoryRef,
		Important:   c.Important,
		CreatedAt:   c.CreatedAt,
	}
	if c.Link != nil {
		out.Link = &linkResponse{CommitmentID: c.Link.CommitmentID, Role: c.Link.Role}
	}
	return out
}

type termResponse struct {
	ID             uuid.UUID           `json:"id"`
	CommitmentID   uuid.UUID           `json:"commitment_id"`
	Version        int                 `json:"version"`
	Shape          string              `json:"shape"`
	EffectiveFrom  core.Period         `json:"effective_from"`
	EffectiveUntil *core.Period        `json:"effective_until,omitempty"`
	Frequency      core.Frequency      `json:"frequency"`
	Installments   *int                `json:"installments,omitempty"`
	DueDay         int                 `json:"due_day"`
	Amount         moneyResponse       `json:"amount"`
	Divided        bool                `json:"divided"`
	Estimation     core.EstimationMode `json:"estimation,omitempty"`
}

func termOf(t core.Term) termResponse {
	return termResponse{
		ID:             t.ID,
		CommitmentID:   t.CommitmentID,
		Version:        t.Version,
		Shape:          t.Shape().String(),
		EffectiveFrom:  t.EffectiveFrom,
		EffectiveUntil: t.EffectiveUntil,
		Frequency:      t.Frequency,
		Installments:   t.Installments,
		DueDay:         t.DueDay,
		Amount:         moneyOf(t.Amount),
		Divided:        t.Divided,
		Estimation:     t.Estimation,
	}
}

type paymentResponse struct {
	ID              uuid.UUID        `json:"id"`
	CommitmentID    uuid.UUID        `json:"commitment_id"`
	Period          core.Period      `json:"period"`
	Amount          moneyResponse    `json:"amount"`
	Settled         bool             `json:"settled"`
	SettledOn       *core.Date       `json:"settled_on,omitempty"`
	DueDateOverride *core.Date       `json:"due_date_override,omitempty"`
	Note            string           `json:"note,omitempty"`
	TermID          *uuid.UUID       `json:"term_id,omitempty"`
	Orphan          core.OrphanState `json:"orphan,omitempty"`
}

func paymentOf(p core.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		CommitmentID:    p.CommitmentID,
		Period:          p.Period,
		Amount:          moneyOf(p.Amount),
		Settled:         p.Settled(),
		SettledOn:       p.SettledOn,
		DueDateOverride: p.DueDateOverride,
		Note:            p.Note,
		TermID:          p.TermID,
		Orphan:          p.Orphan,
	}
}

func paymentsOf(list []core.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, paymentOf(p))
	}
	return out
}

type commitmentViewResponse struct {
	commitmentResponse
	Terms    []termResponse    `json:"terms"`
	Payments []paymentResponse `json:"payments"`
}

func commitmentViewOf(v services.CommitmentView) commitmentViewResponse {
	out := commitmentViewResponse{
		commitmentResponse: commitmentOf(v.Commitment),
		Terms:              make([]termResponse, 0, len(v.Terms)),
		Payments:           paymentsOf(v.Payments),
	}
	for _, t := range v.Terms {
		out.Terms = append(out.Terms, termOf(t))
	}
	return out
}

type auditResponse struct {
	ID        uuid.UUID   `json:"id"`
	PaymentID uuid.UUID   `json:"payment_id"`
	OldPeriod core.Period `json:"old_period"`
	OldTermID *uuid.UUID  `json:"old_term_id"`
	NewPeriod core.Period `json:"new_period"`
	NewTermID *uuid.UUID  `json:"new_term_id"`
	Reason    string      `json:"reason"`
	At        time.Time   `json:"at"`
}

func auditOf(list []core.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(list))
	for _, e := range list {
		out = append(out, auditResponse{
			ID:        e.ID,
			PaymentID: e.PaymentID,
			OldPeriod: e.OldPeriod,
			OldTermID: e.OldTermID,
			NewPeriod: e.NewPeriod,
			NewTermID: e.NewTermID,
			Reason:    e.Reason,
			At:        e.At,
		})
	}
	return out
}

type reconcileResponse struct {
	Updated  int             `json:"updated"`
	Orphaned []uuid.UUID     `json:"orphaned"`
	Audit    []auditResponse `json:"audit"`
}

func reconcileOf(res reconcile.Result) reconcileResponse {
	out := reconcileResponse{
		Updated:  len(res.Updated),
		Orphaned: make([]uuid.UUID, 0, len(res.Orphaned)),
		Audit:    auditOf(res.Audit),
	}
	for _, p := range res.Orphaned {
		out.Orphaned = append(out.Orphaned, p.ID)
	}
	return out
}

type monthTotalsResponse struct {
	Period         core.Period     `json:"period"`
	Income         decimal.Decimal `json:"income"`
	Expenses       decimal.Decimal `json:"expenses"`
	Balance        decimal.Decimal `json:"balance"`
	PaidIncome     decimal.Decimal `json:"paid_income"`
	PaidExpenses   decimal.Decimal `json:"paid_expenses"`
	HasIncomeData  bool            `json:"has_income_data"`
	HasExpenseData bool            `json:"has_expense_data"`
}

func monthTotalsOf(list []core.MonthTotals) []monthTotalsResponse {
	out := make([]monthTotalsResponse, 0, len(list))
	for _, mt := range list {
		out = append(out, monthTotalsResponse(mt))
	}
	return out
}

type arrearsItemResponse struct {
	CommitmentID uuid.UUID       `json:"commitment_id"`
	Name         string          `json:"name"`
	Flow         core.FlowType   `json:"flow"`
	Period       core.Period     `json:"period"`
	DueDate      core.Date       `json:"due_date"`
	Amount       decimal.Decimal `json:"amount"`
	InWindow     bool            `json:"in_window"`
}

type arrearsResponse struct {
	Items         []arrearsItemResponse `json:"items"`
	Total         decimal.Decimal       `json:"total"`
	Receivable    decimal.Decimal       `json:"receivable"`
	OutsideWindow decimal.Decimal       `json:"outside_window"`
}

func arrearsOf(b core.ArrearsBacklog) arrearsResponse {
	out := arrearsResponse{
		Items:         make([]arrearsItemResponse, 0, len(b.Items)),
		Total:         b.Total,
		Receivable:    b.Receivable,
		OutsideWindow: b.OutsideWindow,
	}
	for _, it := range b.Items {
		out.Items = append(out.Items, arrearsItemResponse(it))
	}
	return out
}

type upcomingResponse struct {
	CommitmentID uuid.UUID       `json:"commitment_id"`
	Name         string          `json:"name"`
	Important    bool            `json:"important"`
	Period       core.Period     `json:"period"`
	DueDate      core.Date       `json:"due_date"`
	Amount       decimal.Decimal `json:"amount"`
	Cuota        int             `json:"cuota,omitempty"`
	Installments int             `json:"installments,omitempty"`
	Status       core.Status     `json:"status"`
	DaysUntil    int             `json:"days_until"`
	Urgency      core.Urgency    `json:"urgency"`
}

func upcomingOf(list []core.UpcomingItem) []upcomingResponse {
	out := make([]upcomingResponse, 0, len(list))
	for _, it := range list {
		out = append(out, upcomingResponse(it))
	}
	return out
}

type scheduleRowResponse struct {
	TermID       uuid.UUID       `json:"term_id"`
	Version      int             `json:"version"`
	Period       core.Period     `json:"period"`
	Cuota        int             `json:"cuota,omitempty"`
	Installments int             `json:"installments,omitempty"`
	DueDate      core.Date       `json:"due_date"`
	Amount       decimal.Decimal `json:"amount"`
	Status       core.Status     `json:"status"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
}

func scheduleOf(rows []core.ScheduleRow) []scheduleRowResponse {
	out := make([]scheduleRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, scheduleRowResponse(row))
	}
	return out
}
