// Package http provides HTTP server and handler implementations.
//
// This file decodes JSON request bodies and URL parameters into domain values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
	"scadenze/internal/services"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input that never reached domain validation.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a single JSON object from the body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest("invalid JSON: %v", err)
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return nil
}

type moneyRequest struct {
	Amount     string          `json:"amount"`
	Unit       string          `json:"unit"`
	RateToBase decimal.Decimal `json:"rate_to_base"`
}

// toMoney parses the amount, accepting either decimal separator.
func (m moneyRequest) toMoney() (core.Money, error) {
	amount, err := core.ParseAmount(m.Amount)
	if err != nil {
		return core.Money{}, fmt.Errorf("amount %q: %w", m.Amount, err)
	}
	return core.Money{Amount: amount, Unit: sanitizeInput(m.Unit), RateToBase: m.RateToBase}, nil
}

type linkRequest struct {
	PartnerID uuid.UUID     `json:"partner_id"`
	Role      core.LinkRole `json:"role"`
}

type commitmentRequest struct {
	Flow        core.FlowType `json:"flow"`
	Name        string        `json:"name"`
	CategoryRef string        `json:"category_ref"`
	Important   bool          `json:"important"`
}

func (c commitmentRequest) toCommitment(owner string) core.Commitment {
	return core.Commitment{
		OwnerID:     owner,
		Flow:        core.FlowType(strings.ToLower(string(c.Flow))),
		Name:        sanitizeInput(c.Name),
		CategoryRef: sanitizeInput(c.CategoryRef),
		Important:   c.Important,
	}
}

type commitmentPatchRequest struct {
	Name        *string `json:"name"`
	CategoryRef *string `json:"category_ref"`
	Important   *bool   `json:"important"`
}

func (p commitmentPatchRequest) toPatch() services.CommitmentPatch {
	var patch services.CommitmentPatch
	if p.Name != nil {
		name := sanitizeInput(*p.Name)
		patch.Name = &name
	}
	if p.CategoryRef != nil {
		ref := sanitizeInput(*p.CategoryRef)
		patch.CategoryRef = &ref
	}
	patch.Important = p.Important
	return patch
}

type termRequest struct {
	EffectiveFrom  core.Period         `json:"effective_from"`
	EffectiveUntil *core.Period        `json:"effective_until"`
	Frequency      core.Frequency      `json:"frequency"`
	Installments   *int                `json:"installments"`
	DueDay         int                 `json:"due_day"`
	Amount         moneyRequest        `json:"amount"`
	Divided        bool                `json:"divided"`
	Estimation     core.EstimationMode `json:"estimation"`
}

func (t termRequest) toTerm() (core.Term, error) {
	if t.EffectiveFrom.IsZero() {
		return core.Term{}, fmt.Errorf("effective_from: %w", core.ErrInvalidPeriod)
	}
	amount, err := t.Amount.toMoney()
	if err != nil {
		return core.Term{}, err
	}
	return core.Term{
		EffectiveFrom:  t.EffectiveFrom,
		EffectiveUntil: t.EffectiveUntil,
		Frequency:      core.Frequency(strings.ToLower(string(t.Frequency))),
		Installments:   t.Installments,
		DueDay:         t.DueDay,
		Amount:         amount,
		Divided:        t.Divided,
		Estimation:     core.EstimationMode(strings.ToLower(string(t.Estimation))),
	}, nil
}

type paymentRequest struct {
	Period          core.Period   `json:"period"`
	Amount          *moneyRequest `json:"amount"`
	SettledOn       *core.Date    `json:"settled_on"`
	DueDateOverride *core.Date    `json:"due_date_override"`
	Note            string        `json:"note"`
}

// toPayment leaves Amount zero when omitted so the service fills in the scheduled share.
func (p paymentRequest) toPayment() (core.Payment, error) {
	if p.Period.IsZero() {
		return core.Payment{}, fmt.Errorf("period: %w", core.ErrInvalidPeriod)
	}
	out := core.Payment{
		Period:          p.Period,
		SettledOn:       p.SettledOn,
		DueDateOverride: p.DueDateOverride,
		Note:            sanitizeInput(p.Note),
	}
	if p.Amount != nil {
		m, err := p.Amount.toMoney()
		if err != nil {
			return core.Payment{}, err
		}
		out.Amount = m
	}
	return out, nil
}

type settleRequest struct {
	SettledOn *core.Date    `json:"settled_on"`
	Amount    *moneyRequest `json:"amount"`
}

// pathUUID parses the named chi URL parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// queryPeriod reads a YYYY-MM query parameter, defaulting to def.
func queryPeriod(r *http.Request, name string, def core.Period) (core.Period, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	p, err := core.ParsePeriod(v)
	if err != nil {
		return core.Period{}, badRequest("%s: %v", name, err)
	}
	return p, nil
}

// queryDate reads a YYYY-MM-DD query parameter, defaulting to def.
func queryDate(r *http.Request, name string, def core.Date) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("%s: %v", name, err)
	}
	return d, nil
}

// sanitizeInput removes control characters except tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// today is the caller's notion of the current day, overridable per request.
func (s *Server) today(r *http.Request) (core.Date, error) {
	return queryDate(r, "today", core.DateOf(s.now().In(time.UTC)))
}
