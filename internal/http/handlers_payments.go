package http

import (
	"net/http"

	"scadenze/internal/core"
	"scadenze/internal/log"
)

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	p, err := req.toPayment()
	if err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	recorded, err := s.commitments.RecordPayment(r.Context(), ownerFrom(r.Context()), id, p)
	if err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, paymentOf(recorded))
}

// handleSettlePayment marks a payment settled, on today unless settled_on is given.
func (s *Server) handleSettlePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpSettle)
		return
	}
	var req settleRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(r.Context(), w, err, log.OpSettle)
			return
		}
	}

	on, err := s.today(r)
	if err != nil {
		respondError(r.Context(), w, err, log.OpSettle)
		return
	}
	if req.SettledOn != nil {
		on = *req.SettledOn
	}
	var amount *core.Money
	if req.Amount != nil {
		m, err := req.Amount.toMoney()
		if err != nil {
			respondError(r.Context(), w, err, log.OpSettle)
			return
		}
		amount = &m
	}

	settled, err := s.commitments.SettlePayment(r.Context(), ownerFrom(r.Context()), id, on, amount)
	if err != nil {
		respondError(r.Context(), w, err, log.OpSettle)
		return
	}
	writeJSON(w, http.StatusOK, paymentOf(settled))
}

func (s *Server) handleAcceptOrphan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	accepted, err := s.commitments.AcceptOrphan(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, paymentOf(accepted))
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpDelete)
		return
	}
	if err := s.commitments.DeletePayment(r.Context(), ownerFrom(r.Context()), id); err != nil {
		respondError(r.Context(), w, err, log.OpDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
