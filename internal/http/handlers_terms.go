package http

import (
	"net/http"

	"scadenze/internal/log"
)

// handleAddTerm appends a new term version; overlap with an existing version is a 409.
func (s *Server) handleAddTerm(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	var req termRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	term, err := req.toTerm()
	if err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	created, err := s.commitments.AddTerm(r.Context(), ownerFrom(r.Context()), id, term)
	if err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, termOf(created))
}

func (s *Server) handleUpdateTerm(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	var req termRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	term, err := req.toTerm()
	if err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	updated, err := s.commitments.UpdateTerm(r.Context(), ownerFrom(r.Context()), id, term)
	if err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, termOf(updated))
}

func (s *Server) handleDeleteTerm(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpDelete)
		return
	}
	if err := s.commitments.DeleteTerm(r.Context(), ownerFrom(r.Context()), id); err != nil {
		respondError(r.Context(), w, err, log.OpDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
