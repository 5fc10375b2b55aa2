package http

import (
	"net/http"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/log"
)

func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	list, err := s.commitments.Commitments(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		respondError(r.Context(), w, err, log.OpList)
		return
	}
	out := make([]commitmentResponse, 0, len(list))
	for _, c := range list {
		out = append(out, commitmentOf(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	c, err := s.commitments.CreateCommitment(r.Context(), req.toCommitment(ownerFrom(r.Context())))
	if err != nil {
		respondError(r.Context(), w, err, log.OpCreate)
		return
	}
	w.Header().Set("Location", "/api/commitments/"+c.ID.String())
	writeJSON(w, http.StatusCreated, commitmentOf(c))
}

func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	view, err := s.commitments.Commitment(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, commitmentViewOf(view))
}

func (s *Server) handleUpdateCommitment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	var req commitmentPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	c, err := s.commitments.UpdateCommitment(r.Context(), ownerFrom(r.Context()), id, req.toPatch())
	if err != nil {
		respondError(r.Context(), w, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, commitmentOf(c))
}

func (s *Server) handleDeleteCommitment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpDelete)
		return
	}
	if err := s.commitments.DeleteCommitment(r.Context(), ownerFrom(r.Context()), id); err != nil {
		respondError(r.Context(), w, err, log.OpDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLink pairs {id} with the partner; role is the role {id} takes, primary by default.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpLink)
		return
	}
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, err, log.OpLink)
		return
	}
	if req.PartnerID == uuid.Nil {
		respondError(r.Context(), w, badRequest("partner_id is required"), log.OpLink)
		return
	}

	primary := id
	switch req.Role {
	case "", core.Primary:
	case core.Secondary:
		primary = req.PartnerID
	default:
		respondError(r.Context(), w, core.ErrInvalidLink, log.OpLink)
		return
	}

	owner := ownerFrom(r.Context())
	if err := s.commitments.Link(r.Context(), owner, id, req.PartnerID, primary); err != nil {
		respondError(r.Context(), w, err, log.OpLink)
		return
	}
	view, err := s.commitments.Commitment(r.Context(), owner, id)
	if err != nil {
		respondError(r.Context(), w, err, log.OpLink)
		return
	}
	writeJSON(w, http.StatusOK, commitmentOf(view.Commitment))
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpLink)
		return
	}
	if err := s.commitments.Unlink(r.Context(), ownerFrom(r.Context()), id); err != nil {
		respondError(r.Context(), w, err, log.OpLink)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpReconcile)
		return
	}
	res, err := s.commitments.Reconcile(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		respondError(r.Context(), w, err, log.OpReconcile)
		return
	}
	writeJSON(w, http.StatusOK, reconcileOf(res))
}

func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.commitments.ReconcileAll(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		respondError(r.Context(), w, err, log.OpReconcile)
		return
	}
	out := make(map[string]reconcileResponse, len(results))
	for id, res := range results {
		out[id.String()] = reconcileOf(res)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCommitmentOrphans(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpList)
		return
	}
	list, err := s.commitments.Orphans(r.Context(), ownerFrom(r.Context()), &id)
	if err != nil {
		respondError(r.Context(), w, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, paymentsOf(list))
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	list, err := s.commitments.Orphans(r.Context(), ownerFrom(r.Context()), nil)
	if err != nil {
		respondError(r.Context(), w, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, paymentsOf(list))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpList)
		return
	}
	list, err := s.commitments.AuditTrail(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		respondError(r.Context(), w, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, auditOf(list))
}
