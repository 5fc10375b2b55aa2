package http

import (
	"net/http"

	"scadenze/internal/log"
)

// handleMonthlyTotals serves the totals window centered on ?month (default: this month).
func (s *Server) handleMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	today, err := s.today(r)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	center, err := queryPeriod(r, "month", today.Period())
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	totals, err := s.reports.MonthlyTotals(r.Context(), ownerFrom(r.Context()), center)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, monthTotalsOf(totals))
}

func (s *Server) handleArrears(w http.ResponseWriter, r *http.Request) {
	today, err := s.today(r)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	backlog, err := s.reports.ArrearsBacklog(r.Context(), ownerFrom(r.Context()), today)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, arrearsOf(backlog))
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	today, err := s.today(r)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	p, err := queryPeriod(r, "month", today.Period())
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	items, err := s.reports.Upcoming(r.Context(), ownerFrom(r.Context()), p, today)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, upcomingOf(items))
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	today, err := s.today(r)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	rows, err := s.reports.Schedule(r.Context(), ownerFrom(r.Context()), id, today)
	if err != nil {
		respondError(r.Context(), w, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, scheduleOf(rows))
}
