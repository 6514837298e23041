package http

import (
	"net/http"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, userID string) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(err.Error()).Write(w)
		return
	}
	rec, err := req.toRecord(userID)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}

	saved, err := s.expenses.Create(r.Context(), rec)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+saved.ID).
		Body(saved).
		Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, userID string) {
	period, err := parsePeriod(r.URL.Query(), s.currentMonth())
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	records, err := s.expenses.List(r.Context(), userID, period)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"expenses": records,
		"count":    len(records),
		"period":   period,
	}).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request, userID string) {
	e, err := s.expenses.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, userID string) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(err.Error()).Write(w)
		return
	}
	rec, err := req.toRecord(userID)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	rec.ID = r.PathValue("id")

	saved, err := s.expenses.Update(r.Context(), rec)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(saved).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.expenses.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleStatistics defaults to the current calendar month.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, userID string) {
	period, err := parsePeriod(r.URL.Query(), s.currentMonth())
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	stats, err := s.expenses.Statistics(r.Context(), userID, period)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(stats).Write(w)
}
