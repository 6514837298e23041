package http

import (
	"net/http"
	"strconv"

	"smartbudget/internal/core"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, userID string) {
	p, err := s.alerts.Profile(r.Context(), userID)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(p).Write(w)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request, userID string) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(err.Error()).Write(w)
		return
	}
	p := core.BudgetProfile{UserID: userID, MonthlyBudget: req.MonthlyBudget, MonthlyIncome: req.MonthlyIncome}
	if err := s.alerts.SaveProfile(r.Context(), p); err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(p).Write(w)
}

// handleBudgetStatus is read-only: it reports the overrun tier without
// storing alerts.
func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := s.alerts.Analyze(r.Context(), userID)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(res.BudgetStatus).Write(w)
}

// handleAnomalies runs a full evaluation and stores any alerts that fire.
// With dry_run=true nothing is written.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request, userID string) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	if dryRun {
		res, err := s.alerts.Analyze(r.Context(), userID)
		if err != nil {
			ErrorResponse(r, err).Write(w)
			return
		}
		NewJSONResponse().Body(map[string]any{"result": res, "alerts_created": []core.AlertRecord{}}).Write(w)
		return
	}

	ev, err := s.alerts.Evaluate(r.Context(), userID)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	if ev.Created == nil {
		ev.Created = []core.AlertRecord{}
	}
	NewJSONResponse().Body(ev).Write(w)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request, userID string) {
	f, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	page, err := s.alerts.List(r.Context(), userID, f)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(page).Write(w)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request, userID string) {
	var req alertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(err.Error()).Write(w)
		return
	}
	a, err := s.alerts.Create(r.Context(), core.AlertRecord{
		UserID:    userID,
		AlertType: req.AlertType,
		Title:     req.Title,
		Message:   req.Message,
		Priority:  req.Priority,
		Metadata:  req.Metadata,
	})
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(a).Write(w)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := s.alerts.UnreadCount(r.Context(), userID)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(map[string]int{"unread_count": n}).Write(w)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request, userID string) {
	a, err := s.alerts.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(a).Write(w)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, userID string) {
	a, err := s.alerts.MarkAsRead(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(a).Write(w)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := s.alerts.MarkAllAsRead(r.Context(), userID)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(map[string]int{"marked": n}).Write(w)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.alerts.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCheckBudget(w http.ResponseWriter, r *http.Request, userID string) {
	var req checkBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(err.Error()).Write(w)
		return
	}
	if len(req.CategoryLimits) == 0 {
		ErrorResponse(r, core.NewValidationError("category_limits", "must not be empty")).Write(w)
		return
	}
	check, err := s.alerts.CheckCategoryBudgets(r.Context(), userID, req.CategoryLimits)
	if err != nil {
		ErrorResponse(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(check).Write(w)
}
