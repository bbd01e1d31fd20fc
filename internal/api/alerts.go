package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/storage"
)

type createAlertRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	DayOfMonth  int               `json:"day_of_month"`
	Category    string            `json:"category"`
	Amount      string            `json:"amount"`
	AccountID   string            `json:"account_id"`
	Type        storage.AlertType `json:"type"`
}

type payRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.svc.ListAlerts(r.Context(), userFrom(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if alerts == nil {
		alerts = []storage.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) handleDueAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.svc.DueAlerts(r.Context(), userFrom(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if alerts == nil {
		alerts = []storage.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	amount, err := parseOptionalAmount(req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}
	alert, err := s.svc.CreateAlert(r.Context(), userFrom(r), ledger.AlertInput{
		Title:       req.Title,
		Description: req.Description,
		DayOfMonth:  req.DayOfMonth,
		Category:    req.Category,
		Amount:      amount,
		AccountID:   req.AccountID,
		Type:        req.Type,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteAlert(r.Context(), userFrom(r), chi.URLParam(r, "alertID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkPaid accepts an empty body; the alert's own account and amount
// are used unless overridden.
func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, err)
		return
	}
	amount, err := parseOptionalAmount(req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}
	alert, err := s.svc.MarkAlertPaid(r.Context(), userFrom(r), chi.URLParam(r, "alertID"),
		ledger.PayOptions{AccountID: req.AccountID, Amount: amount})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleMarkUnpaid(w http.ResponseWriter, r *http.Request) {
	alert, err := s.svc.MarkAlertUnpaid(r.Context(), userFrom(r), chi.URLParam(r, "alertID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
