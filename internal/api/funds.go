package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/storage"
)

type createFundRequest struct {
	Name               string `json:"name"`
	CustodianAccountID string `json:"custodian_account_id"`
}

type movementRequest struct {
	OriginAccountID string `json:"origin_account_id"`
	Amount          string `json:"amount"`
	Date            string `json:"date"`
	QuotaValue      string `json:"quota_value"`
}

func (s *Server) handleListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := s.svc.ListFunds(r.Context(), userFrom(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if funds == nil {
		funds = []storage.Fund{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"funds": funds})
}

func (s *Server) handleCreateFund(w http.ResponseWriter, r *http.Request) {
	var req createFundRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	fund, err := s.svc.CreateFund(r.Context(), userFrom(r), req.Name, req.CustodianAccountID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fund)
}

func (s *Server) handleGetFund(w http.ResponseWriter, r *http.Request) {
	fund, err := s.svc.GetFund(r.Context(), userFrom(r), chi.URLParam(r, "fundID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fund)
}

func (s *Server) handleDeleteFund(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteFund(r.Context(), userFrom(r), chi.URLParam(r, "fundID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconcileFund(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.ReconcileFund(r.Context(), userFrom(r), chi.URLParam(r, "fundID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListMovements(r.Context(), userFrom(r), chi.URLParam(r, "fundID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []storage.Movement{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"movements": list})
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, err)
		return
	}
	quota, err := ledger.ParseQuota(req.QuotaValue)
	if err != nil {
		respondError(w, err)
		return
	}
	mv, err := s.svc.Contribute(r.Context(), userFrom(r), ledger.ContributionInput{
		FundID:          chi.URLParam(r, "fundID"),
		OriginAccountID: req.OriginAccountID,
		Amount:          amount,
		Date:            date,
		QuotaValue:      quota,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mv)
}

func (s *Server) handleEditContribution(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, err)
		return
	}
	quota, err := ledger.ParseQuota(req.QuotaValue)
	if err != nil {
		respondError(w, err)
		return
	}
	mv, err := s.svc.EditContribution(r.Context(), userFrom(r), chi.URLParam(r, "movementID"), ledger.ContributionEdit{
		OriginAccountID: req.OriginAccountID,
		Amount:          amount,
		Date:            date,
		QuotaValue:      quota,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mv)
}

func (s *Server) handleDeleteContribution(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteContribution(r.Context(), userFrom(r), chi.URLParam(r, "movementID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
