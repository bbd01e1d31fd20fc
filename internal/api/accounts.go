package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/storage"
)

type createAccountRequest struct {
	Name           string `json:"name"`
	OpeningBalance string `json:"opening_balance"`
}

// transactionRequest carries amounts as strings so no float ever touches
// a monetary value.
type transactionRequest struct {
	Amount      string                  `json:"amount"`
	Type        storage.TransactionType `json:"type"`
	Category    string                  `json:"category"`
	Date        string                  `json:"date"`
	Description string                  `json:"description"`
}

func (req transactionRequest) input() (ledger.TransactionInput, error) {
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return ledger.TransactionInput{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return ledger.TransactionInput{}, err
	}
	return ledger.TransactionInput{
		Amount:      amount,
		Type:        req.Type,
		Category:    req.Category,
		Date:        date,
		Description: req.Description,
	}, nil
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.ListAccounts(r.Context(), userFrom(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if accounts == nil {
		accounts = []storage.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	opening := decimal.Zero
	if req.OpeningBalance != "" {
		var err error
		if opening, err = decimal.NewFromString(req.OpeningBalance); err != nil {
			writeError(w, http.StatusBadRequest, "opening_balance is not a number")
			return
		}
	}
	acc, err := s.svc.CreateAccount(r.Context(), userFrom(r), req.Name, opening)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.svc.GetAccount(r.Context(), userFrom(r), chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteAccount(r.Context(), userFrom(r), chi.URLParam(r, "accountID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconcileAccount(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.ReconcileAccount(r.Context(), userFrom(r), chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListTransactions(r.Context(), userFrom(r), chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []storage.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": list})
}

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(w, err)
		return
	}
	p, err := s.svc.PostTransaction(r.Context(), userFrom(r), chi.URLParam(r, "accountID"), in)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(w, err)
		return
	}
	p, err := s.svc.EditTransaction(r.Context(), userFrom(r),
		chi.URLParam(r, "accountID"), chi.URLParam(r, "transactionID"), in)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	balance, err := s.svc.DeleteTransaction(r.Context(), userFrom(r),
		chi.URLParam(r, "accountID"), chi.URLParam(r, "transactionID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.Posting{Balance: balance})
}
