package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/storage"
)

type createCategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	uc := userFrom(r)
	names, err := s.svc.CategoryNames(r.Context(), uc)
	if err != nil {
		respondError(w, err)
		return
	}
	custom, err := s.svc.ListCategories(r.Context(), uc)
	if err != nil {
		respondError(w, err)
		return
	}
	if custom == nil {
		custom = []storage.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"names":  names,
		"custom": custom,
	})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	c, err := s.svc.CreateCategory(r.Context(), userFrom(r), req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCategory(r.Context(), userFrom(r), chi.URLParam(r, "categoryID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Summary(r.Context(), userFrom(r), r.URL.Query().Get("month"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	accounts, funds, err := s.svc.ReconcileAll(r.Context(), userFrom(r))
	if err != nil {
		respondError(w, err)
		return
	}
	consistent := true
	for _, rec := range append(append([]ledger.Reconciliation{}, accounts...), funds...) {
		consistent = consistent && rec.Consistent
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consistent": consistent,
		"accounts":   accounts,
		"funds":      funds,
	})
}
