// Package api exposes the ledger operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/ledger"
)

// UserHeader selects whose ledger a request operates on.
const UserHeader = "X-User-ID"

type Server struct {
	svc            *ledger.Service
	defaultUser    string
	metricsEnabled bool
	startTime      time.Time
}

// NewServer creates a server. Requests without a UserHeader act on
// defaultUser.
func NewServer(svc *ledger.Service, defaultUser string) *Server {
	return &Server{svc: svc, defaultUser: defaultUser, startTime: time.Now()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"uptime": time.Since(s.startTime).Round(time.Second).String(),
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.userMiddleware)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Route("/{accountID}", func(r chi.Router) {
				r.Get("/", s.handleGetAccount)
				r.Delete("/", s.handleDeleteAccount)
				r.Get("/reconcile", s.handleReconcileAccount)
				r.Get("/transactions", s.handleListTransactions)
				r.Post("/transactions", s.handlePostTransaction)
				r.Put("/transactions/{transactionID}", s.handleEditTransaction)
				r.Delete("/transactions/{transactionID}", s.handleDeleteTransaction)
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/", s.handleCreateAlert)
			r.Get("/due", s.handleDueAlerts)
			r.Delete("/{alertID}", s.handleDeleteAlert)
			r.Post("/{alertID}/paid", s.handleMarkPaid)
			r.Delete("/{alertID}/paid", s.handleMarkUnpaid)
		})

		r.Route("/funds", func(r chi.Router) {
			r.Get("/", s.handleListFunds)
			r.Post("/", s.handleCreateFund)
			r.Route("/{fundID}", func(r chi.Router) {
				r.Get("/", s.handleGetFund)
				r.Delete("/", s.handleDeleteFund)
				r.Get("/reconcile", s.handleReconcileFund)
				r.Get("/movements", s.handleListMovements)
				r.Post("/movements", s.handleContribute)
			})
		})
		r.Put("/movements/{movementID}", s.handleEditContribution)
		r.Delete("/movements/{movementID}", s.handleDeleteContribution)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Delete("/{categoryID}", s.handleDeleteCategory)
		})

		r.Get("/summary", s.handleSummary)
		r.Get("/reconcile", s.handleReconcileAll)
	})

	return r
}

type userKey struct{}

func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			id = s.defaultUser
		}
		if id == "" {
			writeError(w, http.StatusUnauthorized, UserHeader+" header is required")
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, ledger.UserContext{UserID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) ledger.UserContext {
	uc, _ := r.Context().Value(userKey{}).(ledger.UserContext)
	return uc
}

// decode reads a JSON body into v. Failures are reported as invalid input.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %w", ledger.ErrInvalidInput, err)
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// respondError maps ledger errors onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	var cascade *ledger.CascadeError
	switch {
	case errors.As(err, &cascade):
		log.Printf("api: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]interface{}{
				"message": err.Error(),
				"type":    "cascade_incomplete",
			},
			"fund_id":   cascade.FundID,
			"reversed":  cascade.Reversed,
			"remaining": cascade.Remaining,
		})
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidInput), errors.Is(err, ledger.ErrLinkedTransaction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrAlreadyPaid), errors.Is(err, ledger.ErrAccountInUse),
		errors.Is(err, ledger.ErrFundDeleting), errors.Is(err, ledger.ErrCategoryExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrConflictRetryExhausted):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("api: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates. Empty
// input is the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD or RFC 3339", ledger.ErrInvalidInput, raw)
	}
	return t, nil
}

// parseOptionalAmount treats empty input as zero, meaning "not supplied".
func parseOptionalAmount(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return ledger.ParseAmount(raw)
}
