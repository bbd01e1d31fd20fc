package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/storage"
)

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := storage.Open(storage.Options{Path: filepath.Join(t.TempDir(), "api.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := ledger.NewService(db, ledger.Options{Location: time.UTC, Now: func() time.Time { return now }})
	srv := NewServer(svc, "local")
	srv.EnableMetrics()
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func createAccount(t *testing.T, h http.Handler, name, opening string) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/accounts", `{"name":"`+name+`","opening_balance":"`+opening+`"}`)
	expectStatus(t, w, http.StatusCreated)
	return decodeBody(t, w)["id"].(string)
}

func TestHealth(t *testing.T) {
	h := setupServer(t)
	w := do(t, h, http.MethodGet, "/health", "")
	expectStatus(t, w, http.StatusOK)
	if decodeBody(t, w)["status"] != "ok" {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupServer(t)
	createAccount(t, h, "Conta", "1")
	w := do(t, h, http.MethodGet, "/metrics", "")
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "finboard_ledger_operations_total") {
		t.Error("ledger operation counter not exported")
	}
}

func TestTransactionFlow(t *testing.T) {
	h := setupServer(t)
	id := createAccount(t, h, "Nubank", "0")

	w := do(t, h, http.MethodPost, "/api/accounts/"+id+"/transactions",
		`{"amount":"500","type":"income","category":"Clientes"}`)
	expectStatus(t, w, http.StatusCreated)
	if got := decodeBody(t, w)["balance"]; got != "500" {
		t.Errorf("balance = %v, want 500", got)
	}

	w = do(t, h, http.MethodPost, "/api/accounts/"+id+"/transactions",
		`{"amount":"200,00","type":"expense","category":"Transporte","date":"2025-03-10"}`)
	expectStatus(t, w, http.StatusCreated)
	resp := decodeBody(t, w)
	if resp["balance"] != "300" {
		t.Errorf("balance = %v, want 300", resp["balance"])
	}
	txID := resp["transaction"].(map[string]interface{})["id"].(string)

	w = do(t, h, http.MethodPut, "/api/accounts/"+id+"/transactions/"+txID,
		`{"amount":"150","type":"expense","category":"Transporte"}`)
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["balance"]; got != "350" {
		t.Errorf("balance after edit = %v, want 350", got)
	}

	w = do(t, h, http.MethodDelete, "/api/accounts/"+id+"/transactions/"+txID, "")
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["balance"]; got != "500" {
		t.Errorf("balance after delete = %v, want 500", got)
	}

	w = do(t, h, http.MethodGet, "/api/reconcile", "")
	expectStatus(t, w, http.StatusOK)
	if decodeBody(t, w)["consistent"] != true {
		t.Errorf("ledger inconsistent: %s", w.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	h := setupServer(t)
	id := createAccount(t, h, "Conta", "10")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown account", http.MethodGet, "/api/accounts/nope", "", http.StatusNotFound},
		{"invalid amount", http.MethodPost, "/api/accounts/" + id + "/transactions",
			`{"amount":"-1","type":"expense","category":"Outros"}`, http.StatusBadRequest},
		{"too many decimals", http.MethodPost, "/api/accounts/" + id + "/transactions",
			`{"amount":"1.005","type":"expense","category":"Outros"}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/accounts/" + id + "/transactions",
			`{"amount":"1","type":"expense","category":"Outros","date":"yesterday"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/accounts", `{"nome":"x"}`, http.StatusBadRequest},
		{"bad month", http.MethodGet, "/api/summary?month=March", "", http.StatusBadRequest},
		{"duplicate category", http.MethodPost, "/api/categories", `{"name":"lazer"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			expectStatus(t, w, tt.want)
			if _, ok := decodeBody(t, w)["error"]; !ok {
				t.Errorf("missing error object: %s", w.Body.String())
			}
		})
	}
}

func TestAlertPayment(t *testing.T) {
	h := setupServer(t)
	acc := createAccount(t, h, "Conta", "1000")

	w := do(t, h, http.MethodPost, "/api/alerts",
		`{"title":"Internet","day_of_month":10,"category":"Moradia","amount":"120","account_id":"`+acc+`"}`)
	expectStatus(t, w, http.StatusCreated)
	alertID := decodeBody(t, w)["id"].(string)

	w = do(t, h, http.MethodGet, "/api/alerts/due", "")
	expectStatus(t, w, http.StatusOK)
	if due := decodeBody(t, w)["alerts"].([]interface{}); len(due) != 1 {
		t.Fatalf("expected 1 due alert, got %d", len(due))
	}

	w = do(t, h, http.MethodPost, "/api/alerts/"+alertID+"/paid", "")
	expectStatus(t, w, http.StatusOK)
	if decodeBody(t, w)["last_paid_month"] != "2025-03" {
		t.Errorf("alert not marked paid: %s", w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/alerts/"+alertID+"/paid", "")
	expectStatus(t, w, http.StatusConflict)

	w = do(t, h, http.MethodGet, "/api/accounts/"+acc, "")
	if got := decodeBody(t, w)["balance"]; got != "880" {
		t.Errorf("balance = %v, want 880", got)
	}

	w = do(t, h, http.MethodDelete, "/api/alerts/"+alertID+"/paid", "")
	expectStatus(t, w, http.StatusOK)
	w = do(t, h, http.MethodGet, "/api/accounts/"+acc, "")
	if got := decodeBody(t, w)["balance"]; got != "1000" {
		t.Errorf("balance = %v, want 1000", got)
	}
}

func TestInvestmentFlow(t *testing.T) {
	h := setupServer(t)
	x := createAccount(t, h, "X", "1000")
	y := createAccount(t, h, "Y", "1000")

	w := do(t, h, http.MethodPost, "/api/funds", `{"name":"Ações","custodian_account_id":"`+x+`"}`)
	expectStatus(t, w, http.StatusCreated)
	fundID := decodeBody(t, w)["id"].(string)

	w = do(t, h, http.MethodPost, "/api/funds/"+fundID+"/movements",
		`{"origin_account_id":"`+x+`","amount":"200","quota_value":"10"}`)
	expectStatus(t, w, http.StatusCreated)
	movementID := decodeBody(t, w)["id"].(string)

	w = do(t, h, http.MethodPut, "/api/movements/"+movementID,
		`{"origin_account_id":"`+y+`","amount":"150"}`)
	expectStatus(t, w, http.StatusOK)

	w = do(t, h, http.MethodDelete, "/api/accounts/"+y, "")
	expectStatus(t, w, http.StatusConflict)

	w = do(t, h, http.MethodGet, "/api/funds/"+fundID, "")
	if got := decodeBody(t, w)["balance"]; got != "150" {
		t.Errorf("fund balance = %v, want 150", got)
	}

	w = do(t, h, http.MethodDelete, "/api/funds/"+fundID, "")
	expectStatus(t, w, http.StatusNoContent)

	for _, id := range []string{x, y} {
		w = do(t, h, http.MethodGet, "/api/accounts/"+id, "")
		if got := decodeBody(t, w)["balance"]; got != "1000" {
			t.Errorf("account %s balance = %v, want 1000", id, got)
		}
	}
	w = do(t, h, http.MethodGet, "/api/funds/"+fundID, "")
	expectStatus(t, w, http.StatusNotFound)
}

func TestUserHeaderScopesData(t *testing.T) {
	h := setupServer(t)
	id := createAccount(t, h, "Conta", "1")

	w := do(t, h, http.MethodGet, "/api/accounts/"+id, "", UserHeader, "someone-else")
	expectStatus(t, w, http.StatusNotFound)

	w = do(t, h, http.MethodGet, "/api/accounts", "", UserHeader, "someone-else")
	expectStatus(t, w, http.StatusOK)
	if list := decodeBody(t, w)["accounts"].([]interface{}); len(list) != 0 {
		t.Errorf("other user sees %d accounts", len(list))
	}
}

func TestSummaryEndpoint(t *testing.T) {
	h := setupServer(t)
	id := createAccount(t, h, "Conta", "100")
	do(t, h, http.MethodPost, "/api/accounts/"+id+"/transactions", `{"amount":"40","type":"expense","category":"Lazer"}`)

	w := do(t, h, http.MethodGet, "/api/summary", "")
	expectStatus(t, w, http.StatusOK)
	resp := decodeBody(t, w)
	if resp["month"] != "2025-03" || resp["expense"] != "40" || resp["total_balance"] != "60" {
		t.Errorf("unexpected summary %s", w.Body.String())
	}
}
