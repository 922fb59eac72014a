package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"cart", "checkout", "full"} {
		mode, err := parseMode(valid)
		if err != nil {
			t.Errorf("parseMode(%q) failed: %v", valid, err)
		}
		if string(mode) != valid {
			t.Errorf("parseMode(%q) = %q", valid, mode)
		}
	}

	if _, err := parseMode("spray"); err == nil {
		t.Error("expected error for unsupported mode")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	if got := percentile(sorted, 0); got != 1 {
		t.Errorf("p0 = %f, want 1", got)
	}
	if got := percentile(sorted, 100); got != 5 {
		t.Errorf("p100 = %f, want 5", got)
	}
	if got := percentile(sorted, 50); got != 3 {
		t.Errorf("p50 = %f, want 3", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %f, want 0", got)
	}
}

func TestBuildLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{4, 1, 3, 2})

	if summary.Min != 1 || summary.Max != 4 {
		t.Errorf("unexpected min/max: %+v", summary)
	}
	if summary.Avg != 2.5 {
		t.Errorf("unexpected avg: %f", summary.Avg)
	}

	empty := buildLatencySummary(nil)
	if empty != (latencySummary{}) {
		t.Errorf("expected zero summary, got %+v", empty)
	}
}

func TestRatio(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Errorf("ratio = %f, want 0.25", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Errorf("ratio with zero total = %f, want 0", got)
	}
}

func TestCollector_Record(t *testing.T) {
	col := newCollector()
	col.record("cart.get", 10*time.Millisecond, 200, true)
	col.record("cart.get", 20*time.Millisecond, 500, false)
	col.record("scenario", 30*time.Millisecond, 0, true)

	result := col.buildReport(time.Now(), time.Second)
	if result.TotalScenarios != 1 || result.SuccessScenarios != 1 {
		t.Errorf("unexpected scenario counts: %+v", result)
	}

	cartGet, ok := result.Calls["cart.get"]
	if !ok {
		t.Fatal("cart.get stats missing")
	}
	if cartGet.Calls != 2 || cartGet.Failed != 1 {
		t.Errorf("unexpected cart.get stats: %+v", cartGet)
	}
	if cartGet.Statuses["500"] != 1 {
		t.Errorf("unexpected statuses: %v", cartGet.Statuses)
	}
	if cartGet.ErrorRate != 0.5 {
		t.Errorf("unexpected error rate: %f", cartGet.ErrorRate)
	}
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("secret", "owner-1")
	if err != nil {
		t.Fatalf("bearerToken failed: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("expected a JWT, got %q", token)
	}
}

// fakeStorefront поднимает минимальный сервер, отвечающий как REST API
// витрины, чтобы прогнать сценарии без реального приложения.
func fakeStorefront(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/cart/lines/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"owner_ref": "x", "lines": []any{}})
	})
	mux.HandleFunc("GET /api/v1/cart", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"owner_ref": "x", "lines": []any{}})
	})
	mux.HandleFunc("POST /api/v1/checkout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"state":   "awaiting_provider_callback",
			"session": map[string]any{"id": "sess-1", "amount_minor": 1000, "currency": "USD"},
		})
	})
	mux.HandleFunc("POST /api/v1/checkout/sessions/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"state": "cancelled"})
	})
	mux.HandleFunc("POST /api/v1/provider/callback", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "order-1", "status": "paid"})
	})
	mux.HandleFunc("GET /api/v1/orders/sessions/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "order-1", "status": "paid"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestRunScenario_CartMode(t *testing.T) {
	server := fakeStorefront(t)

	cfg := config{
		baseURL:    server.URL,
		mode:       modeCart,
		jwtSecret:  "secret",
		productRef: "candle-1",
		quantity:   1,
		ownerTag:   "load",
	}
	col := newCollector()

	if err := runScenario(server.Client(), cfg, 0, "run-1", col); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.TotalScenarios != 1 || result.FailedScenarios != 0 {
		t.Errorf("unexpected report: %+v", result)
	}
	if _, ok := result.Calls["cart.put"]; !ok {
		t.Error("expected cart.put stats")
	}
	if _, ok := result.Calls["checkout.begin"]; ok {
		t.Error("cart mode must not begin checkout")
	}
}

func TestRunScenario_FullMode(t *testing.T) {
	server := fakeStorefront(t)

	cfg := config{
		baseURL:        server.URL,
		mode:           modeFull,
		jwtSecret:      "secret",
		callbackSecret: "callback-secret",
		productRef:     "candle-1",
		quantity:       1,
		ownerTag:       "load",
	}
	col := newCollector()

	if err := runScenario(server.Client(), cfg, 0, "run-1", col); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}

	result := col.buildReport(time.Now(), time.Second)
	for _, name := range []string{"cart.put", "cart.get", "checkout.begin", "provider.callback", "orders.get"} {
		if _, ok := result.Calls[name]; !ok {
			t.Errorf("expected %s stats", name)
		}
	}
}

func TestRunScenario_FailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cfg := config{
		baseURL:    server.URL,
		mode:       modeCart,
		jwtSecret:  "secret",
		productRef: "candle-1",
		quantity:   1,
		ownerTag:   "load",
	}
	col := newCollector()

	if err := runScenario(server.Client(), cfg, 0, "run-1", col); err == nil {
		t.Fatal("expected scenario error for 500 responses")
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.FailedScenarios != 1 {
		t.Errorf("expected one failed scenario, got %+v", result)
	}
}
