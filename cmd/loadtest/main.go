package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

type loadMode string

const (
	modeCart     loadMode = "cart"
	modeCheckout loadMode = "checkout"
	modeFull     loadMode = "full"
)

type config struct {
	baseURL        string
	total          int
	concurrency    int
	timeout        time.Duration
	mode           loadMode
	jwtSecret      string
	callbackSecret string
	productRef     string
	quantity       int32
	ownerTag       string
	outputPath     string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type callReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Calls             map[string]callReport `json:"calls"`
}

type callStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu    sync.Mutex
	calls map[string]*callStats
}

func newCollector() *collector {
	return &collector{
		calls: make(map[string]*callStats),
	}
}

func (c *collector) record(name string, latency time.Duration, status int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.calls[name]
	if !found {
		stats = &callStats{
			statuses: make(map[string]int64),
		}
		c.calls[name] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[fmt.Sprintf("%d", status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Calls:           make(map[string]callReport, len(c.calls)),
	}

	scenarioStats := c.calls["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.calls {
		statusesCopy := make(map[string]int64, len(stats.statuses))
		for status, count := range stats.statuses {
			statusesCopy[status] = count
		}
		result.Calls[name] = callReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  statusesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string

	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "storefront HTTP API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCart), "load mode: cart | checkout | full")
	flag.StringVar(&cfg.jwtSecret, "jwt-secret", "", "HS256 secret for bearer tokens (fallback: STOREFRONT_JWT_SECRET)")
	flag.StringVar(&cfg.callbackSecret, "callback-secret", "", "callback secret for full mode (fallback: STOREFRONT_CALLBACK_SECRET)")
	flag.StringVar(&cfg.productRef, "product-ref", "candle-1", "product ref to put into carts")
	quantity := flag.Int("quantity", 1, "line quantity per scenario")
	flag.StringVar(&cfg.ownerTag, "owner-tag", "load", "owner ref prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	cfg.quantity = int32(*quantity)

	if strings.TrimSpace(cfg.jwtSecret) == "" {
		cfg.jwtSecret = os.Getenv("STOREFRONT_JWT_SECRET")
	}
	if strings.TrimSpace(cfg.callbackSecret) == "" {
		cfg.callbackSecret = os.Getenv("STOREFRONT_CALLBACK_SECRET")
	}

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if strings.TrimSpace(cfg.baseURL) == "" {
		return cfg, errors.New("base-url is required")
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	if cfg.total <= 0 {
		return cfg, errors.New("total must be > 0")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if strings.TrimSpace(cfg.jwtSecret) == "" {
		return cfg, errors.New("jwt-secret is required (-jwt-secret or STOREFRONT_JWT_SECRET)")
	}
	if cfg.mode == modeFull && strings.TrimSpace(cfg.callbackSecret) == "" {
		return cfg, errors.New("callback-secret is required in full mode")
	}
	if strings.TrimSpace(cfg.productRef) == "" {
		return cfg, errors.New("product-ref is required")
	}
	if strings.TrimSpace(cfg.ownerTag) == "" {
		return cfg, errors.New("owner-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCart:
		return modeCart, nil
	case modeCheckout:
		return modeCheckout, nil
	case modeFull:
		return modeFull, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.timeout}
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func runScenario(client *http.Client, cfg config, index int, runID string, col *collector) error {
	ownerRef := fmt.Sprintf("%s-%s-%d", cfg.ownerTag, runID, index)
	token, err := bearerToken(cfg.jwtSecret, ownerRef)
	if err != nil {
		return fmt.Errorf("sign bearer token: %w", err)
	}

	started := time.Now()
	scenarioErr := func() error {
		if _, err := call(client, col, "cart.put", http.MethodPut,
			cfg.baseURL+"/api/v1/cart/lines/"+cfg.productRef, token,
			map[string]any{"quantity": cfg.quantity}, http.StatusOK); err != nil {
			return err
		}

		if _, err := call(client, col, "cart.get", http.MethodGet,
			cfg.baseURL+"/api/v1/cart", token, nil, http.StatusOK); err != nil {
			return err
		}

		if cfg.mode == modeCart {
			return nil
		}

		attemptBody, err := call(client, col, "checkout.begin", http.MethodPost,
			cfg.baseURL+"/api/v1/checkout", token, nil, http.StatusCreated)
		if err != nil {
			return err
		}

		var attempt struct {
			Session *struct {
				ID string `json:"id"`
			} `json:"session"`
		}
		if err := json.Unmarshal(attemptBody, &attempt); err != nil {
			return fmt.Errorf("decode checkout attempt: %w", err)
		}
		if attempt.Session == nil || attempt.Session.ID == "" {
			return errors.New("checkout attempt has no session")
		}
		sessionID := attempt.Session.ID

		if cfg.mode == modeCheckout {
			_, err := call(client, col, "checkout.cancel", http.MethodPost,
				cfg.baseURL+"/api/v1/checkout/sessions/"+sessionID+"/cancel", token, nil, http.StatusOK)
			return err
		}

		// full: изображаем провайдера и доставляем подписанный success callback.
		paymentRef := "loadtest-pay-" + sessionID
		signature := payment.SignCallback(sessionID, paymentRef, cfg.callbackSecret)
		if _, err := call(client, col, "provider.callback", http.MethodPost,
			cfg.baseURL+"/api/v1/provider/callback", "",
			map[string]any{
				"session_id":  sessionID,
				"payment_ref": paymentRef,
				"signature":   signature,
			}, http.StatusOK); err != nil {
			return err
		}

		_, err = call(client, col, "orders.get", http.MethodGet,
			cfg.baseURL+"/api/v1/orders/sessions/"+sessionID, token, nil, http.StatusOK)
		return err
	}()

	col.record("scenario", time.Since(started), 0, scenarioErr == nil)
	return scenarioErr
}

func call(client *http.Client, col *collector, name, method, url, token string, body any, wantStatus int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", name, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(started)
	if err != nil {
		col.record(name, latency, 0, false)
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, readErr := io.ReadAll(resp.Body)
	ok := readErr == nil && resp.StatusCode == wantStatus
	col.record(name, latency, resp.StatusCode, ok)
	if readErr != nil {
		return nil, fmt.Errorf("%s: read body: %w", name, readErr)
	}
	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("%s: unexpected status %d (want %d): %s", name, resp.StatusCode, wantStatus, string(payload))
	}

	return payload, nil
}

func bearerToken(secret, ownerRef string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   ownerRef,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func writeJSONReport(path string, result report) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

func printReport(result report, cfg config) {
	fmt.Printf("mode=%s base-url=%s\n", cfg.mode, cfg.baseURL)
	fmt.Printf("scenarios: total=%d success=%d failed=%d error-rate=%.4f rps=%.1f\n",
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate, result.RPS)
	fmt.Printf("scenario latency ms: p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.P50, result.ScenarioLatencyMs.P95, result.ScenarioLatencyMs.P99, result.ScenarioLatencyMs.Max)

	names := make([]string, 0, len(result.Calls))
	for name := range result.Calls {
		if name == "scenario" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		call := result.Calls[name]
		fmt.Printf("  %-18s calls=%d failed=%d p95=%.2fms statuses=%v\n",
			name, call.Calls, call.Failed, call.LatencyMs.P95, call.Statuses)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func ratio(failed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
