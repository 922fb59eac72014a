package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const (
	testJWTSecret      = "test-jwt-secret"
	testCallbackSecret = "test-callback-secret"
)

type routerEnv struct {
	router  *gin.Engine
	gateway *payment.MockGateway
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := log.NewEntry(logger)

	carts := memory.NewCartRepository()
	orderRepo := memory.NewOrderRepository()
	callbackRepo := memory.NewCallbackRepository()
	timelineRepo := memory.NewTimelineRepository()
	outboxRepo := memory.NewOutboxRepository()

	gateway := payment.NewMockGateway()
	initiator, err := payment.NewInitiator(gateway, "USD", entry)
	if err != nil {
		t.Fatalf("new initiator: %v", err)
	}
	recorder := orders.NewRecorder(orderRepo, testCallbackSecret, entry)

	orchestrator := checkout.NewOrchestratorWithoutMetrics(
		carts, initiator, recorder, callbackRepo, outboxRepo, timelineRepo, entry,
	)

	cartSvc := cart.NewService(carts, catalog.NewMockService(), entry)

	router := NewRouter(Deps{
		Cart:      cartSvc,
		Checkout:  orchestrator,
		Orders:    recorder,
		JWTSecret: testJWTSecret,
		Logger:    entry,
	})

	return &routerEnv{router: router, gateway: gateway}
}

func bearerToken(t *testing.T, ownerRef string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ownerRef,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func (e *routerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	env := newRouterEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/cart", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestRouter_CartAddGetRemove(t *testing.T) {
	env := newRouterEnv(t)
	token := bearerToken(t, "owner-1")

	w := env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", token, setQuantityRequest{Quantity: ptr(int32(2))})
	if w.Code != http.StatusOK {
		t.Fatalf("put line: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	cartResp := decodeJSON[cartResponse](t, w)
	if len(cartResp.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cartResp.Lines))
	}
	line := cartResp.Lines[0]
	if line.ProductRef != "candle-1" || line.Quantity != 2 || line.UnitPrice != "249.5" {
		t.Fatalf("unexpected line payload: %+v", line)
	}

	w = env.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get cart: expected 200, got %d", w.Code)
	}
	cartResp = decodeJSON[cartResponse](t, w)
	if cartResp.OwnerRef != "owner-1" || len(cartResp.Lines) != 1 {
		t.Fatalf("unexpected cart: %+v", cartResp)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/cart/lines/candle-1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete line: expected 200, got %d", w.Code)
	}
	cartResp = decodeJSON[cartResponse](t, w)
	if len(cartResp.Lines) != 0 {
		t.Fatalf("expected empty cart after delete, got %+v", cartResp)
	}
}

func TestRouter_CartValidation(t *testing.T) {
	env := newRouterEnv(t)
	token := bearerToken(t, "owner-1")

	w := env.do(t, http.MethodPut, "/api/v1/cart/lines/unknown-product", token, setQuantityRequest{Quantity: ptr(int32(1))})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown product: expected 404, got %d", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", token, setQuantityRequest{Quantity: ptr(int32(-1))})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative quantity: expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", token, map[string]string{"unexpected": "body"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing quantity: expected 400, got %d", w.Code)
	}
}

func TestRouter_CheckoutFlow(t *testing.T) {
	env := newRouterEnv(t)
	token := bearerToken(t, "owner-1")

	env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", token, setQuantityRequest{Quantity: ptr(int32(2))})

	w := env.do(t, http.MethodPost, "/api/v1/checkout", token, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("begin checkout: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	attempt := decodeJSON[attemptResponse](t, w)
	if attempt.State != "awaiting_provider_callback" || attempt.Session == nil {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if attempt.Session.AmountMinor != 49900 || attempt.Session.Currency != "USD" {
		t.Fatalf("unexpected session echo: %+v", attempt.Session)
	}

	w = env.do(t, http.MethodGet, "/api/v1/checkout", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("current attempt: expected 200, got %d", w.Code)
	}

	// Вторая попытка при живой первой отклоняется.
	w = env.do(t, http.MethodPost, "/api/v1/checkout", token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second checkout: expected 409, got %d", w.Code)
	}

	sessionID := attempt.Session.ID
	paymentRef := "pay_1"
	callback := providerCallbackRequest{
		SessionID:  sessionID,
		PaymentRef: paymentRef,
		Signature:  payment.SignCallback(sessionID, paymentRef, testCallbackSecret),
	}
	w = env.do(t, http.MethodPost, "/api/v1/provider/callback", "", callback)
	if w.Code != http.StatusOK {
		t.Fatalf("provider callback: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	order := decodeJSON[orderResponse](t, w)
	if order.OwnerRef != "owner-1" || order.AmountMinor != 49900 || order.Status != "paid" {
		t.Fatalf("unexpected order: %+v", order)
	}

	w = env.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	cartResp := decodeJSON[cartResponse](t, w)
	if len(cartResp.Lines) != 0 {
		t.Fatalf("expected cart cleared after checkout, got %+v", cartResp)
	}

	w = env.do(t, http.MethodGet, "/api/v1/orders", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list orders: expected 200, got %d", w.Code)
	}
	listed := decodeJSON[struct {
		Orders []orderResponse `json:"orders"`
	}](t, w)
	if len(listed.Orders) != 1 || listed.Orders[0].ID != order.ID {
		t.Fatalf("unexpected order list: %+v", listed)
	}

	w = env.do(t, http.MethodGet, "/api/v1/orders/sessions/"+sessionID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get order by session: expected 200, got %d", w.Code)
	}
}

func TestRouter_CheckoutEmptyCart(t *testing.T) {
	env := newRouterEnv(t)
	token := bearerToken(t, "owner-1")

	w := env.do(t, http.MethodPost, "/api/v1/checkout", token, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty cart checkout: expected 422, got %d", w.Code)
	}
}

func TestRouter_ForgedCallbackRejected(t *testing.T) {
	env := newRouterEnv(t)
	token := bearerToken(t, "owner-1")

	env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", token, setQuantityRequest{Quantity: ptr(int32(1))})
	w := env.do(t, http.MethodPost, "/api/v1/checkout", token, nil)
	attempt := decodeJSON[attemptResponse](t, w)

	callback := providerCallbackRequest{
		SessionID:  attempt.Session.ID,
		PaymentRef: "pay_1",
		Signature:  "deadbeef",
	}
	w = env.do(t, http.MethodPost, "/api/v1/provider/callback", "", callback)
	if w.Code != http.StatusForbidden {
		t.Fatalf("forged callback: expected 403, got %d body=%s", w.Code, w.Body.String())
	}

	// Попытка остаётся живой и ждёт настоящий callback.
	w = env.do(t, http.MethodGet, "/api/v1/checkout", token, nil)
	got := decodeJSON[attemptResponse](t, w)
	if got.State != "awaiting_provider_callback" {
		t.Fatalf("expected attempt to await genuine callback, got state %s", got.State)
	}
}

func TestRouter_CancelPreservesCart(t *testing.T) {
	env := newRouterEnv(t)
	token := bearerToken(t, "owner-1")

	env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", token, setQuantityRequest{Quantity: ptr(int32(1))})
	w := env.do(t, http.MethodPost, "/api/v1/checkout", token, nil)
	attempt := decodeJSON[attemptResponse](t, w)

	path := fmt.Sprintf("/api/v1/checkout/sessions/%s/cancel", attempt.Session.ID)
	w = env.do(t, http.MethodPost, path, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	cartResp := decodeJSON[cartResponse](t, w)
	if len(cartResp.Lines) != 1 {
		t.Fatalf("expected cart preserved after cancel, got %+v", cartResp)
	}
}

func TestRouter_CancelOfAnotherOwnerHidden(t *testing.T) {
	env := newRouterEnv(t)
	owner1 := bearerToken(t, "owner-1")
	owner2 := bearerToken(t, "owner-2")

	env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", owner1, setQuantityRequest{Quantity: ptr(int32(1))})
	w := env.do(t, http.MethodPost, "/api/v1/checkout", owner1, nil)
	attempt := decodeJSON[attemptResponse](t, w)

	path := fmt.Sprintf("/api/v1/checkout/sessions/%s/cancel", attempt.Session.ID)
	w = env.do(t, http.MethodPost, path, owner2, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign cancel: expected 404, got %d body=%s", w.Code, w.Body.String())
	}

	// Попытка владельца переживает чужой запрос отмены.
	w = env.do(t, http.MethodGet, "/api/v1/checkout", owner1, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("attempt after foreign cancel: expected 200, got %d", w.Code)
	}
	got := decodeJSON[attemptResponse](t, w)
	if got.State != "awaiting_provider_callback" {
		t.Fatalf("attempt state = %s, want awaiting_provider_callback", got.State)
	}

	// Сам владелец отменяет свою сессию как прежде.
	w = env.do(t, http.MethodPost, path, owner1, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("own cancel: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestRouter_OrderOfAnotherOwnerHidden(t *testing.T) {
	env := newRouterEnv(t)
	owner1 := bearerToken(t, "owner-1")
	owner2 := bearerToken(t, "owner-2")

	env.do(t, http.MethodPut, "/api/v1/cart/lines/candle-1", owner1, setQuantityRequest{Quantity: ptr(int32(1))})
	w := env.do(t, http.MethodPost, "/api/v1/checkout", owner1, nil)
	attempt := decodeJSON[attemptResponse](t, w)

	sessionID := attempt.Session.ID
	callback := providerCallbackRequest{
		SessionID:  sessionID,
		PaymentRef: "pay_1",
		Signature:  payment.SignCallback(sessionID, "pay_1", testCallbackSecret),
	}
	env.do(t, http.MethodPost, "/api/v1/provider/callback", "", callback)

	w = env.do(t, http.MethodGet, "/api/v1/orders/sessions/"+sessionID, owner2, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign order: expected 404, got %d", w.Code)
	}
}

func ptr[T any](v T) *T {
	return &v
}
