package checkout_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const testSecret = "whsec_test"

type env struct {
	carts     domain.CartRepository
	gateway   *payment.MockGateway
	orders    domain.OrderRepository
	recorder  *orders.Recorder
	callbacks domain.CallbackRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	orch      checkout.Orchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		carts:     memory.NewCartRepository(),
		gateway:   payment.NewMockGateway(),
		orders:    memory.NewOrderRepository(),
		callbacks: memory.NewCallbackRepository(),
		outbox:    memory.NewOutboxRepository(),
		timeline:  memory.NewTimelineRepository(),
	}

	initiator, err := payment.NewInitiator(e.gateway, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	e.recorder = orders.NewRecorder(e.orders, testSecret, nil)
	e.orch = checkout.NewOrchestratorWithoutMetrics(
		e.carts, initiator, e.recorder, e.callbacks, e.outbox, e.timeline, nil)
	return e
}

func (e *env) seedCart(t *testing.T, ownerRef string) {
	t.Helper()
	_, err := e.carts.UpsertLine(ownerRef, domain.CartLine{
		ProductRef:  "candle-1",
		DisplayName: "Vanilla Candle",
		UnitPrice:   decimal.RequireFromString("249.50"),
		Quantity:    2,
		AddedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("seed cart: %v", err)
	}
}

func signedCallback(sessionID, paymentRef string) domain.CallbackPayload {
	return domain.CallbackPayload{
		SessionID:  sessionID,
		PaymentRef: paymentRef,
		Signature:  payment.SignCallback(sessionID, paymentRef, testSecret),
	}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}
	if attempt.State != domain.CheckoutStateAwaitingCallback {
		t.Fatalf("state = %s, want awaiting_provider_callback", attempt.State)
	}
	// Итог 249.50 × 2 = 499.00 INR уходит провайдеру как 49900 пайс.
	if e.gateway.LastAmountMinor != 49900 || e.gateway.LastCurrency != "INR" {
		t.Fatalf("gateway got %d %s, want 49900 INR", e.gateway.LastAmountMinor, e.gateway.LastCurrency)
	}

	order, err := e.orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_1"))
	if err != nil {
		t.Fatalf("HandleProviderSuccess: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("order status = %s, want paid", order.Status)
	}
	if order.AmountMinor != 49900 || order.Currency != "INR" {
		t.Fatalf("order amount %d %s, want 49900 INR", order.AmountMinor, order.Currency)
	}

	// Корзина очищена строго после записи заказа.
	cart, err := e.carts.Get("user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatal("cart must be cleared after completed checkout")
	}

	list, err := e.recorder.ListOrders("user-1", 0)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d orders, want 1", len(list))
	}

	if _, live := e.orch.Attempt("user-1"); live {
		t.Fatal("attempt must be released after completion")
	}
}

func TestOrchestrator_ProviderEchoIsAmountOfRecord(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	// Провайдер эхо-отвечает суммой, отличной от запрошенной (скидка на
	// своей стороне). Для попытки и заказа истинна именно его сумма.
	e.gateway.EchoShift = -150

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}
	if e.gateway.LastAmountMinor != 49900 {
		t.Fatalf("gateway asked for %d, want 49900", e.gateway.LastAmountMinor)
	}
	if attempt.Session.AmountMinor != 49750 {
		t.Fatalf("attempt carries %d, want provider echo 49750", attempt.Session.AmountMinor)
	}

	order, err := e.orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_1"))
	if err != nil {
		t.Fatalf("HandleProviderSuccess: %v", err)
	}
	if order.AmountMinor != 49750 {
		t.Fatalf("order amount %d, want provider echo 49750", order.AmountMinor)
	}
}

func TestOrchestrator_EmptyCartRejected(t *testing.T) {
	e := newEnv(t)

	if _, err := e.orch.BeginCheckout("user-1"); !errors.Is(err, domain.ErrCartEmpty) {
		t.Fatalf("got %v, want ErrCartEmpty", err)
	}
	if e.gateway.Calls != 0 {
		t.Fatal("gateway must not be called for empty cart")
	}
}

func TestOrchestrator_SecondAttemptRejectedWhileAwaiting(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}

	if _, err := e.orch.BeginCheckout("user-1"); !errors.Is(err, domain.ErrCheckoutInProgress) {
		t.Fatalf("got %v, want ErrCheckoutInProgress", err)
	}

	// После отмены владелец снова свободен.
	if err := e.orch.HandleProviderCancel(attempt.Session.ID); err != nil {
		t.Fatalf("HandleProviderCancel: %v", err)
	}
	if _, err := e.orch.BeginCheckout("user-1"); err != nil {
		t.Fatalf("retry after cancel: %v", err)
	}
}

func TestOrchestrator_GatewayUnavailableRetryableFromIdle(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	e.gateway.Err = domain.ErrGatewayUnavailable

	if _, err := e.orch.BeginCheckout("user-1"); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("got %v, want ErrGatewayUnavailable", err)
	}
	if _, live := e.orch.Attempt("user-1"); live {
		t.Fatal("failed attempt must be released")
	}

	cart, _ := e.carts.Get("user-1")
	if cart.IsEmpty() {
		t.Fatal("cart must be preserved after gateway failure")
	}

	// Повтор новой попыткой; молчаливого auto-retry внутри не было.
	if e.gateway.Calls != 1 {
		t.Fatalf("gateway called %d times, want exactly 1", e.gateway.Calls)
	}
	e.gateway.Err = nil
	if _, err := e.orch.BeginCheckout("user-1"); err != nil {
		t.Fatalf("retry attempt: %v", err)
	}
}

func TestOrchestrator_UserCancelPreservesCart(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}

	if err := e.orch.HandleProviderCancel(attempt.Session.ID); err != nil {
		t.Fatalf("HandleProviderCancel: %v", err)
	}

	cart, _ := e.carts.Get("user-1")
	if cart.IsEmpty() {
		t.Fatal("cart must be unchanged after user cancel")
	}
	list, _ := e.recorder.ListOrders("user-1", 0)
	if len(list) != 0 {
		t.Fatalf("got %d orders after cancel, want 0", len(list))
	}
}

func TestOrchestrator_CancelUnknownSession(t *testing.T) {
	e := newEnv(t)
	if err := e.orch.HandleProviderCancel("cs_ghost"); !errors.Is(err, domain.ErrUnknownSession) {
		t.Fatalf("got %v, want ErrUnknownSession", err)
	}
}

func TestOrchestrator_DuplicateCallbackReturnsSameOrder(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}
	payload := signedCallback(attempt.Session.ID, "pay_1")

	first, err := e.orch.HandleProviderSuccess(payload)
	if err != nil {
		t.Fatalf("first callback: %v", err)
	}
	second, err := e.orch.HandleProviderSuccess(payload)
	if err != nil {
		t.Fatalf("duplicate callback must resolve idempotently, got %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("duplicate delivery produced a second order: %s vs %s", first.ID, second.ID)
	}

	list, _ := e.recorder.ListOrders("user-1", 0)
	if len(list) != 1 {
		t.Fatalf("got %d orders, want exactly 1 per provider session", len(list))
	}
}

type failingOrderRepo struct {
	domain.OrderRepository
}

func (f *failingOrderRepo) Create(domain.Order) (domain.Order, error) {
	return domain.Order{}, errors.New("disk full")
}

func TestOrchestrator_RecordingFailureKeepsCart(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	initiator, err := payment.NewInitiator(e.gateway, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	recorder := orders.NewRecorder(&failingOrderRepo{e.orders}, testSecret, nil)
	orch := checkout.NewOrchestratorWithoutMetrics(
		e.carts, initiator, recorder, e.callbacks, e.outbox, e.timeline, nil)

	attempt, err := orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}

	_, err = orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_1"))
	if !errors.Is(err, domain.ErrOrderPersistenceFailed) {
		t.Fatalf("got %v, want ErrOrderPersistenceFailed", err)
	}

	cart, _ := e.carts.Get("user-1")
	if cart.IsEmpty() {
		t.Fatal("cart must remain non-empty when recording fails")
	}
}

func TestOrchestrator_ForgedCallbackKeepsAttemptAlive(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}

	forged := domain.CallbackPayload{
		SessionID:  attempt.Session.ID,
		PaymentRef: "pay_evil",
		Signature:  payment.SignCallback(attempt.Session.ID, "pay_evil", "whsec_wrong"),
	}
	if _, err := e.orch.HandleProviderSuccess(forged); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Fatalf("got %v, want ErrSignatureMismatch", err)
	}

	// Подделка не хоронит попытку: настоящий callback всё ещё проходит.
	live, ok := e.orch.Attempt("user-1")
	if !ok || live.State != domain.CheckoutStateAwaitingCallback {
		t.Fatalf("attempt state after forged callback: %+v ok=%v", live, ok)
	}

	order, err := e.orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_real"))
	if err != nil {
		t.Fatalf("genuine callback after forged one: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("order status = %s, want paid", order.Status)
	}
}

func TestOrchestrator_UnknownSessionCallback(t *testing.T) {
	e := newEnv(t)

	payload := signedCallback("cs_ghost", "pay_1")
	if _, err := e.orch.HandleProviderSuccess(payload); !errors.Is(err, domain.ErrUnknownSession) {
		t.Fatalf("got %v, want ErrUnknownSession", err)
	}
}

func TestOrchestrator_OrderItemsSnapshotAtBegin(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}

	// Пока попытка ждёт провайдера, в живую корзину попадает ещё одна позиция.
	if _, err := e.carts.UpsertLine("user-1", domain.CartLine{
		ProductRef:  "soap-3",
		DisplayName: "Lavender Soap",
		UnitPrice:   decimal.RequireFromString("80.00"),
		Quantity:    1,
		AddedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("mutate cart: %v", err)
	}

	order, err := e.orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_1"))
	if err != nil {
		t.Fatalf("HandleProviderSuccess: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].ProductRef != "candle-1" {
		t.Fatalf("order must be recorded from the snapshot at begin: %+v", order.Items)
	}
}

type flakyClearCart struct {
	domain.CartRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyClearCart) Clear(ownerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("store timeout")
	}
	return f.CartRepository.Clear(ownerRef)
}

func TestOrchestrator_CartClearRetriedAfterCompletion(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	flaky := &flakyClearCart{CartRepository: e.carts, failures: 2}
	initiator, err := payment.NewInitiator(e.gateway, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	orch := checkout.NewOrchestratorWithoutMetrics(
		flaky, initiator, e.recorder, e.callbacks, e.outbox, e.timeline, nil)

	attempt, err := orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}
	if _, err := orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_1")); err != nil {
		t.Fatalf("HandleProviderSuccess: %v", err)
	}

	cart, _ := e.carts.Get("user-1")
	if !cart.IsEmpty() {
		t.Fatal("cart must be cleared after retries")
	}
	if flaky.calls != 3 {
		t.Fatalf("clear called %d times, want 3", flaky.calls)
	}
}

func TestOrchestrator_ClearFailureDoesNotUndoCompletion(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	flaky := &flakyClearCart{CartRepository: e.carts, failures: 100}
	initiator, err := payment.NewInitiator(e.gateway, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	orch := checkout.NewOrchestratorWithoutMetrics(
		flaky, initiator, e.recorder, e.callbacks, e.outbox, e.timeline, nil)

	attempt, err := orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}
	order, err := orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_1"))
	if err != nil {
		t.Fatalf("completed checkout must not surface clear failure: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("order status = %s, want paid", order.Status)
	}

	// Заказ durable, даже если корзина осталась: её чистка только логируется.
	list, _ := e.recorder.ListOrders("user-1", 0)
	if len(list) != 1 {
		t.Fatalf("got %d orders, want 1", len(list))
	}
}

func TestOrchestrator_TimelineRecordsLifecycle(t *testing.T) {
	e := newEnv(t)
	e.seedCart(t, "user-1")

	attempt, err := e.orch.BeginCheckout("user-1")
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}
	if _, err := e.orch.HandleProviderSuccess(signedCallback(attempt.Session.ID, "pay_1")); err != nil {
		t.Fatalf("HandleProviderSuccess: %v", err)
	}

	events, err := e.timeline.List(attempt.Session.ID)
	if err != nil {
		t.Fatalf("timeline list: %v", err)
	}
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := map[string]bool{"CheckoutSessionCreated": false, "CheckoutCompleted": false, "CartCleared": false}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Fatalf("timeline missing %s event, got %v", typ, types)
		}
	}

	stats, err := e.outbox.Stats()
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	if stats.PendingCount == 0 {
		t.Fatal("lifecycle events must be enqueued to outbox")
	}
}
