package cart

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newService(t *testing.T) (*Service, *catalog.MockService) {
	t.Helper()

	mock := catalog.NewMockService()
	svc := NewService(memory.NewCartRepository(), mock, log.New().WithField("test", "cart"))
	return svc, mock
}

func TestSetLineQuantity_InsertSnapshots(t *testing.T) {
	svc, mock := newService(t)

	cart, err := svc.SetLineQuantity("owner-1", "candle-1", 2)
	if err != nil {
		t.Fatalf("set line quantity: %v", err)
	}

	if len(cart.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Lines))
	}
	line := cart.Lines[0]
	if line.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", line.Quantity)
	}
	if line.DisplayName != "Vanilla Candle" {
		t.Fatalf("expected snapshotted display name, got %q", line.DisplayName)
	}
	if want := decimal.RequireFromString("249.50"); !line.UnitPrice.Equal(want) {
		t.Fatalf("expected snapshotted price %s, got %s", want, line.UnitPrice)
	}
	if mock.ResolveCalls != 1 {
		t.Fatalf("expected one catalog resolve, got %d", mock.ResolveCalls)
	}
}

func TestSetLineQuantity_OverwriteDoesNotResolveAgain(t *testing.T) {
	svc, mock := newService(t)

	if _, err := svc.SetLineQuantity("owner-1", "candle-1", 2); err != nil {
		t.Fatalf("set line quantity: %v", err)
	}

	// Каталог меняет цену, но снапшот в корзине обязан пережить перезапись количества.
	mock.Products["candle-1"] = domain.ProductInfo{
		DisplayName: "Vanilla Candle v2",
		UnitPrice:   decimal.RequireFromString("999.00"),
	}

	cart, err := svc.SetLineQuantity("owner-1", "candle-1", 7)
	if err != nil {
		t.Fatalf("set line quantity: %v", err)
	}
	if cart.Lines[0].Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", cart.Lines[0].Quantity)
	}
	if want := decimal.RequireFromString("249.50"); !cart.Lines[0].UnitPrice.Equal(want) {
		t.Fatalf("expected original snapshot %s, got %s", want, cart.Lines[0].UnitPrice)
	}
	if mock.ResolveCalls != 1 {
		t.Fatalf("expected no second resolve, got %d calls", mock.ResolveCalls)
	}
}

func TestSetLineQuantity_ZeroRemoves(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.SetLineQuantity("owner-1", "candle-1", 2); err != nil {
		t.Fatalf("set line quantity: %v", err)
	}

	cart, err := svc.SetLineQuantity("owner-1", "candle-1", 0)
	if err != nil {
		t.Fatalf("set zero quantity: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}

	// Ноль по отсутствующей позиции — тоже успех.
	cart, err = svc.SetLineQuantity("owner-1", "never-added", 0)
	if err != nil {
		t.Fatalf("zero on absent line must succeed, got %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestSetLineQuantity_NegativeRejected(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.SetLineQuantity("owner-1", "candle-1", 2); err != nil {
		t.Fatalf("set line quantity: %v", err)
	}

	_, err := svc.SetLineQuantity("owner-1", "candle-1", -1)
	if !errors.Is(err, domain.ErrQuantityNegative) {
		t.Fatalf("expected ErrQuantityNegative, got %v", err)
	}

	cart, err := svc.GetCart("owner-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 2 {
		t.Fatalf("cart must be unchanged after rejected mutation, got %+v", cart)
	}
}

func TestSetLineQuantity_UnknownProduct(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SetLineQuantity("owner-1", "ghost-9", 1)
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	cart, err := svc.GetCart("owner-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("no mutation expected on unknown product, got %+v", cart)
	}
}

func TestSetLineQuantity_LastSetWinsAcrossLines(t *testing.T) {
	svc, _ := newService(t)

	seq := []struct {
		ref string
		qty int32
	}{
		{"candle-1", 1},
		{"soap-3", 4},
		{"candle-1", 3},
		{"soap-3", 4}, // повтор того же вызова — идемпотентен
	}
	for _, step := range seq {
		if _, err := svc.SetLineQuantity("owner-1", step.ref, step.qty); err != nil {
			t.Fatalf("set %s=%d: %v", step.ref, step.qty, err)
		}
	}

	cart, err := svc.GetCart("owner-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(cart.Lines))
	}

	candle, _ := cart.Line("candle-1")
	soap, _ := cart.Line("soap-3")
	if candle.Quantity != 3 || soap.Quantity != 4 {
		t.Fatalf("expected last-set quantities 3/4, got %d/%d", candle.Quantity, soap.Quantity)
	}
}

func TestClear_Idempotent(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.SetLineQuantity("owner-1", "candle-1", 2); err != nil {
		t.Fatalf("set line quantity: %v", err)
	}

	if err := svc.Clear("owner-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := svc.Clear("owner-1"); err != nil {
		t.Fatalf("second clear: %v", err)
	}

	cart, err := svc.GetCart("owner-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}
