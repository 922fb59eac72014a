package payment_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

func TestInitiator_CreateSession(t *testing.T) {
	gw := payment.NewMockGateway()
	init, err := payment.NewInitiator(gw, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}

	session, err := init.CreateSession(decimal.RequireFromString("499.00"))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if gw.LastAmountMinor != 49900 {
		t.Fatalf("gateway received %d minor units, want 49900", gw.LastAmountMinor)
	}
	if gw.LastCurrency != "INR" {
		t.Fatalf("gateway received currency %q, want INR", gw.LastCurrency)
	}
	if session.ID == "" {
		t.Fatal("session id must not be empty")
	}
	if session.AmountMinor != 49900 || session.Currency != "INR" {
		t.Fatalf("unexpected session echo: %+v", session)
	}
}

func TestInitiator_CreateSession_RoundsHalfUp(t *testing.T) {
	gw := payment.NewMockGateway()
	init, err := payment.NewInitiator(gw, "USD", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}

	// 10.005 USD — полуцент округляется, а не усекается.
	if _, err := init.CreateSession(decimal.RequireFromString("10.005")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if gw.LastAmountMinor != 1001 {
		t.Fatalf("gateway received %d minor units, want 1001", gw.LastAmountMinor)
	}
}

func TestInitiator_CreateSession_RejectsNonPositive(t *testing.T) {
	gw := payment.NewMockGateway()
	init, err := payment.NewInitiator(gw, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}

	for _, amount := range []string{"0", "-1.50"} {
		if _, err := init.CreateSession(decimal.RequireFromString(amount)); !errors.Is(err, domain.ErrAmountNotPositive) {
			t.Fatalf("amount %s: got %v, want ErrAmountNotPositive", amount, err)
		}
	}
	if gw.Calls != 0 {
		t.Fatalf("gateway called %d times for invalid amounts, want 0", gw.Calls)
	}
}

func TestInitiator_CreateSession_WrapsGatewayFailure(t *testing.T) {
	gw := payment.NewMockGateway()
	gw.Err = errors.New("connection refused")
	init, err := payment.NewInitiator(gw, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}

	if _, err := init.CreateSession(decimal.RequireFromString("100")); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("got %v, want ErrGatewayUnavailable", err)
	}
}

func TestInitiator_ProviderEchoIsTruth(t *testing.T) {
	gw := payment.NewMockGateway()
	gw.EchoShift = 5
	init, err := payment.NewInitiator(gw, "INR", nil)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}

	session, err := init.CreateSession(decimal.RequireFromString("100"))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.AmountMinor != 10005 {
		t.Fatalf("session amount %d, want provider echo 10005", session.AmountMinor)
	}
}

func TestNewInitiator_RejectsUnknownCurrency(t *testing.T) {
	if _, err := payment.NewInitiator(payment.NewMockGateway(), "QQQ", nil); err == nil {
		t.Fatal("expected error for unknown currency code")
	}
}
