package app

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestNewDependencies(t *testing.T) {
	logger := log.WithField("test", "dependencies")
	deps := NewDependencies(logger)

	if deps == nil {
		t.Fatal("NewDependencies should not return nil")
	}

	if deps.Carts == nil {
		t.Error("Carts should not be nil")
	}

	if deps.Orders == nil {
		t.Error("Orders should not be nil")
	}

	if deps.Callbacks == nil {
		t.Error("Callbacks should not be nil")
	}

	if deps.Outbox == nil {
		t.Error("Outbox should not be nil")
	}

	if deps.Timeline == nil {
		t.Error("Timeline should not be nil")
	}

	if deps.Catalog == nil {
		t.Error("Catalog should not be nil")
	}

	if deps.Gateway == nil {
		t.Error("Gateway should not be nil")
	}

	if deps.Logger == nil {
		t.Error("Logger should not be nil")
	}
}

func TestNewDependencies_WithNilLogger(t *testing.T) {
	deps := NewDependencies(nil)

	if deps == nil {
		t.Fatal("NewDependencies should not return nil")
	}

	if deps.Logger == nil {
		t.Error("Logger should be initialized even when nil is passed")
	}
}

func TestNewDependencies_RepositoriesWork(t *testing.T) {
	deps := NewDependencies(nil)

	cart, err := deps.Carts.Get("owner-1")
	if err != nil {
		t.Fatalf("Carts.Get failed: %v", err)
	}
	if !cart.IsEmpty() {
		t.Error("expected empty cart for unknown owner")
	}

	if _, err := deps.Orders.ListByOwner("owner-1", 0); err != nil {
		t.Errorf("Orders.ListByOwner failed: %v", err)
	}

	if _, err := deps.Catalog.Resolve("missing-product"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestNewDependencies_IndependentInstances(t *testing.T) {
	deps1 := NewDependencies(nil)
	deps2 := NewDependencies(nil)

	// Каждый вызов должен создавать новые экземпляры
	if deps1 == deps2 {
		t.Error("NewDependencies should create independent instances")
	}

	if deps1.Carts == deps2.Carts {
		t.Error("Carts instances should be independent")
	}
}
