package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCallbackRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCallbackRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)

	record, err := repo.CreateProcessing("cs_cb_1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("create processing record: %v", err)
	}
	if record.Status != domain.CallbackStatusProcessing {
		t.Fatalf("unexpected status: %s", record.Status)
	}

	// Повторная доставка с тем же payload.
	existing, err := repo.CreateProcessing("cs_cb_1", "hash-1", ttl)
	if !errors.Is(err, domain.ErrCallbackAlreadyExists) {
		t.Fatalf("expected ErrCallbackAlreadyExists, got %v", err)
	}
	if existing.SessionID != "cs_cb_1" {
		t.Fatalf("unexpected existing record: %+v", existing)
	}

	// Та же сессия, другой payload.
	if _, err := repo.CreateProcessing("cs_cb_1", "hash-other", ttl); !errors.Is(err, domain.ErrCallbackHashMismatch) {
		t.Fatalf("expected ErrCallbackHashMismatch, got %v", err)
	}

	if err := repo.MarkDone("cs_cb_1", "order-1"); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	got, err := repo.Get("cs_cb_1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.Status != domain.CallbackStatusDone || got.OrderID != "order-1" {
		t.Fatalf("unexpected record after done: %+v", got)
	}
}

func TestCallbackRepository_PostgresFailedRecordReplaced(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCallbackRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("cs_cb_retry", "hash-bad", ttl); err != nil {
		t.Fatalf("create processing record: %v", err)
	}
	if err := repo.MarkFailed("cs_cb_retry", "signature rejected"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// Свежая доставка после неуспеха не блокируется старой записью.
	record, err := repo.CreateProcessing("cs_cb_retry", "hash-good", ttl)
	if err != nil {
		t.Fatalf("recreate after failed: %v", err)
	}
	if record.Status != domain.CallbackStatusProcessing {
		t.Fatalf("unexpected status after recreate: %s", record.Status)
	}
	if record.PayloadHash != "hash-good" {
		t.Fatalf("unexpected payload hash after recreate: %s", record.PayloadHash)
	}

	got, err := repo.Get("cs_cb_retry")
	if err != nil {
		t.Fatalf("get recreated record: %v", err)
	}
	if got.Reason != "" || got.OrderID != "" {
		t.Fatalf("expected cleared reason/order after recreate: %+v", got)
	}
}

func TestCallbackRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewCallbackRepository(store)

	now := time.Now().UTC()

	if _, err := repo.CreateProcessing("cs_cb_old", "hash-old", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create expired record: %v", err)
	}
	if _, err := repo.CreateProcessing("cs_cb_fresh", "hash-fresh", now.Add(time.Hour)); err != nil {
		t.Fatalf("create fresh record: %v", err)
	}

	deleted, err := repo.DeleteExpired(now, 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted record, got %d", deleted)
	}

	if _, err := repo.Get("cs_cb_old"); !errors.Is(err, domain.ErrCallbackNotFound) {
		t.Fatalf("expected ErrCallbackNotFound for expired record, got %v", err)
	}
	if _, err := repo.Get("cs_cb_fresh"); err != nil {
		t.Fatalf("fresh record must survive cleanup: %v", err)
	}
}
