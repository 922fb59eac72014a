package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	// Эфемерные порты, чтобы параллельные прогоны не конфликтовали.
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRun_UnsupportedStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "mongodb"

	if err := Run(context.Background(), cfg); err == nil {
		t.Error("expected error for unsupported storage driver")
	}
}
