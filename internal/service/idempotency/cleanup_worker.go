package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

var (
	callbackCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_callback_cleanup_runs_total",
		Help: "Total number of callback record cleanup runs grouped by result.",
	}, []string{"result"})
	callbackCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_callback_cleanup_deleted_total",
		Help: "Total number of deleted expired callback records.",
	})
	callbackCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_callback_cleanup_last_deleted",
		Help: "Number of deleted records during the last cleanup run.",
	})
)

// CleanupWorker периодически удаляет просроченные записи обработки
// provider callback, чтобы дедупликация не росла бесконечно.
type CleanupWorker struct {
	repo      domain.CallbackRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// NewCleanupWorker создаёт воркер очистки callback-записей.
func NewCleanupWorker(repo domain.CallbackRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		logger:    log.WithField("component", "callback-cleanup-worker"),
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run запускает периодическую очистку до отмены ctx. Первый цикл
// выполняется сразу, чтобы не ждать целый интервал после старта.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("callback cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx, time.Now().UTC())
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context, before time.Time) {
	deleted, err := w.DeleteExpired(ctx, before)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		callbackCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("callback cleanup run failed")
	default:
		callbackCleanupRunsTotal.WithLabelValues("ok").Inc()
		callbackCleanupLastDeleted.Set(float64(deleted))
		if deleted > 0 {
			w.logger.WithField("deleted", deleted).Info("callback cleanup completed")
		}
	}
}

// DeleteExpired удаляет все записи с ttl <= before порциями batchSize.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		if err != nil {
			return total, err
		}

		total += deleted
		if deleted > 0 {
			callbackCleanupDeletedTotal.Add(float64(deleted))
		}

		// Неполный батч означает, что просроченных записей не осталось.
		if deleted < w.batchSize {
			return total, nil
		}
	}
}
