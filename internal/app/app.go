package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	transporthttp "github.com/vladislavdragonenkov/storefront/internal/transport/http"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	deps := NewDependencies(logger)

	store, err := initStorage(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer func() {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("failed to close postgres store")
			}
		}
	}()

	if cfg.PaymentGatewayURL != "" {
		deps.Gateway = payment.NewHTTPGateway(
			cfg.PaymentGatewayURL,
			cfg.PaymentGatewayKeyID,
			cfg.PaymentGatewayKeySecret,
			logger.WithField("layer", "payment"),
		)
		logger.WithField("gateway_url", cfg.PaymentGatewayURL).Info("using HTTP payment gateway")
	}

	initiator, err := payment.NewInitiator(deps.Gateway, cfg.Currency, logger.WithField("layer", "payment"))
	if err != nil {
		return err
	}
	recorder := orders.NewRecorder(deps.Orders, cfg.CallbackSecret, logger.WithField("layer", "orders"))

	// Инициализация Kafka producer (опционально): ошибка подключения не
	// валит сервис, checkout продолжает работать без событий в брокере.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	orchestrator := createOrchestrator(deps, initiator, recorder, kafkaProducer)
	cartSvc := cart.NewService(deps.Carts, deps.Catalog, logger.WithField("layer", "cart"))

	router := transporthttp.NewRouter(transporthttp.Deps{
		Cart:      cartSvc,
		Checkout:  orchestrator,
		Orders:    recorder,
		JWTSecret: cfg.JWTSecret,
		Logger:    logger.WithField("layer", "http"),
	})

	// HTTP Health checks
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewCheckerFunc("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	startWorkers(ctx, cfg, deps, kafkaProducer, logger)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(srv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startWorkers запускает фоновые воркеры: публикацию outbox (только когда
// есть Kafka) и зачистку просроченных callback-записей.
func startWorkers(ctx context.Context, cfg Config, deps *Dependencies, producer *kafka.Producer, logger *log.Entry) {
	if producer != nil {
		publisher := kafka.NewOutboxPublisher(producer, kafka.TopicCheckoutEvents)
		dlqPublisher := kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)

		worker := outbox.NewWorker(deps.Outbox, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)
	} else {
		logger.Info("kafka не настроен, outbox worker не запускается")
	}

	cleanup := idempotency.NewCleanupWorker(deps.Callbacks,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	go cleanup.Run(ctx)
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
