package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfig формирует конфигурацию приложения, позволяя переопределить
// значения через переменные окружения.
func readConfig() app.Config {
	cfg := app.DefaultConfig()
	if v := os.Getenv("STOREFRONT_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STOREFRONT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("STOREFRONT_POSTGRES_DSN"); v != "" {
		cfg.StorageDriver = app.StorageDriverPostgres
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("STOREFRONT_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("STOREFRONT_CALLBACK_SECRET"); v != "" {
		cfg.CallbackSecret = v
	}
	if v := os.Getenv("STOREFRONT_CURRENCY"); v != "" {
		cfg.Currency = v
	}
	if v := os.Getenv("STOREFRONT_PAYMENT_GATEWAY_URL"); v != "" {
		cfg.PaymentGatewayURL = v
		cfg.PaymentGatewayKeyID = os.Getenv("STOREFRONT_PAYMENT_GATEWAY_KEY_ID")
		cfg.PaymentGatewayKeySecret = os.Getenv("STOREFRONT_PAYMENT_GATEWAY_KEY_SECRET")
	}
	cfg.KafkaBrokers = os.Getenv("KAFKA_BROKERS")
	return cfg
}

func main() {
	// .env нужен только для локальной разработки, его отсутствие не ошибка.
	_ = godotenv.Load()

	setupLogger()
	cfg := readConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
