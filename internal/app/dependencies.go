package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Carts     domain.CartRepository
	Orders    domain.OrderRepository
	Callbacks domain.CallbackRepository
	Outbox    domain.OutboxRepository
	Timeline  domain.TimelineRepository
	Catalog   domain.CatalogService
	Gateway   domain.PaymentGateway
	Logger    *log.Entry
}

// NewDependencies создаёт зависимости приложения с in-memory хранилищем и
// mock-клиентами каталога и платёжного провайдера. Реальные реализации
// подставляются поверх по конфигурации.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Carts:     memory.NewCartRepository(),
		Orders:    memory.NewOrderRepository(),
		Callbacks: memory.NewCallbackRepository(),
		Outbox:    memory.NewOutboxRepository(),
		Timeline:  memory.NewTimelineRepository(),
		Catalog:   catalog.NewMockService(),
		Gateway:   payment.NewMockGateway(),
		Logger:    logger,
	}
}
