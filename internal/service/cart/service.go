package cart

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service — единственный авторитет над содержимым корзин.
// Все мутации проходят через SetLineQuantity: ноль удаляет позицию,
// положительное количество перезаписывает её (last-write-wins).
type Service struct {
	carts   domain.CartRepository
	catalog domain.CatalogService
	logger  *log.Entry
}

// NewService создаёт сервис корзин поверх репозитория и каталога.
func NewService(carts domain.CartRepository, catalog domain.CatalogService, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &Service{
		carts:   carts,
		catalog: catalog,
		logger:  logger,
	}
}

// GetCart возвращает корзину владельца. Отсутствие корзины — не ошибка,
// а валидное пустое состояние.
func (s *Service) GetCart(ownerRef string) (domain.Cart, error) {
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}
	return s.carts.Get(ownerRef)
}

// SetLineQuantity применяет изменение количества к одной позиции и возвращает
// полную обновлённую корзину. Отрицательное количество — ошибка валидации,
// мутация не применяется.
func (s *Service) SetLineQuantity(ownerRef, productRef string, quantity int32) (domain.Cart, error) {
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}
	if productRef == "" {
		return domain.Cart{}, domain.ErrProductRefRequired
	}
	if quantity < 0 {
		return domain.Cart{}, domain.ErrQuantityNegative
	}

	if quantity == 0 {
		// Удаление отсутствующей позиции — no-op успех.
		return s.carts.RemoveLine(ownerRef, productRef)
	}

	current, err := s.carts.Get(ownerRef)
	if err != nil {
		return domain.Cart{}, err
	}

	line, exists := current.Line(productRef)
	if exists {
		// Позиция уже есть: перезаписываем только количество,
		// снапшот имени/цены остаётся от момента вставки.
		line.Quantity = quantity
		return s.carts.UpsertLine(ownerRef, line)
	}

	// Новая позиция: резолвим актуальные витринные данные из каталога
	// и фиксируем их снапшотом. Неизвестный товар — отказ без мутации.
	info, err := s.catalog.Resolve(productRef)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"owner_ref":   ownerRef,
			"product_ref": productRef,
		}).Warn("catalog resolve failed, cart left untouched")
		return domain.Cart{}, err
	}

	return s.carts.UpsertLine(ownerRef, domain.CartLine{
		ProductRef:  productRef,
		DisplayName: info.DisplayName,
		UnitPrice:   info.UnitPrice,
		Quantity:    quantity,
		AddedAt:     time.Now().UTC(),
	})
}

// Clear опустошает корзину владельца; идемпотентна.
func (s *Service) Clear(ownerRef string) error {
	if ownerRef == "" {
		return domain.ErrOwnerRequired
	}
	return s.carts.Clear(ownerRef)
}
