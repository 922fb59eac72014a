package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// Recorder записывает оплаченные заказы. Запись атомарна и ровно одна на
// платёжную сессию: повторная доставка callback'а не порождает второй заказ.
type Recorder struct {
	orders         domain.OrderRepository
	callbackSecret string
	logger         *log.Entry
}

// NewRecorder создаёт рекордер заказов. callbackSecret — общий с провайдером
// секрет для проверки подписи success callback'ов.
func NewRecorder(orders domain.OrderRepository, callbackSecret string, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.New().WithField("component", "order-recorder")
	}
	return &Recorder{
		orders:         orders,
		callbackSecret: callbackSecret,
		logger:         logger,
	}
}

// RecordPaid собирает заказ из содержимого корзины, платёжной сессии и
// callback'а провайдера и записывает его со статусом paid.
//
// Порядок проверок: сначала подпись (ErrSignatureMismatch — платёж не
// признаётся), затем полнота данных (ErrIncompleteOrderData — записи нет).
// Повторный callback по уже записанной сессии идемпотентно возвращает
// существующий заказ.
func (r *Recorder) RecordPaid(ownerRef string, cart domain.Cart, session domain.PaymentSession, payload domain.CallbackPayload) (domain.Order, error) {
	if err := payment.VerifyCallback(payload, r.callbackSecret); err != nil {
		r.logger.WithFields(log.Fields{
			"owner_ref":  ownerRef,
			"session_id": payload.SessionID,
		}).Warn("callback signature rejected")
		return domain.Order{}, err
	}

	now := time.Now()
	order := domain.Order{
		ID:       uuid.NewString(),
		OwnerRef: ownerRef,
		Status:   domain.OrderStatusPaid,
		Currency: session.Currency,
		// Сумма берётся из сессии, пересчитанной сервером при её создании,
		// а не из данных клиента.
		AmountMinor: session.AmountMinor,
		Items: lo.Map(cart.Lines, func(line domain.CartLine, _ int) domain.OrderItem {
			return domain.OrderItem{
				ID:          uuid.NewString(),
				ProductRef:  line.ProductRef,
				DisplayName: line.DisplayName,
				UnitPrice:   line.UnitPrice,
				Qty:         line.Quantity,
				CreatedAt:   now,
			}
		}),
		ProviderSessionID:  payload.SessionID,
		ProviderPaymentRef: payload.PaymentRef,
		ProviderSignature:  payload.Signature,
		CreatedAt:          now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrIncompleteOrderData, errors.Join(errs...))
	}

	created, err := r.orders.Create(order)
	if err != nil {
		if errors.Is(err, domain.ErrSessionAlreadyRecorded) {
			existing, getErr := r.orders.GetBySession(payload.SessionID)
			if getErr != nil {
				return domain.Order{}, fmt.Errorf("%w: lookup of already recorded session: %v",
					domain.ErrOrderPersistenceFailed, getErr)
			}
			r.logger.WithFields(log.Fields{
				"order_id":   existing.ID,
				"session_id": payload.SessionID,
			}).Info("duplicate callback, returning already recorded order")
			return existing, nil
		}
		// Деньги приняты провайдером, а заказа нет. Это состояние обязано
		// быть громким: без ручной сверки его не чинят.
		r.logger.WithError(err).WithFields(log.Fields{
			"owner_ref":  ownerRef,
			"session_id": payload.SessionID,
		}).Error("payment captured but order not persisted")
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrOrderPersistenceFailed, err)
	}

	r.logger.WithFields(log.Fields{
		"order_id":     created.ID,
		"owner_ref":    created.OwnerRef,
		"session_id":   created.ProviderSessionID,
		"amount_minor": created.AmountMinor,
	}).Info("order recorded")

	return created, nil
}

// ListOrders возвращает заказы владельца, новые первыми.
func (r *Recorder) ListOrders(ownerRef string, limit int) ([]domain.Order, error) {
	if ownerRef == "" {
		return nil, domain.ErrOwnerRequired
	}
	return r.orders.ListByOwner(ownerRef, limit)
}

// GetBySession возвращает заказ, записанный по платёжной сессии.
func (r *Recorder) GetBySession(providerSessionID string) (domain.Order, error) {
	if providerSessionID == "" {
		return domain.Order{}, domain.ErrProviderSessionRequired
	}
	return r.orders.GetBySession(providerSessionID)
}
