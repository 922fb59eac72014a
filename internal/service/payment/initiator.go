package payment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Initiator открывает платёжные сессии у провайдера.
// Единственная его обязанность — точная конвертация суммы в минимальные
// единицы и один запрос сессии; локальных side effects у вызова нет,
// поэтому неудавшийся запрос безопасно повторять новой попыткой.
type Initiator struct {
	gateway  domain.PaymentGateway
	currency string
	logger   *log.Entry
}

// NewInitiator создаёт инициатор платёжных сессий для одной валюты магазина.
func NewInitiator(gateway domain.PaymentGateway, currency string, logger *log.Entry) (*Initiator, error) {
	if logger == nil {
		logger = log.New().WithField("component", "payment-initiator")
	}
	// Валидируем код валюты сразу, а не на первом checkout.
	if _, err := domain.MinorUnits(decimal.Zero, currency); err != nil {
		return nil, err
	}
	return &Initiator{
		gateway:  gateway,
		currency: currency,
		logger:   logger,
	}, nil
}

// Currency возвращает валюту магазина.
func (i *Initiator) Currency() string {
	return i.currency
}

// CreateSession открывает провайдерскую сессию на сумму total (в основных
// единицах). Конвертация в минимальные единицы — округление к ближайшей,
// никогда молчаливое усечение. Эхо провайдера (сумма/валюта) — источник
// истины для платёжного виджета.
func (i *Initiator) CreateSession(total decimal.Decimal) (domain.PaymentSession, error) {
	if !total.IsPositive() {
		return domain.PaymentSession{}, domain.ErrAmountNotPositive
	}

	minor, err := domain.MinorUnits(total, i.currency)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if minor <= 0 {
		return domain.PaymentSession{}, domain.ErrAmountNotPositive
	}

	session, err := i.gateway.CreateSession(minor, i.currency)
	if err != nil {
		i.logger.WithError(err).WithFields(log.Fields{
			"amount_minor": minor,
			"currency":     i.currency,
		}).Warn("payment session creation failed")
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return domain.PaymentSession{}, err
		}
		return domain.PaymentSession{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	i.logger.WithFields(log.Fields{
		"session_id":   session.ID,
		"amount_minor": session.AmountMinor,
		"currency":     session.Currency,
	}).Info("payment session created")

	return session, nil
}
