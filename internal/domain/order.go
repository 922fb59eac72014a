package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл записанного заказа.
type OrderStatus string

const (
	// OrderStatusCreated — запись заказа создана, подтверждение оплаты ещё не зафиксировано.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusPaid — оплата подтверждена провайдером и проверена по подписи.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed — попытка оплаты завершилась неуспехом.
	OrderStatusFailed OrderStatus = "failed"
)

// OrderItem — снапшот одной позиции корзины на момент покупки.
// Заказ и корзина не разделяют живых ссылок: корзина остаётся изменяемой,
// а записанный заказ обязан оставаться исторически точным.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductRef — внешний идентификатор товара.
	ProductRef string
	// DisplayName — название товара на момент покупки.
	DisplayName string
	// UnitPrice — цена за единицу в основных единицах валюты на момент покупки.
	UnitPrice decimal.Decimal
	// Qty — количество единиц товара.
	Qty int32
	// CreatedAt фиксирует момент записи позиции.
	CreatedAt time.Time
}

// Order — неизменяемая запись завершённой покупки.
// Создаётся ровно один раз на успешную платёжную сессию провайдера;
// после достижения терминального статуса не мутирует.
type Order struct {
	ID       string
	OwnerRef string
	Status   OrderStatus
	Currency string
	// AmountMinor — итоговая сумма в минимальных денежных единицах.
	AmountMinor int64
	Items       []OrderItem
	// ProviderSessionID — идентификатор платёжной сессии провайдера; уникален среди заказов.
	ProviderSessionID string
	// ProviderPaymentRef — ссылка провайдера на сам платёж.
	ProviderPaymentRef string
	// ProviderSignature — токен подписи из success callback провайдера.
	ProviderSignature string
	CreatedAt         time.Time
}

// ValidateInvariants проверяет полноту данных заказа и возвращает список замечаний.
// Любое замечание означает IncompleteOrderData: запись не должна происходить.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OwnerRef == "" {
		errs = append(errs, ErrOwnerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor <= 0 {
		errs = append(errs, ErrAmountNotPositive)
	}
	if o.ProviderSessionID == "" {
		errs = append(errs, ErrProviderSessionRequired)
	}
	if o.ProviderPaymentRef == "" {
		errs = append(errs, ErrProviderPaymentRefRequired)
	}
	if o.ProviderSignature == "" {
		errs = append(errs, ErrProviderSignatureRequired)
	}

	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
	}

	return errs
}
