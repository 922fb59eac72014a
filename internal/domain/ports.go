package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductInfo — витринные данные товара, которые каталог отдаёт при резолве.
type ProductInfo struct {
	DisplayName string
	UnitPrice   decimal.Decimal
}

// CatalogService описывает взаимодействие с каталогом товаров.
type CatalogService interface {
	// Resolve возвращает актуальные имя и цену товара либо ErrProductNotFound.
	Resolve(productRef string) (ProductInfo, error)
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// CreateSession открывает платёжную сессию на сумму в минимальных единицах.
	// Вызов не имеет локальных side effects и безопасен для повтора:
	// неудавшийся или истёкший по таймауту запрос считается несостоявшимся.
	CreateSession(amountMinor int64, currency string) (PaymentSession, error)
}

// CartRepository описывает требования к хранилищу корзин.
// Мутации применяются по ключу позиции, а не заменой всего документа:
// конкурентные обновления разных позиций не должны терять друг друга.
type CartRepository interface {
	// Get возвращает корзину владельца. Отсутствие документа — валидное
	// состояние: возвращается пустая корзина, а не ошибка.
	Get(ownerRef string) (Cart, error)
	// UpsertLine вставляет или перезаписывает позицию и возвращает полную корзину.
	UpsertLine(ownerRef string, line CartLine) (Cart, error)
	// RemoveLine удаляет позицию; удаление отсутствующей позиции — no-op успех.
	RemoveLine(ownerRef, productRef string) (Cart, error)
	// Clear удаляет все позиции; идемпотентна.
	Clear(ownerRef string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create записывает новый заказ. Если по этой платёжной сессии заказ уже
	// существует, возвращает ErrSessionAlreadyRecorded.
	Create(order Order) (Order, error)
	// GetBySession возвращает заказ по идентификатору платёжной сессии.
	GetBySession(providerSessionID string) (Order, error)
	// ListByOwner возвращает заказы владельца, новые первыми, с ограничением limit (если > 0).
	ListByOwner(ownerRef string, limit int) ([]Order, error)
}

// CallbackRepository хранит состояние обработки provider callback по session id,
// чтобы дубликат доставки не дошёл до повторной записи заказа.
type CallbackRepository interface {
	CreateProcessing(sessionID, payloadHash string, ttlAt time.Time) (CallbackRecord, error)
	Get(sessionID string) (CallbackRecord, error)
	MarkDone(sessionID, orderID string) error
	MarkFailed(sessionID, reason string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// TimelineRepository хранит события жизненного цикла попыток checkout.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(sessionID string) ([]TimelineEvent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// TimelineEvent описывает событие в жизненном цикле попытки checkout.
type TimelineEvent struct {
	SessionID string
	OwnerRef  string
	Type      string
	Reason    string
	Occurred  time.Time
}
