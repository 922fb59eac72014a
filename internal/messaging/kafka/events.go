package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Checkout события
	EventTypeCheckoutStarted   EventType = "checkout.started"
	EventTypeCheckoutCompleted EventType = "checkout.completed"
	EventTypeCheckoutFailed    EventType = "checkout.failed"
	EventTypeCheckoutCancelled EventType = "checkout.cancelled"

	// Фазовые события протокола
	EventTypeSessionCreated   EventType = "checkout.session_created"
	EventTypeCallbackReceived EventType = "checkout.callback_received"

	// Order события
	EventTypeOrderRecorded EventType = "order.recorded"

	// Cart события
	EventTypeCartCleared     EventType = "cart.cleared"
	EventTypeCartClearFailed EventType = "cart.clear_failed"
)

// Topics для Kafka
const (
	TopicCheckoutEvents  = "storefront.checkout.events"
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CheckoutEvent представляет событие попытки checkout
type CheckoutEvent struct {
	EventType EventType              `json:"event_type"`
	SessionID string                 `json:"session_id"`
	OwnerRef  string                 `json:"owner_ref"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// OrderEvent представляет событие записанного заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	OwnerRef  string                 `json:"owner_ref"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewCheckoutEvent создает новое событие checkout
func NewCheckoutEvent(eventType EventType, sessionID, ownerRef string, metadata map[string]interface{}) *CheckoutEvent {
	return &CheckoutEvent{
		EventType: eventType,
		SessionID: sessionID,
		OwnerRef:  ownerRef,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, ownerRef, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		OwnerRef:  ownerRef,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
