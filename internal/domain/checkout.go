package domain

import "time"

// CheckoutState описывает фазы протокола checkout.
type CheckoutState string

const (
	// CheckoutStateIdle — попытка не начата.
	CheckoutStateIdle CheckoutState = "idle"
	// CheckoutStateSessionRequested — запрошена платёжная сессия у провайдера.
	CheckoutStateSessionRequested CheckoutState = "session_requested"
	// CheckoutStateAwaitingCallback — виджет провайдера собирает оплату, ждём callback.
	CheckoutStateAwaitingCallback CheckoutState = "awaiting_provider_callback"
	// CheckoutStateOrderRecording — success callback получен, идёт durable-запись заказа.
	CheckoutStateOrderRecording CheckoutState = "order_recording"
	// CheckoutStateCompleted — заказ записан, корзина очищена (или очистка залогирована).
	CheckoutStateCompleted CheckoutState = "completed"
	// CheckoutStateFailed — поглощающее состояние ошибки; причина в FailureReason.
	CheckoutStateFailed CheckoutState = "failed"
)

// FailureReason уточняет, почему попытка checkout оказалась в Failed.
type FailureReason string

const (
	FailureReasonNone             FailureReason = ""
	FailureGatewayUnavailable     FailureReason = "gateway_unavailable"
	FailureUserCancelled          FailureReason = "user_cancelled"
	FailureOrderPersistenceFailed FailureReason = "order_persistence_failed"
)

// IsTerminal сообщает, является ли состояние конечным для попытки.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateCompleted || s == CheckoutStateFailed
}

// String нужен для логов и событий.
func (s CheckoutState) String() string {
	return string(s)
}

// checkoutTransitions перечисляет допустимые переходы протокола.
// Failed достижим из любого нетерминального состояния.
var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:             {CheckoutStateSessionRequested},
	CheckoutStateSessionRequested: {CheckoutStateAwaitingCallback},
	CheckoutStateAwaitingCallback: {CheckoutStateOrderRecording},
	CheckoutStateOrderRecording:   {CheckoutStateCompleted},
}

// CanTransitionTo проверяет допустимость перехода from → to.
func CanTransitionTo(from, to CheckoutState) bool {
	if to == CheckoutStateFailed {
		return !from.IsTerminal()
	}
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentSession — эфемерный хэндл платёжной сессии провайдера.
// Живёт только в рамках одной попытки checkout и не персистится локально.
type PaymentSession struct {
	ID string
	// AmountMinor и Currency — эхо провайдера; именно их показывает платёжный виджет.
	AmountMinor int64
	Currency    string
}

// CheckoutAttempt — одна попытка checkout одного владельца.
// Для владельца одновременно допускается не более одной нетерминальной попытки.
type CheckoutAttempt struct {
	OwnerRef      string
	Session       PaymentSession
	State         CheckoutState
	FailureReason FailureReason
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// CallbackPayload — payload success callback платёжного провайдера.
type CallbackPayload struct {
	SessionID  string
	PaymentRef string
	Signature  string
}
