package domain

import "time"

// CallbackStatus описывает жизненный цикл обработки provider callback.
type CallbackStatus string

const (
	// CallbackStatusProcessing означает, что callback принят и ещё обрабатывается.
	CallbackStatusProcessing CallbackStatus = "processing"
	// CallbackStatusDone означает, что заказ по сессии успешно записан.
	CallbackStatusDone CallbackStatus = "done"
	// CallbackStatusFailed означает, что обработка завершилась ошибкой.
	CallbackStatusFailed CallbackStatus = "failed"
)

// CallbackRecord хранит состояние обработки callback по платёжной сессии.
// SessionID одновременно служит ключом идемпотентности: повторная доставка
// того же callback обязана дать тот же исход, а не второй заказ.
type CallbackRecord struct {
	SessionID   string
	PayloadHash string
	OrderID     string
	Reason      string
	Status      CallbackStatus
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s CallbackStatus) Valid() bool {
	switch s {
	case CallbackStatusProcessing, CallbackStatusDone, CallbackStatusFailed:
		return true
	default:
		return false
	}
}
