package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора владельца корзины/заказа.
	ErrOwnerRequired = errors.New("owner_ref is required")
	// Ошибка отсутствующей ссылки на товар.
	ErrProductRefRequired = errors.New("product_ref is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка неположительной суммы заказа.
	ErrAmountNotPositive = errors.New("amount_minor must be greater than zero")
	// Ошибка при некорректном количестве в позиции (< 1).
	ErrLineQtyInvalid = errors.New("line quantity must be at least one")
	// Ошибка отрицательной цены позиции.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка дублирования product ref внутри одной корзины.
	ErrLineDuplicated = errors.New("cart line product_ref must be unique")
	// ErrQuantityNegative — запрошенное количество отрицательно; мутация не применяется.
	ErrQuantityNegative = errors.New("quantity must be a non-negative integer")

	// ErrProductNotFound — каталог не знает такой product ref; мутация не применяется.
	ErrProductNotFound = errors.New("product not found in catalog")
	// ErrGatewayUnavailable — платёжный провайдер недоступен или отклонил запрос сессии.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrUserCancelled — покупатель закрыл платёжный виджет; корзина сохраняется.
	ErrUserCancelled = errors.New("checkout cancelled by user")
	// ErrIncompleteOrderData — недостаточно данных для записи заказа; записи не происходит.
	ErrIncompleteOrderData = errors.New("incomplete order data")
	// ErrOrderPersistenceFailed — оплата получена провайдером, но заказ не записан.
	// Требует ручной сверки и никогда не должна глотаться молча.
	ErrOrderPersistenceFailed = errors.New("payment captured but order not persisted")
	// ErrUnauthorized — учётные данные отсутствуют или просрочены.
	ErrUnauthorized = errors.New("credential missing or expired")

	// ErrCartEmpty — checkout по пустой корзине невозможен.
	ErrCartEmpty = errors.New("cart is empty, nothing to checkout")
	// ErrCheckoutInProgress — у владельца уже есть незавершённая попытка checkout.
	ErrCheckoutInProgress = errors.New("another checkout attempt is in progress")
	// ErrSignatureMismatch — подпись провайдера не прошла проверку; платёж не признаётся.
	ErrSignatureMismatch = errors.New("provider signature verification failed")
	// ErrUnknownSession — callback ссылается на неизвестную платёжную сессию.
	ErrUnknownSession = errors.New("unknown payment session")
	// ErrIllegalTransition — недопустимый переход состояния checkout.
	ErrIllegalTransition = errors.New("illegal checkout state transition")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrSessionAlreadyRecorded — по этой платёжной сессии заказ уже записан.
	ErrSessionAlreadyRecorded = errors.New("order already recorded for this session")
	// Ошибка отсутствующего provider session id у заказа.
	ErrProviderSessionRequired = errors.New("provider session_id is required")
	// Ошибка отсутствующей ссылки на платёж провайдера.
	ErrProviderPaymentRefRequired = errors.New("provider payment_ref is required")
	// Ошибка отсутствующей подписи провайдера.
	ErrProviderSignatureRequired = errors.New("provider signature is required")

	// Ошибка отсутствующего session id у callback-записи.
	ErrCallbackSessionRequired = errors.New("callback session_id is required")
	// Ошибка отсутствующего хэша payload у callback-записи.
	ErrCallbackHashRequired = errors.New("callback payload hash is required")
	// ErrCallbackAlreadyExists — запись по этой сессии уже создана.
	ErrCallbackAlreadyExists = errors.New("callback record already exists")
	// ErrCallbackNotFound — запись по этой сессии отсутствует.
	ErrCallbackNotFound = errors.New("callback record not found")
	// ErrCallbackHashMismatch — повторный callback с тем же session id, но другим payload.
	ErrCallbackHashMismatch = errors.New("callback payload hash mismatch")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsUnauthorized проверяет, является ли ошибка отказом в авторизации.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation сообщает, относится ли ошибка к немедленно входным (без retry).
func IsValidation(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrIncompleteOrderData) ||
		errors.Is(err, ErrQuantityNegative)
}
