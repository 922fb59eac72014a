package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	callbackRecordTTL  = 24 * time.Hour
	clearMaxRetries    = 3
	clearRetryBaseWait = 50 * time.Millisecond
)

// SessionInitiator открывает платёжную сессию на серверный итог корзины.
type SessionInitiator interface {
	CreateSession(total decimal.Decimal) (domain.PaymentSession, error)
}

// OrderRecorder записывает оплаченный заказ, ровно один на платёжную сессию.
type OrderRecorder interface {
	RecordPaid(ownerRef string, cart domain.Cart, session domain.PaymentSession, payload domain.CallbackPayload) (domain.Order, error)
}

// Orchestrator описывает интерфейс управления протоколом checkout.
type Orchestrator interface {
	BeginCheckout(ownerRef string) (domain.CheckoutAttempt, error)
	HandleProviderSuccess(payload domain.CallbackPayload) (domain.Order, error)
	HandleProviderCancel(sessionID string) error
	Attempt(ownerRef string) (domain.CheckoutAttempt, bool)
}

// orchestrator реализует трёхфазный протокол: запрос сессии → ожидание
// callback провайдера → durable-запись заказа. Фазы строго последовательны
// в рамках одной попытки; у владельца не бывает двух живых попыток.
type orchestrator struct {
	carts         domain.CartRepository
	initiator     SessionInitiator
	recorder      OrderRecorder
	callbacks     domain.CallbackRepository
	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	attempts      *attemptRegistry
	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	kafkaProducer *kafka.Producer // опциональный Kafka producer для event-driven архитектуры
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(
	carts domain.CartRepository,
	initiator SessionInitiator,
	recorder OrderRecorder,
	callbacks domain.CallbackRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &orchestrator{
		carts:     carts,
		initiator: initiator,
		recorder:  recorder,
		callbacks: callbacks,
		outbox:    outbox,
		timeline:  timeline,
		attempts:  newAttemptRegistry(),
		logger:    logger,
		metrics:   metrics.NewCheckoutMetrics(),
	}
}

// NewOrchestratorWithKafka создаёт оркестратор с Kafka producer для event-driven архитектуры.
func NewOrchestratorWithKafka(
	carts domain.CartRepository,
	initiator SessionInitiator,
	recorder OrderRecorder,
	callbacks domain.CallbackRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) Orchestrator {
	o := NewOrchestrator(carts, initiator, recorder, callbacks, outbox, timeline, logger).(*orchestrator)
	o.kafkaProducer = kafkaProducer
	return o
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	carts domain.CartRepository,
	initiator SessionInitiator,
	recorder OrderRecorder,
	callbacks domain.CallbackRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) Orchestrator {
	o := NewOrchestrator(carts, initiator, recorder, callbacks, outbox, timeline, logger).(*orchestrator)
	o.metrics = nil
	return o
}

// BeginCheckout запускает попытку checkout владельца: фиксирует снапшот
// корзины, пересчитывает итог на сервере и запрашивает платёжную сессию.
// Сумму диктует не клиент, а авторитетная корзина на этот момент.
func (o *orchestrator) BeginCheckout(ownerRef string) (domain.CheckoutAttempt, error) {
	if ownerRef == "" {
		return domain.CheckoutAttempt{}, domain.ErrOwnerRequired
	}

	cart, err := o.carts.Get(ownerRef)
	if err != nil {
		return domain.CheckoutAttempt{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return domain.CheckoutAttempt{}, domain.ErrCartEmpty
	}

	if err := o.attempts.begin(ownerRef, cart); err != nil {
		o.logger.WithField("owner_ref", ownerRef).Warn("concurrent checkout attempt rejected")
		return domain.CheckoutAttempt{}, err
	}

	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
	}

	if err := o.attempts.transition(ownerRef, domain.CheckoutStateSessionRequested, domain.FailureReasonNone); err != nil {
		o.attempts.release(ownerRef)
		return domain.CheckoutAttempt{}, err
	}

	session, err := o.initiator.CreateSession(cart.Total())
	if o.metrics != nil {
		o.metrics.RecordPhaseDuration("session_requested", time.Since(start))
	}
	if err != nil {
		// Сессии не было, локальных side effects нет: повтор безопасен из Idle.
		// Автоматический retry здесь запрещён, чтобы не наплодить сессий.
		o.failAttempt(ownerRef, "", domain.FailureGatewayUnavailable, err)
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return domain.CheckoutAttempt{}, err
		}
		return domain.CheckoutAttempt{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	o.attempts.bindSession(ownerRef, session)
	if err := o.attempts.transition(ownerRef, domain.CheckoutStateAwaitingCallback, domain.FailureReasonNone); err != nil {
		o.failAttempt(ownerRef, session.ID, domain.FailureGatewayUnavailable, err)
		return domain.CheckoutAttempt{}, err
	}

	o.emitEvent(session.ID, ownerRef, "CheckoutSessionCreated", map[string]interface{}{
		"amount_minor": session.AmountMinor,
		"currency":     session.Currency,
		"lines_count":  len(cart.Lines),
	})
	o.publishCheckoutEvent(kafka.EventTypeSessionCreated, session.ID, ownerRef, map[string]interface{}{
		"amount_minor": session.AmountMinor,
		"currency":     session.Currency,
	})

	o.logger.WithFields(log.Fields{
		"owner_ref":    ownerRef,
		"session_id":   session.ID,
		"amount_minor": session.AmountMinor,
	}).Info("checkout session created, awaiting provider callback")

	attempt, _ := o.attempts.byOwnerRef(ownerRef)
	return attempt.attempt, nil
}

// HandleProviderSuccess обрабатывает success callback провайдера: проверяет
// дубликат доставки, записывает заказ и только после durable-записи чистит
// корзину. Повторный callback по уже записанной сессии идемпотентно
// возвращает существующий заказ.
func (o *orchestrator) HandleProviderSuccess(payload domain.CallbackPayload) (domain.Order, error) {
	if payload.SessionID == "" {
		return domain.Order{}, domain.ErrCallbackSessionRequired
	}

	record, err := o.callbacks.CreateProcessing(payload.SessionID, payloadHash(payload), time.Now().Add(callbackRecordTTL))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCallbackAlreadyExists):
			return o.resolveDuplicate(record)
		case errors.Is(err, domain.ErrCallbackHashMismatch):
			o.logger.WithField("session_id", payload.SessionID).Warn("duplicate callback with different payload")
			return domain.Order{}, err
		default:
			return domain.Order{}, err
		}
	}

	state, ok := o.attempts.bySessionID(payload.SessionID)
	if !ok {
		_ = o.callbacks.MarkFailed(payload.SessionID, "unknown session")
		return domain.Order{}, domain.ErrUnknownSession
	}
	ownerRef := state.attempt.OwnerRef

	if err := o.attempts.transition(ownerRef, domain.CheckoutStateOrderRecording, domain.FailureReasonNone); err != nil {
		_ = o.callbacks.MarkFailed(payload.SessionID, err.Error())
		return domain.Order{}, err
	}

	recordStart := time.Now()
	order, err := o.recorder.RecordPaid(ownerRef, state.cart, state.attempt.Session, payload)
	if o.metrics != nil {
		o.metrics.RecordPhaseDuration("order_recording", time.Since(recordStart))
	}
	if err != nil {
		_ = o.callbacks.MarkFailed(payload.SessionID, err.Error())
		if errors.Is(err, domain.ErrSignatureMismatch) || errors.Is(err, domain.ErrIncompleteOrderData) {
			// Платёж не признан, но попытка жива: настоящая доставка
			// провайдера ещё может прийти.
			o.attempts.rewind(ownerRef, domain.CheckoutStateAwaitingCallback)
			return domain.Order{}, err
		}
		// Провайдер деньги принял, заказа нет. Корзина намеренно не тронута.
		o.failAttempt(ownerRef, payload.SessionID, domain.FailureOrderPersistenceFailed, err)
		return domain.Order{}, err
	}

	if err := o.callbacks.MarkDone(payload.SessionID, order.ID); err != nil {
		o.logger.WithError(err).WithField("session_id", payload.SessionID).Warn("mark callback done failed")
	}

	if err := o.attempts.transition(ownerRef, domain.CheckoutStateCompleted, domain.FailureReasonNone); err != nil {
		o.logger.WithError(err).WithField("session_id", payload.SessionID).Warn("completed transition rejected")
	}

	// Очистка корзины строго после записи заказа. Неудача очистки не
	// отменяет completed: заказ уже durable, остаток чистится с повторами
	// и в худшем случае остаётся в логе.
	o.clearCartWithRetry(ownerRef, payload.SessionID)

	o.emitEvent(payload.SessionID, ownerRef, "CheckoutCompleted", map[string]interface{}{
		"order_id":     order.ID,
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
	})
	o.publishCheckoutEvent(kafka.EventTypeCheckoutCompleted, payload.SessionID, ownerRef, map[string]interface{}{
		"order_id": order.ID,
	})
	o.publishOrderEvent(order)

	if o.metrics != nil {
		o.metrics.RecordCheckoutCompleted()
		o.metrics.RecordCheckoutDuration(time.Since(state.attempt.StartedAt))
	}

	o.attempts.release(ownerRef)

	o.logger.WithFields(log.Fields{
		"owner_ref":  ownerRef,
		"session_id": payload.SessionID,
		"order_id":   order.ID,
	}).Info("checkout completed")

	return order, nil
}

// HandleProviderCancel обрабатывает явную отмену платёжного виджета
// покупателем. Отмена — первоклассный переход, а не таймаут: корзина
// сохраняется нетронутой, попытка завершается Failed(user_cancelled).
func (o *orchestrator) HandleProviderCancel(sessionID string) error {
	if sessionID == "" {
		return domain.ErrCallbackSessionRequired
	}

	state, ok := o.attempts.bySessionID(sessionID)
	if !ok {
		return domain.ErrUnknownSession
	}
	ownerRef := state.attempt.OwnerRef

	if err := o.attempts.transition(ownerRef, domain.CheckoutStateFailed, domain.FailureUserCancelled); err != nil {
		return err
	}

	o.emitEvent(sessionID, ownerRef, "CheckoutCancelled", map[string]interface{}{
		"reason": string(domain.FailureUserCancelled),
	})
	o.publishCheckoutEvent(kafka.EventTypeCheckoutCancelled, sessionID, ownerRef, nil)

	if o.metrics != nil {
		o.metrics.RecordCheckoutCancelled()
	}

	o.attempts.release(ownerRef)

	o.logger.WithFields(log.Fields{
		"owner_ref":  ownerRef,
		"session_id": sessionID,
	}).Info("checkout cancelled by user, cart preserved")

	return nil
}

// Attempt возвращает текущую попытку владельца, если она есть.
func (o *orchestrator) Attempt(ownerRef string) (domain.CheckoutAttempt, bool) {
	state, ok := o.attempts.byOwnerRef(ownerRef)
	if !ok {
		return domain.CheckoutAttempt{}, false
	}
	return state.attempt, true
}

// resolveDuplicate разбирает повторную доставку callback по той же сессии.
func (o *orchestrator) resolveDuplicate(record domain.CallbackRecord) (domain.Order, error) {
	switch record.Status {
	case domain.CallbackStatusDone:
		rec, ok := o.recorder.(interface {
			GetBySession(providerSessionID string) (domain.Order, error)
		})
		if ok {
			order, err := rec.GetBySession(record.SessionID)
			if err == nil {
				o.logger.WithFields(log.Fields{
					"session_id": record.SessionID,
					"order_id":   order.ID,
				}).Info("duplicate callback resolved to recorded order")
				return order, nil
			}
		}
		return domain.Order{}, domain.ErrCallbackAlreadyExists
	case domain.CallbackStatusFailed:
		return domain.Order{}, fmt.Errorf("%w: previous delivery failed: %s", domain.ErrCallbackAlreadyExists, record.Reason)
	default:
		// Обработка первой доставки ещё идёт.
		return domain.Order{}, domain.ErrCallbackAlreadyExists
	}
}

// failAttempt переводит попытку в Failed и освобождает владельца для новой
// попытки из Idle.
func (o *orchestrator) failAttempt(ownerRef, sessionID string, reason domain.FailureReason, rootErr error) {
	if err := o.attempts.transition(ownerRef, domain.CheckoutStateFailed, reason); err != nil {
		o.logger.WithError(err).WithField("owner_ref", ownerRef).Warn("fail transition rejected")
	}

	o.emitEvent(sessionID, ownerRef, "CheckoutFailed", map[string]interface{}{
		"reason": string(reason),
		"error":  rootErr.Error(),
	})
	o.publishCheckoutEvent(kafka.EventTypeCheckoutFailed, sessionID, ownerRef, map[string]interface{}{
		"reason": string(reason),
	})

	if o.metrics != nil {
		o.metrics.RecordCheckoutFailed(string(reason))
	}

	o.attempts.release(ownerRef)
}

// clearCartWithRetry чистит корзину после записи заказа с ограниченным
// числом повторов и exponential backoff.
func (o *orchestrator) clearCartWithRetry(ownerRef, sessionID string) {
	var lastErr error
	delay := clearRetryBaseWait

	for attempt := 1; attempt <= clearMaxRetries; attempt++ {
		if lastErr = o.carts.Clear(ownerRef); lastErr == nil {
			o.emitEvent(sessionID, ownerRef, "CartCleared", nil)
			o.publishCheckoutEvent(kafka.EventTypeCartCleared, sessionID, ownerRef, nil)
			return
		}
		if attempt < clearMaxRetries {
			if o.metrics != nil {
				o.metrics.RecordCartClearRetry()
			}
			time.Sleep(delay)
			delay *= 2
		}
	}

	o.logger.WithError(lastErr).WithFields(log.Fields{
		"owner_ref":  ownerRef,
		"session_id": sessionID,
	}).Error("cart clear failed after retries, order already recorded")
	o.emitEvent(sessionID, ownerRef, "CartClearFailed", map[string]interface{}{
		"error": lastErr.Error(),
	})
	o.publishCheckoutEvent(kafka.EventTypeCartClearFailed, sessionID, ownerRef, nil)
}

func (o *orchestrator) emitEvent(sessionID, ownerRef, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["session_id"] = sessionID
	payload["owner_ref"] = ownerRef
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"session_id": sessionID,
			"event":      eventType,
		}).Error("marshal event failed")
		return
	}

	if o.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "checkout",
			AggregateID:   sessionID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := o.outbox.Enqueue(msg); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"session_id": sessionID,
				"event":      eventType,
			}).Error("enqueue event failed")
		} else if o.metrics != nil {
			o.metrics.RecordOutboxEvent()
		}
	}

	if o.timeline != nil {
		var reason string
		if r, ok := payload["reason"].(string); ok {
			reason = r
		}
		event := domain.TimelineEvent{
			SessionID: sessionID,
			OwnerRef:  ownerRef,
			Type:      eventType,
			Reason:    reason,
			Occurred:  time.Now().UTC(),
		}
		if err := o.timeline.Append(event); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"session_id": sessionID,
				"event":      eventType,
			}).Warn("append timeline event failed")
		} else if o.metrics != nil {
			o.metrics.RecordTimelineEvent()
		}
	}
}

// publishCheckoutEvent публикует событие checkout в Kafka (если producer настроен)
func (o *orchestrator) publishCheckoutEvent(eventType kafka.EventType, sessionID, ownerRef string, metadata map[string]interface{}) {
	if o.kafkaProducer == nil {
		return // Kafka не настроен, пропускаем
	}

	event := kafka.NewCheckoutEvent(eventType, sessionID, ownerRef, metadata)
	if err := o.kafkaProducer.PublishEvent(kafka.TopicCheckoutEvents, sessionID, event); err != nil {
		// Логируем ошибку, но не прерываем checkout - Kafka опциональный
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"session_id": sessionID,
		}).Warn("failed to publish checkout event to kafka")
	}
}

func (o *orchestrator) publishOrderEvent(order domain.Order) {
	if o.kafkaProducer == nil {
		return
	}

	event := kafka.NewOrderEvent(kafka.EventTypeOrderRecorded, order.ID, order.OwnerRef, string(order.Status), map[string]interface{}{
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
	})
	if err := o.kafkaProducer.PublishEvent(kafka.TopicOrderEvents, order.ID, event); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to publish order event to kafka")
	}
}

// payloadHash однозначно идентифицирует содержимое callback при проверке
// повторной доставки.
func payloadHash(payload domain.CallbackPayload) string {
	sum := sha256.Sum256([]byte(payload.SessionID + "|" + payload.PaymentRef + "|" + payload.Signature))
	return hex.EncodeToString(sum[:])
}

var _ Orchestrator = (*orchestrator)(nil)
