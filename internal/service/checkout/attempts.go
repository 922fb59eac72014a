package checkout

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// attemptState — одна живая попытка checkout вместе со снапшотом корзины,
// зафиксированным на момент старта. Заказ записывается из этого снапшота,
// а не из живой корзины: содержимое, за которое покупатель платит, не должно
// меняться под ним между фазами.
type attemptState struct {
	attempt domain.CheckoutAttempt
	cart    domain.Cart
}

// attemptRegistry обеспечивает single-flight по владельцу: не более одной
// нетерминальной попытки одновременно. Вторая попытка отклоняется, а не
// ставится в очередь, чтобы две сессии не гонялись записать два заказа из
// одной корзины.
type attemptRegistry struct {
	mu        sync.Mutex
	byOwner   map[string]*attemptState
	bySession map[string]string
}

func newAttemptRegistry() *attemptRegistry {
	return &attemptRegistry{
		byOwner:   make(map[string]*attemptState),
		bySession: make(map[string]string),
	}
}

// begin регистрирует новую попытку владельца или возвращает ErrCheckoutInProgress.
func (r *attemptRegistry) begin(ownerRef string, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byOwner[ownerRef]; ok && !existing.attempt.State.IsTerminal() {
		return domain.ErrCheckoutInProgress
	}

	now := time.Now()
	r.byOwner[ownerRef] = &attemptState{
		attempt: domain.CheckoutAttempt{
			OwnerRef:  ownerRef,
			State:     domain.CheckoutStateIdle,
			StartedAt: now,
			UpdatedAt: now,
		},
		cart: cart,
	}
	return nil
}

// bindSession привязывает платёжную сессию к попытке владельца.
func (r *attemptRegistry) bindSession(ownerRef string, session domain.PaymentSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.byOwner[ownerRef]
	if !ok {
		return
	}
	state.attempt.Session = session
	r.bySession[session.ID] = ownerRef
}

// transition переводит попытку владельца в новое состояние, проверяя
// допустимость перехода.
func (r *attemptRegistry) transition(ownerRef string, to domain.CheckoutState, reason domain.FailureReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.byOwner[ownerRef]
	if !ok {
		return domain.ErrUnknownSession
	}
	if !domain.CanTransitionTo(state.attempt.State, to) {
		return domain.ErrIllegalTransition
	}
	state.attempt.State = to
	state.attempt.FailureReason = reason
	state.attempt.UpdatedAt = time.Now()
	return nil
}

// rewind безусловно возвращает попытку в указанное состояние. Используется
// только при отклонённом callback: попытка продолжает ждать настоящую
// доставку провайдера.
func (r *attemptRegistry) rewind(ownerRef string, to domain.CheckoutState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.byOwner[ownerRef]
	if !ok {
		return
	}
	state.attempt.State = to
	state.attempt.FailureReason = domain.FailureReasonNone
	state.attempt.UpdatedAt = time.Now()
}

// bySessionID возвращает копию попытки, привязанной к платёжной сессии.
func (r *attemptRegistry) bySessionID(sessionID string) (attemptState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ownerRef, ok := r.bySession[sessionID]
	if !ok {
		return attemptState{}, false
	}
	state, ok := r.byOwner[ownerRef]
	if !ok || state.attempt.Session.ID != sessionID {
		return attemptState{}, false
	}
	return *state, true
}

// byOwnerRef возвращает копию текущей попытки владельца.
func (r *attemptRegistry) byOwnerRef(ownerRef string) (attemptState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.byOwner[ownerRef]
	if !ok {
		return attemptState{}, false
	}
	return *state, true
}

// release снимает попытку владельца; терминальное состояние открывает дорогу
// новой попытке из Idle.
func (r *attemptRegistry) release(ownerRef string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.byOwner[ownerRef]
	if !ok {
		return
	}
	if state.attempt.Session.ID != "" {
		delete(r.bySession, state.attempt.Session.ID)
	}
	delete(r.byOwner, ownerRef)
}
