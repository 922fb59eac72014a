package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// callbackRepositoryInMemory — in-memory реализация CallbackRepository.
type callbackRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]domain.CallbackRecord
}

// NewCallbackRepository создаёт in-memory хранилище callback-записей.
func NewCallbackRepository() domain.CallbackRepository {
	return &callbackRepositoryInMemory{
		records: make(map[string]domain.CallbackRecord),
	}
}

// CreateProcessing регистрирует начало обработки callback по сессии.
// Повторная регистрация возвращает существующую запись и ошибку-маркер.
// Запись со статусом failed перезаписывается свежей доставкой: провал
// обработки не должен навсегда блокировать сессию.
func (r *callbackRepositoryInMemory) CreateProcessing(sessionID, payloadHash string, ttlAt time.Time) (domain.CallbackRecord, error) {
	sessionID = strings.TrimSpace(sessionID)
	payloadHash = strings.TrimSpace(payloadHash)

	if sessionID == "" {
		return domain.CallbackRecord{}, domain.ErrCallbackSessionRequired
	}
	if payloadHash == "" {
		return domain.CallbackRecord{}, domain.ErrCallbackHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[sessionID]; ok && existing.Status != domain.CallbackStatusFailed {
		if existing.PayloadHash != payloadHash {
			return existing, domain.ErrCallbackHashMismatch
		}
		return existing, domain.ErrCallbackAlreadyExists
	}

	record := domain.CallbackRecord{
		SessionID:   sessionID,
		PayloadHash: payloadHash,
		Status:      domain.CallbackStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[sessionID] = record
	return record, nil
}

// Get возвращает запись по сессии или ErrCallbackNotFound.
func (r *callbackRepositoryInMemory) Get(sessionID string) (domain.CallbackRecord, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.CallbackRecord{}, domain.ErrCallbackSessionRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[sessionID]
	if !ok {
		return domain.CallbackRecord{}, domain.ErrCallbackNotFound
	}
	return record, nil
}

// MarkDone фиксирует успешную запись заказа по сессии.
func (r *callbackRepositoryInMemory) MarkDone(sessionID, orderID string) error {
	return r.mark(sessionID, func(rec *domain.CallbackRecord) {
		rec.Status = domain.CallbackStatusDone
		rec.OrderID = orderID
		rec.Reason = ""
	})
}

// MarkFailed фиксирует провал обработки callback.
func (r *callbackRepositoryInMemory) MarkFailed(sessionID, reason string) error {
	return r.mark(sessionID, func(rec *domain.CallbackRecord) {
		rec.Status = domain.CallbackStatusFailed
		rec.Reason = reason
	})
}

// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов (если > 0).
func (r *callbackRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, rec := range r.records {
		if rec.TTLAt.After(before) {
			continue
		}
		delete(r.records, id)
		deleted++
		if limit > 0 && deleted >= limit {
			break
		}
	}
	return deleted, nil
}

func (r *callbackRepositoryInMemory) mark(sessionID string, mut func(*domain.CallbackRecord)) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ErrCallbackSessionRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[sessionID]
	if !ok {
		return domain.ErrCallbackNotFound
	}
	mut(&record)
	record.UpdatedAt = time.Now().UTC()
	r.records[sessionID] = record
	return nil
}

var _ domain.CallbackRepository = (*callbackRepositoryInMemory)(nil)
