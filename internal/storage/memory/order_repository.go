package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu sync.RWMutex
	// items индексирован по ID заказа, bySession — по платёжной сессии.
	items     map[string]domain.Order
	bySession map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:     make(map[string]domain.Order),
		bySession: make(map[string]string),
	}
}

// Create записывает новый заказ. Уникальность платёжной сессии — жёсткое
// ограничение: повторная запись по той же сессии отклоняется.
func (r *orderRepositoryInMemory) Create(order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[order.ProviderSessionID]; exists {
		return domain.Order{}, domain.ErrSessionAlreadyRecorded
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	// Сохраняем копию позиций, чтобы избежать непредсказуемых мутаций извне.
	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items

	r.items[order.ID] = order
	r.bySession[order.ProviderSessionID] = order.ID
	return order, nil
}

// GetBySession возвращает заказ по платёжной сессии или ErrOrderNotFound.
func (r *orderRepositoryInMemory) GetBySession(providerSessionID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySession[providerSessionID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.items[id], nil
}

// ListByOwner возвращает заказы владельца, новые первыми, ограничивая выборку limit (если > 0).
func (r *orderRepositoryInMemory) ListByOwner(ownerRef string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.OwnerRef != ownerRef {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
