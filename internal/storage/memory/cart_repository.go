package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartRepositoryInMemory — простая in-memory реализация CartRepository.
type cartRepositoryInMemory struct {
	mu      sync.RWMutex
	lines   map[string][]domain.CartLine
	updated map[string]time.Time
}

// NewCartRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{
		lines:   make(map[string][]domain.CartLine),
		updated: make(map[string]time.Time),
	}
}

// Get возвращает корзину владельца; отсутствие документа — пустая корзина, не ошибка.
func (r *cartRepositoryInMemory) Get(ownerRef string) (domain.Cart, error) {
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked(ownerRef), nil
}

// UpsertLine вставляет или перезаписывает позицию целиком (last-write-wins).
func (r *cartRepositoryInMemory) UpsertLine(ownerRef string, line domain.CartLine) (domain.Cart, error) {
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}
	if line.ProductRef == "" {
		return domain.Cart{}, domain.ErrProductRefRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.lines[ownerRef]
	replaced := false
	for i := range lines {
		if lines[i].ProductRef == line.ProductRef {
			// Снапшот имени/цены не трогаем: перезаписывается только количество.
			lines[i].Quantity = line.Quantity
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, line)
	}
	r.lines[ownerRef] = lines
	r.updated[ownerRef] = time.Now().UTC()

	return r.snapshotLocked(ownerRef), nil
}

// RemoveLine удаляет позицию; удаление отсутствующей позиции — no-op успех.
func (r *cartRepositoryInMemory) RemoveLine(ownerRef, productRef string) (domain.Cart, error) {
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.lines[ownerRef]
	for i := range lines {
		if lines[i].ProductRef == productRef {
			r.lines[ownerRef] = append(lines[:i], lines[i+1:]...)
			r.updated[ownerRef] = time.Now().UTC()
			break
		}
	}

	return r.snapshotLocked(ownerRef), nil
}

// Clear удаляет все позиции владельца; идемпотентна.
func (r *cartRepositoryInMemory) Clear(ownerRef string) error {
	if ownerRef == "" {
		return domain.ErrOwnerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.lines, ownerRef)
	r.updated[ownerRef] = time.Now().UTC()
	return nil
}

// snapshotLocked возвращает копию корзины, чтобы избежать мутаций извне.
func (r *cartRepositoryInMemory) snapshotLocked(ownerRef string) domain.Cart {
	lines := r.lines[ownerRef]
	copied := make([]domain.CartLine, len(lines))
	copy(copied, lines)

	return domain.Cart{
		OwnerRef:  ownerRef,
		Lines:     copied,
		UpdatedAt: r.updated[ownerRef],
	}
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
