package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineRepositoryInMemory хранит события попыток checkout в памяти.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{
		events: make(map[string][]domain.TimelineEvent),
	}
}

// Append добавляет событие к timeline платёжной сессии.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if event.SessionID == "" {
		return domain.ErrCallbackSessionRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.SessionID] = append(r.events[event.SessionID], event)
	return nil
}

// List возвращает события сессии в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(sessionID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[sessionID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)

	sort.Slice(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})

	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
