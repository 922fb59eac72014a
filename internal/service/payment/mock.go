package payment

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway — конфигурируемый in-memory провайдер для тестов и локального
// запуска. По умолчанию эхо-отвечает запрошенной суммой и валютой.
type MockGateway struct {
	mu sync.Mutex

	// Err, если задана, возвращается из CreateSession вместо сессии.
	Err error
	// EchoShift смещает сумму в ответе провайдера относительно запрошенной.
	// Позволяет тестировать "эхо провайдера — источник истины".
	EchoShift int64

	// Calls — количество вызовов CreateSession.
	Calls int
	// LastAmountMinor и LastCurrency — аргументы последнего вызова.
	LastAmountMinor int64
	LastCurrency    string
}

var _ domain.PaymentGateway = (*MockGateway)(nil)

// NewMockGateway создаёт мок провайдера без сбоев.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateSession открывает фиктивную платёжную сессию.
func (g *MockGateway) CreateSession(amountMinor int64, currency string) (domain.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls++
	g.LastAmountMinor = amountMinor
	g.LastCurrency = currency

	if g.Err != nil {
		return domain.PaymentSession{}, g.Err
	}

	return domain.PaymentSession{
		ID:          fmt.Sprintf("cs_%s", uuid.NewString()),
		AmountMinor: amountMinor + g.EchoShift,
		Currency:    currency,
	}, nil
}
