package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockService — конфигурируемая заглушка CatalogService для разработки и тестов.
type MockService struct {
	Products   map[string]domain.ProductInfo
	ResolveErr error

	ResolveCalls int
}

// NewMockService возвращает mock с небольшим предзаполненным каталогом.
func NewMockService() *MockService {
	return &MockService{
		Products: map[string]domain.ProductInfo{
			"candle-1": {DisplayName: "Vanilla Candle", UnitPrice: decimal.RequireFromString("249.50")},
			"soap-3":   {DisplayName: "Lavender Soap", UnitPrice: decimal.RequireFromString("80.00")},
		},
	}
}

// Resolve возвращает витринные данные товара либо ErrProductNotFound.
func (m *MockService) Resolve(productRef string) (domain.ProductInfo, error) {
	m.ResolveCalls++
	if m.ResolveErr != nil {
		return domain.ProductInfo{}, m.ResolveErr
	}
	info, ok := m.Products[productRef]
	if !ok {
		return domain.ProductInfo{}, domain.ErrProductNotFound
	}
	return info, nil
}

var _ domain.CatalogService = (*MockService)(nil)
