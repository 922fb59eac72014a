package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine — одна позиция корзины покупателя.
type CartLine struct {
	// ProductRef — внешний идентификатор товара в каталоге.
	ProductRef string
	// DisplayName — снапшот названия товара на момент добавления позиции.
	DisplayName string
	// UnitPrice — снапшот цены за единицу в основных единицах валюты.
	// Снапшот не меняется, даже если каталог позже изменит цену.
	UnitPrice decimal.Decimal
	// Quantity — количество единиц товара, всегда >= 1.
	// Нулевое количество представляется отсутствием позиции в корзине.
	Quantity int32
	// AddedAt фиксирует момент появления позиции в корзине.
	AddedAt time.Time
}

// Cart — авторитетная корзина одного покупателя.
// Корзина создаётся лениво при первом добавлении; отсутствие документа
// в хранилище — валидное состояние, эквивалентное пустой корзине.
type Cart struct {
	OwnerRef  string
	Lines     []CartLine
	UpdatedAt time.Time
}

// IsEmpty сообщает, пуста ли корзина.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Line возвращает позицию по product ref, если она есть.
func (c *Cart) Line(productRef string) (CartLine, bool) {
	for _, line := range c.Lines {
		if line.ProductRef == productRef {
			return line, true
		}
	}
	return CartLine{}, false
}

// Total возвращает сумму корзины в основных единицах валюты.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты корзины и возвращает список замечаний.
func (c *Cart) ValidateInvariants() []error {
	var errs []error

	if c.OwnerRef == "" {
		errs = append(errs, ErrOwnerRequired)
	}

	seen := make(map[string]struct{}, len(c.Lines))
	for _, line := range c.Lines {
		if line.ProductRef == "" {
			errs = append(errs, ErrProductRefRequired)
			continue
		}
		if _, dup := seen[line.ProductRef]; dup {
			errs = append(errs, ErrLineDuplicated)
		}
		seen[line.ProductRef] = struct{}{}

		if line.Quantity < 1 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
	}

	return errs
}
