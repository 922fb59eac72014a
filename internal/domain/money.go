package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MinorUnits переводит сумму из основных единиц валюты в минимальные
// (499.00 → 49900 для валют с двумя знаками). Масштаб берётся из ISO-данных
// валюты. Округление — к ближайшей минимальной единице; молчаливое усечение
// дробной части недопустимо.
func MinorUnits(amount decimal.Decimal, code string) (int64, error) {
	scale, err := currencyScale(code)
	if err != nil {
		return 0, err
	}
	return amount.Shift(int32(scale)).Round(0).IntPart(), nil
}

// MajorUnits — обратное преобразование для отображения сумм.
func MajorUnits(minor int64, code string) (decimal.Decimal, error) {
	scale, err := currencyScale(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, 0).Shift(-int32(scale)), nil
}

func currencyScale(code string) (int, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("currency[%s] is not valid: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}
