package model

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Money is a fixed-point amount in a currency. Its precision is the currency precision.
type Money struct {
	Raw      int64    `json:"raw" codec:"raw"`
	Currency Currency `json:"currency" codec:"currency"`
}

func NewMoney(amount float64, currency Currency) (Money, error) {
	raw, err := rawFromFloat(amount, currency.Precision)
	if err != nil {
		return Money{}, err
	}
	return Money{Raw: raw, Currency: currency}, nil
}

func MoneyFromDecimal(amount decimal.Decimal, currency Currency) (Money, error) {
	raw, err := rawFromDecimal(amount, currency.Precision)
	if err != nil {
		return Money{}, err
	}
	return Money{Raw: raw, Currency: currency}, nil
}

// ZeroMoney returns 0 in currency.
func ZeroMoney(currency Currency) Money {
	return Money{Currency: currency}
}

func (m Money) Precision() uint8 {
	return m.Currency.Precision
}

func (m Money) Add(o Money) (Money, error) {
	if m.Currency.Code != o.Currency.Code {
		return Money{}, errors.Wrap(exception.ErrCurrencyMismatch, "money add").With("lhs", m.Currency.Code).With("rhs", o.Currency.Code)
	}
	raw, err := addRaw(m.Raw, o.Raw)
	if err != nil {
		return Money{}, err
	}
	return Money{Raw: raw, Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if m.Currency.Code != o.Currency.Code {
		return Money{}, errors.Wrap(exception.ErrCurrencyMismatch, "money sub").With("lhs", m.Currency.Code).With("rhs", o.Currency.Code)
	}
	raw, err := subRaw(m.Raw, o.Raw)
	if err != nil {
		return Money{}, err
	}
	return Money{Raw: raw, Currency: m.Currency}, nil
}

func (m Money) Neg() Money {
	return Money{Raw: -m.Raw, Currency: m.Currency}
}

func (m Money) IsZero() bool {
	return m.Raw == 0
}

func (m Money) Float64() float64 {
	return rawToFloat(m.Raw)
}

func (m Money) Decimal() decimal.Decimal {
	return rawToDecimal(m.Raw)
}

func (m Money) String() string {
	return formatRaw(m.Raw, m.Currency.Precision) + " " + m.Currency.Code
}
