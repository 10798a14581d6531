package model

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Quantity is a non-negative fixed-point size.
type Quantity struct {
	Raw       int64 `json:"raw" codec:"raw"`
	Precision uint8 `json:"precision" codec:"precision"`
}

func NewQuantity(value float64, precision uint8) (Quantity, error) {
	if value < 0 {
		return Quantity{}, errors.Wrap(exception.ErrNegativeQuantity, "new quantity").With("value", value)
	}
	raw, err := rawFromFloat(value, precision)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Raw: raw, Precision: precision}, nil
}

// QuantityFromRaw wraps an already scaled raw value. Negative raws are clamped to zero.
func QuantityFromRaw(raw int64, precision uint8) Quantity {
	if raw < 0 {
		raw = 0
	}
	return Quantity{Raw: raw, Precision: precision}
}

func ParseQuantity(s string) (Quantity, error) {
	raw, precision, err := rawFromString(s)
	if err != nil {
		return Quantity{}, err
	}
	if raw < 0 {
		return Quantity{}, errors.Wrap(exception.ErrNegativeQuantity, "parse quantity").With("value", s)
	}
	return Quantity{Raw: raw, Precision: precision}, nil
}

// MustParseQuantity panics if s is not a valid quantity.
func MustParseQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

func QuantityFromDecimal(d decimal.Decimal, precision uint8) (Quantity, error) {
	if d.IsNegative() {
		return Quantity{}, errors.Wrap(exception.ErrNegativeQuantity, "quantity from decimal").With("value", d.String())
	}
	raw, err := rawFromDecimal(d, precision)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Raw: raw, Precision: precision}, nil
}

// ZeroQuantity returns 0 at the given precision.
func ZeroQuantity(precision uint8) Quantity {
	return Quantity{Precision: precision}
}

func (q Quantity) Add(o Quantity) (Quantity, error) {
	if q.Precision != o.Precision {
		return Quantity{}, errors.Wrap(exception.ErrPrecisionMismatch, "quantity add").With("lhs", q.Precision).With("rhs", o.Precision)
	}
	raw, err := addRaw(q.Raw, o.Raw)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Raw: raw, Precision: q.Precision}, nil
}

// Sub fails with ErrUnderflow when the result would be negative.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if q.Precision != o.Precision {
		return Quantity{}, errors.Wrap(exception.ErrPrecisionMismatch, "quantity sub").With("lhs", q.Precision).With("rhs", o.Precision)
	}
	if o.Raw > q.Raw {
		return Quantity{}, exception.ErrUnderflow
	}
	return Quantity{Raw: q.Raw - o.Raw, Precision: q.Precision}, nil
}

func (q Quantity) Compare(o Quantity) int {
	switch {
	case q.Raw < o.Raw:
		return -1
	case q.Raw > o.Raw:
		return 1
	default:
		return 0
	}
}

func (q Quantity) Equal(o Quantity) bool { return q.Raw == o.Raw }
func (q Quantity) Less(o Quantity) bool { return q.Raw < o.Raw }
func (q Quantity) Greater(o Quantity) bool { return q.Raw > o.Raw }
func (q Quantity) IsZero() bool { return q.Raw == 0 }
func (q Quantity) IsPositive() bool { return q.Raw > 0 }

func (q Quantity) Float64() float64 {
	return rawToFloat(q.Raw)
}

func (q Quantity) Decimal() decimal.Decimal {
	return rawToDecimal(q.Raw)
}

func (q Quantity) String() string {
	return formatRaw(q.Raw, q.Precision)
}

// Notional returns price * quantity in the given currency.
func Notional(price Price, qty Quantity, currency Currency) (Money, error) {
	raw, err := mulRaw(price.Raw, qty.Raw)
	if err != nil {
		return Money{}, err
	}
	raw, err = rawFromDecimal(rawToDecimal(raw), currency.Precision)
	if err != nil {
		return Money{}, err
	}
	return Money{Raw: raw, Currency: currency}, nil
}
