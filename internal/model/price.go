package model

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Price is a fixed-point price. Raw is always scaled by FixedScalar; Precision is the
// number of meaningful decimals.
type Price struct {
	Raw       int64 `json:"raw" codec:"raw"`
	Precision uint8 `json:"precision" codec:"precision"`
}

// NewPrice rounds value to precision decimals.
func NewPrice(value float64, precision uint8) (Price, error) {
	raw, err := rawFromFloat(value, precision)
	if err != nil {
		return Price{}, err
	}
	return Price{Raw: raw, Precision: precision}, nil
}

// PriceFromRaw wraps an already scaled raw value.
func PriceFromRaw(raw int64, precision uint8) Price {
	return Price{Raw: raw, Precision: precision}
}

// ParsePrice parses a decimal string; precision is the number of fractional digits.
func ParsePrice(s string) (Price, error) {
	raw, precision, err := rawFromString(s)
	if err != nil {
		return Price{}, err
	}
	return Price{Raw: raw, Precision: precision}, nil
}

// MustParsePrice panics if s is not a valid price.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PriceFromDecimal rounds d to precision decimals using banker's rounding.
func PriceFromDecimal(d decimal.Decimal, precision uint8) (Price, error) {
	raw, err := rawFromDecimal(d, precision)
	if err != nil {
		return Price{}, err
	}
	return Price{Raw: raw, Precision: precision}, nil
}

func (p Price) Add(o Price) (Price, error) {
	if p.Precision != o.Precision {
		return Price{}, errors.Wrap(exception.ErrPrecisionMismatch, "price add").With("lhs", p.Precision).With("rhs", o.Precision)
	}
	raw, err := addRaw(p.Raw, o.Raw)
	if err != nil {
		return Price{}, err
	}
	return Price{Raw: raw, Precision: p.Precision}, nil
}

func (p Price) Sub(o Price) (Price, error) {
	if p.Precision != o.Precision {
		return Price{}, errors.Wrap(exception.ErrPrecisionMismatch, "price sub").With("lhs", p.Precision).With("rhs", o.Precision)
	}
	raw, err := subRaw(p.Raw, o.Raw)
	if err != nil {
		return Price{}, err
	}
	return Price{Raw: raw, Precision: p.Precision}, nil
}

// Compare returns -1, 0 or +1. Raw values share one scale so precision does not matter.
func (p Price) Compare(o Price) int {
	switch {
	case p.Raw < o.Raw:
		return -1
	case p.Raw > o.Raw:
		return 1
	default:
		return 0
	}
}

func (p Price) Equal(o Price) bool { return p.Raw == o.Raw }
func (p Price) Less(o Price) bool { return p.Raw < o.Raw }
func (p Price) LessEqual(o Price) bool { return p.Raw <= o.Raw }
func (p Price) Greater(o Price) bool { return p.Raw > o.Raw }
func (p Price) GreaterEqual(o Price) bool { return p.Raw >= o.Raw }
func (p Price) IsZero() bool { return p.Raw == 0 }
func (p Price) IsPositive() bool { return p.Raw > 0 }

func (p Price) Float64() float64 {
	return rawToFloat(p.Raw)
}

func (p Price) Decimal() decimal.Decimal {
	return rawToDecimal(p.Raw)
}

func (p Price) String() string {
	return formatRaw(p.Raw, p.Precision)
}
