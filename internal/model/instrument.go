package model

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// InstrumentKind is the product class of an instrument.
type InstrumentKind uint8

const (
	InstrumentKindSpot InstrumentKind = iota + 1
	InstrumentKindPerpetual
	InstrumentKindFuture
	InstrumentKindOption
)

func (k InstrumentKind) String() string {
	switch k {
	case InstrumentKindSpot:
		return "SPOT"
	case InstrumentKindPerpetual:
		return "PERPETUAL"
	case InstrumentKindFuture:
		return "FUTURE"
	case InstrumentKindOption:
		return "OPTION"
	default:
		return "UNKNOWN"
	}
}

// Instrument describes a tradable product and its price and size grid.
type Instrument struct {
	ID                 InstrumentID    `json:"id" codec:"id" validate:"required"`
	RawSymbol          Symbol          `json:"rawSymbol" codec:"rawSymbol"`
	Kind               InstrumentKind  `json:"kind" codec:"kind" validate:"required"`
	BaseCurrency       Currency        `json:"baseCurrency" codec:"baseCurrency"`
	QuoteCurrency      Currency        `json:"quoteCurrency" codec:"quoteCurrency"`
	SettlementCurrency Currency        `json:"settlementCurrency" codec:"settlementCurrency"`
	IsInverse          bool            `json:"isInverse" codec:"isInverse"`
	PricePrecision     uint8           `json:"pricePrecision" codec:"pricePrecision" validate:"lte=9"`
	SizePrecision      uint8           `json:"sizePrecision" codec:"sizePrecision" validate:"lte=9"`
	PriceIncrement     Price           `json:"priceIncrement" codec:"priceIncrement"`
	SizeIncrement      Quantity        `json:"sizeIncrement" codec:"sizeIncrement"`
	Multiplier         Quantity        `json:"multiplier" codec:"multiplier"`
	MinQuantity        Quantity        `json:"minQuantity" codec:"minQuantity"`
	MaxQuantity        Quantity        `json:"maxQuantity" codec:"maxQuantity"`
	MakerFee           decimal.Decimal `json:"makerFee" codec:"makerFee"`
	TakerFee           decimal.Decimal `json:"takerFee" codec:"takerFee"`
	TsEvent            UnixNanos       `json:"tsEvent" codec:"tsEvent"`
	TsInit             UnixNanos       `json:"tsInit" codec:"tsInit"`
}

// MakePrice rounds value to the instrument's price precision.
func (i Instrument) MakePrice(value decimal.Decimal) (Price, error) {
	return PriceFromDecimal(value, i.PricePrecision)
}

// MakeQty rounds value to the instrument's size precision.
func (i Instrument) MakeQty(value decimal.Decimal) (Quantity, error) {
	return QuantityFromDecimal(value, i.SizePrecision)
}

// CheckQuantity validates qty against the instrument limits.
func (i Instrument) CheckQuantity(qty Quantity) error {
	if qty.Precision != i.SizePrecision {
		return errors.Wrap(exception.ErrPrecisionMismatch, "order quantity").
			With("instrument", i.ID.String()).With("precision", qty.Precision)
	}
	if i.MinQuantity.IsPositive() && qty.Less(i.MinQuantity) {
		return errors.Wrap(exception.ErrInvalidArgument, "quantity below minimum").With("instrument", i.ID.String())
	}
	if i.MaxQuantity.IsPositive() && qty.Greater(i.MaxQuantity) {
		return errors.Wrap(exception.ErrInvalidArgument, "quantity above maximum").With("instrument", i.ID.String())
	}
	return nil
}
