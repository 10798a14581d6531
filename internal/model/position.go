package model

import (
	"math"

	"github.com/yanun0323/errors"

	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Position aggregates fills for one instrument on one account.
type Position struct {
	ID             PositionID        `json:"id" codec:"id"`
	AccountID      AccountID         `json:"accountId" codec:"accountId"`
	InstrumentID   InstrumentID      `json:"instrumentId" codec:"instrumentId"`
	StrategyID     StrategyID        `json:"strategyId" codec:"strategyId"`
	OpeningOrderID ClientOrderID     `json:"openingOrderId" codec:"openingOrderId"`
	ClosingOrderID ClientOrderID     `json:"closingOrderId" codec:"closingOrderId"`
	Entry          enum.OrderSide    `json:"entry" codec:"entry"`
	Side           enum.PositionSide `json:"side" codec:"side"`
	SignedQty      float64           `json:"signedQty" codec:"signedQty"`
	Quantity       Quantity          `json:"quantity" codec:"quantity"`
	PeakQty        Quantity          `json:"peakQty" codec:"peakQty"`
	AvgPxOpen      float64           `json:"avgPxOpen" codec:"avgPxOpen"`
	AvgPxClose     float64           `json:"avgPxClose" codec:"avgPxClose"`
	RealizedPnL    Money             `json:"realizedPnl" codec:"realizedPnl"`
	RealizedReturn float64           `json:"realizedReturn" codec:"realizedReturn"`
	Commissions    map[string]Money  `json:"commissions,omitempty" codec:"commissions"`
	QuoteCurrency  Currency          `json:"quoteCurrency" codec:"quoteCurrency"`
	TradeIDs       []TradeID         `json:"tradeIds,omitempty" codec:"tradeIds"`
	TsOpened       UnixNanos         `json:"tsOpened" codec:"tsOpened"`
	TsLast         UnixNanos         `json:"tsLast" codec:"tsLast"`
	TsClosed       UnixNanos         `json:"tsClosed,omitempty" codec:"tsClosed"`
	DurationNs     uint64            `json:"durationNs" codec:"durationNs"`
	ClosedQty      float64           `json:"closedQty" codec:"closedQty"`
}

// NewPosition opens a position from its first fill.
func NewPosition(id PositionID, fill OrderFilled) (*Position, error) {
	p := &Position{
		ID:             id,
		AccountID:      fill.AccountID,
		InstrumentID:   fill.InstrumentID,
		StrategyID:     fill.StrategyID,
		OpeningOrderID: fill.ClientOrderID,
		Entry:          fill.Side,
		QuoteCurrency:  fill.Currency,
		Quantity:       ZeroQuantity(fill.LastQty.Precision),
		PeakQty:        ZeroQuantity(fill.LastQty.Precision),
		RealizedPnL:    ZeroMoney(fill.Currency),
		Commissions:    make(map[string]Money),
		TsOpened:       fill.TsEvent,
	}
	if err := p.Apply(fill); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Position) IsOpen() bool { return p.Side != enum.PositionSideFlat }
func (p *Position) IsClosed() bool { return p.Side == enum.PositionSideFlat }
func (p *Position) IsLong() bool { return p.Side == enum.PositionSideLong }
func (p *Position) IsShort() bool { return p.Side == enum.PositionSideShort }

// HasTrade reports whether the trade id has already been applied.
func (p *Position) HasTrade(id TradeID) bool {
	for _, t := range p.TradeIDs {
		if t == id {
			return true
		}
	}
	return false
}

// Apply adds a fill to the position. A fill larger than the open quantity closes the
// position and opens the remainder on the other side at the fill price.
func (p *Position) Apply(fill OrderFilled) error {
	if fill.InstrumentID != p.InstrumentID {
		return errors.Wrap(exception.ErrInvalidArgument, "position instrument mismatch").
			With("position", p.ID.String()).With("fill", fill.InstrumentID.String())
	}
	if !fill.TradeID.IsEmpty() && p.HasTrade(fill.TradeID) {
		return errors.Wrap(exception.ErrDuplicateEvent, "position trade").With("trade_id", fill.TradeID.String())
	}
	if !fill.LastQty.IsPositive() {
		return errors.Wrap(exception.ErrInvalidFill, "position fill quantity").With("trade_id", fill.TradeID.String())
	}

	if !fill.Commission.IsZero() {
		code := fill.Commission.Currency.Code
		if prev, ok := p.Commissions[code]; ok {
			sum, err := prev.Add(fill.Commission)
			if err != nil {
				return errors.Wrap(err, "add commission")
			}
			p.Commissions[code] = sum
		} else {
			p.Commissions[code] = fill.Commission
		}
	}

	qty := fill.LastQty.Float64()
	px := fill.LastPx.Float64()
	sign := float64(fill.Side.Sign())
	var pnl float64

	switch {
	case p.SignedQty == 0 || math.Signbit(p.SignedQty) == math.Signbit(sign):
		p.openOrAdd(fill, qty, px)
		p.SignedQty += sign * qty
	default:
		open := math.Abs(p.SignedQty)
		closing := math.Min(qty, open)
		pnl = p.close(closing, px)
		p.SignedQty += sign * closing
		if qty > open {
			p.resetLifecycle(fill)
			p.openOrAdd(fill, qty-open, px)
			p.SignedQty = sign * (qty - open)
		}
	}

	if fill.Commission.Currency.Code == p.QuoteCurrency.Code {
		pnl -= fill.Commission.Float64()
	}
	if pnl != 0 {
		delta, err := NewMoney(pnl, p.QuoteCurrency)
		if err != nil {
			return errors.Wrap(err, "realized pnl")
		}
		sum, err := p.RealizedPnL.Add(delta)
		if err != nil {
			return errors.Wrap(err, "realized pnl")
		}
		p.RealizedPnL = sum
	}

	abs, err := NewQuantity(math.Abs(p.SignedQty), fill.LastQty.Precision)
	if err != nil {
		return errors.Wrap(err, "position quantity")
	}
	p.Quantity = abs
	if p.Quantity.Greater(p.PeakQty) {
		p.PeakQty = p.Quantity
	}

	switch {
	case p.SignedQty > 0:
		p.Side = enum.PositionSideLong
		p.TsClosed = 0
	case p.SignedQty < 0:
		p.Side = enum.PositionSideShort
		p.TsClosed = 0
	default:
		p.Side = enum.PositionSideFlat
		p.ClosingOrderID = fill.ClientOrderID
		p.TsClosed = fill.TsEvent
		p.DurationNs = uint64(fill.TsEvent.Sub(p.TsOpened))
	}

	if !fill.TradeID.IsEmpty() {
		p.TradeIDs = append(p.TradeIDs, fill.TradeID)
	}
	p.TsLast = fill.TsEvent
	return nil
}

func (p *Position) openOrAdd(fill OrderFilled, qty, px float64) {
	open := math.Abs(p.SignedQty)
	if open == 0 {
		p.Entry = fill.Side
		p.AvgPxOpen = px
		return
	}
	p.AvgPxOpen = (p.AvgPxOpen*open + px*qty) / (open + qty)
}

// close books the pnl of closing qty at px and returns it.
func (p *Position) close(qty, px float64) float64 {
	if p.ClosedQty == 0 {
		p.AvgPxClose = px
	} else {
		p.AvgPxClose = (p.AvgPxClose*p.ClosedQty + px*qty) / (p.ClosedQty + qty)
	}
	p.ClosedQty += qty

	direction := 1.0
	if p.SignedQty < 0 {
		direction = -1.0
	}
	if p.AvgPxOpen != 0 {
		p.RealizedReturn = direction * (p.AvgPxClose - p.AvgPxOpen) / p.AvgPxOpen
	}
	return direction * (px - p.AvgPxOpen) * qty
}

func (p *Position) resetLifecycle(fill OrderFilled) {
	p.OpeningOrderID = fill.ClientOrderID
	p.ClosingOrderID = ClientOrderID{}
	p.TsOpened = fill.TsEvent
	p.AvgPxClose = 0
	p.ClosedQty = 0
	p.RealizedReturn = 0
	p.PeakQty = ZeroQuantity(fill.LastQty.Precision)
}

// NotionalValue is the open quantity valued at last.
func (p *Position) NotionalValue(last Price) float64 {
	return math.Abs(p.SignedQty) * last.Float64()
}

// UnrealizedPnL values the open quantity at last.
func (p *Position) UnrealizedPnL(last Price) float64 {
	if p.SignedQty == 0 {
		return 0
	}
	return (last.Float64() - p.AvgPxOpen) * p.SignedQty
}
