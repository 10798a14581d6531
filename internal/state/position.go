package state

import (
	"cmp"
	"slices"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

// NettingPositionID is the position id used for fills that carry none: one
// position per instrument and strategy.
func NettingPositionID(instrument model.InstrumentID, strategy model.StrategyID) model.PositionID {
	return model.NewPositionID(instrument.String() + "-" + strategy.String())
}

// PositionBook aggregates fills into positions. It is not safe for concurrent
// use; the engine goroutine owns it.
type PositionBook struct {
	positions map[model.PositionID]*model.Position
}

func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[model.PositionID]*model.Position)}
}

// ApplyFill adds a fill to its position and returns the position. A fill for a
// closed position opens a new lifecycle under the same id.
func (b *PositionBook) ApplyFill(fill model.OrderFilled) (*model.Position, error) {
	id := fill.PositionID
	if id.IsEmpty() {
		id = NettingPositionID(fill.InstrumentID, fill.StrategyID)
	}

	p, ok := b.positions[id]
	if ok && p.IsOpen() {
		if err := p.Apply(fill); err != nil {
			return nil, err
		}
		return p, nil
	}
	if ok && !fill.TradeID.IsEmpty() && p.HasTrade(fill.TradeID) {
		return nil, errors.Wrap(exception.ErrDuplicateEvent, "position trade").With("trade_id", fill.TradeID.String())
	}

	opened, err := model.NewPosition(id, fill)
	if err != nil {
		return nil, err
	}
	if ok {
		opened.TradeIDs = append(slices.Clone(p.TradeIDs), opened.TradeIDs...)
	}
	b.positions[id] = opened
	return opened, nil
}

// Restore replaces the book content with positions.
func (b *PositionBook) Restore(positions []*model.Position) {
	clear(b.positions)
	for _, p := range positions {
		cp := *p
		b.positions[p.ID] = &cp
	}
}

func (b *PositionBook) Position(id model.PositionID) (*model.Position, bool) {
	p, ok := b.positions[id]
	return p, ok
}

// NetQty sums the signed quantity of every position on instrument.
func (b *PositionBook) NetQty(instrument model.InstrumentID) float64 {
	var net float64
	for _, p := range b.positions {
		if p.InstrumentID == instrument {
			net += p.SignedQty
		}
	}
	return net
}

// Positions returns every position ordered by id.
func (b *PositionBook) Positions() []*model.Position {
	out := make([]*model.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *model.Position) int { return cmp.Compare(a.ID.String(), b.ID.String()) })
	return out
}

func (b *PositionBook) Count() int {
	return len(b.positions)
}
