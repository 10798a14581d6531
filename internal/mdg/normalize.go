package mdg

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// RawTick is a market data input before normalization. Prices and sizes are
// in units of the instrument's last decimal.
type RawTick struct {
	Instrument string
	Kind       enum.DataKind
	Price      int64
	Size       int64
	Aggressor  enum.AggressorSide
	BidPrice   int64
	BidSize    int64
	AskPrice   int64
	AskSize    int64
	TsEvent    model.UnixNanos
}

// Normalizer maps raw ticks to model data at the registered precisions.
type Normalizer struct {
	reg     *schema.Registry
	tradeID uint64
}

// NewNormalizer creates a normalizer for a registry.
func NewNormalizer(reg *schema.Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// Normalize converts a raw tick into a quote or trade. ts_init is left to the
// publisher.
func (n *Normalizer) Normalize(tick RawTick) (model.Data, error) {
	if n.reg == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "registry")
	}
	id, err := model.ParseInstrumentID(tick.Instrument)
	if err != nil {
		return nil, err
	}
	inst, ok := n.reg.Instrument(id)
	if !ok {
		return nil, errors.Wrap(exception.ErrNotFound, "instrument").With("instrument", tick.Instrument)
	}

	switch tick.Kind {
	case enum.DataKindQuote:
		if tick.BidPrice > tick.AskPrice {
			return nil, errors.Wrap(exception.ErrInvalidArgument, "crossed quote").With("instrument", tick.Instrument)
		}
		bid, err := price(tick.BidPrice, inst.PricePrecision)
		if err != nil {
			return nil, err
		}
		ask, err := price(tick.AskPrice, inst.PricePrecision)
		if err != nil {
			return nil, err
		}
		bidSize, err := quantity(tick.BidSize, inst.SizePrecision)
		if err != nil {
			return nil, err
		}
		askSize, err := quantity(tick.AskSize, inst.SizePrecision)
		if err != nil {
			return nil, err
		}
		q, err := model.NewQuoteTick(id, bid, ask, bidSize, askSize, tick.TsEvent, tick.TsEvent)
		if err != nil {
			return nil, err
		}
		return q, nil
	case enum.DataKindTrade:
		px, err := price(tick.Price, inst.PricePrecision)
		if err != nil {
			return nil, err
		}
		size, err := quantity(tick.Size, inst.SizePrecision)
		if err != nil {
			return nil, err
		}
		n.tradeID++
		return model.TradeTick{
			InstrumentID:  id,
			Price:         px,
			Size:          size,
			AggressorSide: tick.Aggressor,
			TradeID:       model.NewTradeID("MDG-" + strconv.FormatUint(n.tradeID, 10)),
			TsEvent:       tick.TsEvent,
			TsInit:        tick.TsEvent,
		}, nil
	default:
		return nil, errors.Wrap(exception.ErrInvalidArgument, "raw tick kind").With("kind", tick.Kind.String())
	}
}

func price(units int64, precision uint8) (model.Price, error) {
	return model.PriceFromDecimal(decimal.New(units, -int32(precision)), precision)
}

func quantity(units int64, precision uint8) (model.Quantity, error) {
	return model.QuantityFromDecimal(decimal.New(units, -int32(precision)), precision)
}

// Publisher accepts normalized data, e.g. an adapter inbound.
type Publisher interface {
	PublishData(ctx context.Context, d model.Data) error
}

// RunOptions bounds a generator run. Zero Ticks runs until ctx is done.
type RunOptions struct {
	Ticks    int
	Interval time.Duration
}

// Run generates, normalizes and publishes ticks. It returns the number of
// ticks published.
func Run(ctx context.Context, g *Generator, n *Normalizer, pub Publisher, clk *clock.AtomicTime, opts RunOptions) (int, error) {
	if clk == nil {
		clk = clock.Global()
	}
	var ticker *time.Ticker
	if opts.Interval > 0 {
		ticker = time.NewTicker(opts.Interval)
		defer ticker.Stop()
	}

	published := 0
	for opts.Ticks <= 0 || published < opts.Ticks {
		if ticker != nil && published > 0 {
			select {
			case <-ctx.Done():
				return published, nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return published, nil
		}

		d, err := n.Normalize(g.Next(clk.Now()))
		if err != nil {
			return published, errors.Wrap(err, "normalize")
		}
		if err := pub.PublishData(ctx, d); err != nil {
			if ctx.Err() != nil {
				return published, nil
			}
			return published, errors.Wrap(err, "publish")
		}
		published++
	}
	logs.Debugf("mdg: published %d ticks", published)
	return published, nil
}
