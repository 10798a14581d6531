package adapter

import (
	"strconv"

	"github.com/yanun0323/errors"

	wire "github.com/yanun0323/decimal"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// DepthLevel is one aggregated price level of a feed depth message:
//
//	{"type":"depth","symbol":"ETHUSDT","ts":1,"seq":7,"bids":[{"price":"2000.1","size":"3","count":2}],"asks":[...]}
type DepthLevel struct {
	Price wire.Decimal `json:"price"`
	Size  wire.Decimal `json:"size"`
	Count uint32       `json:"count"`
}

// decodeDepth fills a ten level snapshot. Bids must be sorted best (highest)
// first and asks best (lowest) first; levels past the tenth are dropped.
func (p *feedParser) decodeDepth(id model.InstrumentID, msg FeedMessage) (model.OrderBookDepth10, error) {
	d := model.OrderBookDepth10{
		InstrumentID: id,
		Flags:        model.FlagSnapshot | model.FlagMbp,
		Sequence:     msg.Sequence,
		TsEvent:      model.UnixNanos(msg.Ts),
	}
	if len(msg.Bids) == 0 && len(msg.Asks) == 0 {
		return d, errors.Wrap(exception.ErrFeedMessage, "empty depth").With("instrument", id.String())
	}

	p.levels(enum.OrderSideBuy, msg.Bids, d.Bids[:], d.BidCounts[:])
	p.levels(enum.OrderSideSell, msg.Asks, d.Asks[:], d.AskCounts[:])
	if p.err != nil {
		return d, nil
	}

	for i := 1; i < model.DepthLevels; i++ {
		if !d.Bids[i].Size.IsZero() && d.Bids[i].Price.Raw >= d.Bids[i-1].Price.Raw {
			return d, errors.Wrap(exception.ErrFeedMessage, "bids not descending").With("level", i)
		}
		if !d.Asks[i].Size.IsZero() && d.Asks[i].Price.Raw <= d.Asks[i-1].Price.Raw {
			return d, errors.Wrap(exception.ErrFeedMessage, "asks not ascending").With("level", i)
		}
	}
	if !d.Bids[0].Size.IsZero() && !d.Asks[0].Size.IsZero() && d.Bids[0].Price.Raw >= d.Asks[0].Price.Raw {
		return d, errors.Wrap(exception.ErrFeedMessage, "crossed depth").
			With("bid", d.Bids[0].Price.String()).With("ask", d.Asks[0].Price.String())
	}
	return d, nil
}

func (p *feedParser) levels(side enum.OrderSide, src []DepthLevel, orders []model.BookOrder, counts []uint32) {
	for i := range orders {
		if i >= len(src) {
			orders[i] = model.BookOrder{Side: side}
			continue
		}
		orders[i] = model.BookOrder{
			Side:  side,
			Price: p.price("depth price", src[i].Price),
			Size:  p.qty("depth size", src[i].Size),
		}
		counts[i] = max(src[i].Count, 1)
	}
}

// DepthString returns a human readable form of a depth snapshot. Empty levels
// are skipped.
func DepthString(d model.OrderBookDepth10) string {
	appendSide := func(buf []byte, orders []model.BookOrder, counts []uint32) []byte {
		buf = append(buf, '[')
		for i := range orders {
			if orders[i].Size.IsZero() {
				break
			}
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, '(')
			buf = append(buf, orders[i].Price.String()...)
			buf = append(buf, ',')
			buf = append(buf, orders[i].Size.String()...)
			buf = append(buf, ',')
			buf = strconv.AppendUint(buf, uint64(counts[i]), 10)
			buf = append(buf, ')')
		}
		return append(buf, ']')
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, "Depth{instrument="...)
	buf = append(buf, d.InstrumentID.String()...)
	buf = append(buf, " seq="...)
	buf = strconv.AppendUint(buf, d.Sequence, 10)
	buf = append(buf, " ts_event="...)
	buf = strconv.AppendUint(buf, uint64(d.TsEvent), 10)
	buf = append(buf, " ts_init="...)
	buf = strconv.AppendUint(buf, uint64(d.TsInit), 10)
	buf = append(buf, " bids="...)
	buf = appendSide(buf, d.Bids[:], d.BidCounts[:])
	buf = append(buf, " asks="...)
	buf = appendSide(buf, d.Asks[:], d.AskCounts[:])
	buf = append(buf, '}')
	return string(buf)
}
