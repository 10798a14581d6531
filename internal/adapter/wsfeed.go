package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/ws"

	wire "github.com/yanun0323/decimal"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// InstrumentProvider resolves instrument descriptors.
type InstrumentProvider interface {
	Instrument(id model.InstrumentID) (*model.Instrument, bool)
}

// FeedMessage is one message of the normalized JSON market data feed:
//
//	{"type":"quote","symbol":"ETHUSDT","ts":1700000000000000000,"bid":"2000.10","ask":"2000.20","bidSize":"1.5","askSize":"2"}
//
// Types: quote, trade, depth, mark, index, funding, status, error.
type FeedMessage struct {
	Type        string       `json:"type"`
	Symbol      string       `json:"symbol"`
	Ts          uint64       `json:"ts"`
	Bid         wire.Decimal `json:"bid"`
	Ask         wire.Decimal `json:"ask"`
	BidSize     wire.Decimal `json:"bidSize"`
	AskSize     wire.Decimal `json:"askSize"`
	Price       wire.Decimal `json:"price"`
	Size        wire.Decimal `json:"size"`
	Side        string       `json:"side"`
	TradeID     string       `json:"tradeId"`
	Value       wire.Decimal `json:"value"`
	Rate        wire.Decimal `json:"rate"`
	NextFunding uint64       `json:"nextFunding"`
	Status      string       `json:"status"`
	Reason      string       `json:"reason"`
	Code        int          `json:"code"`
	Message     string       `json:"message"`
	Sequence    uint64       `json:"seq"`
	Bids        []DepthLevel `json:"bids"`
	Asks        []DepthLevel `json:"asks"`
}

type feedRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
	ID   int64    `json:"id"`
}

type feedResponse struct {
	Op      string `json:"op"`
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const feedSubscribeID = 1

// FeedConfig configures a normalized websocket feed.
type FeedConfig struct {
	URL              string
	Venue            model.Venue
	Symbols          []string
	SubscribeTimeout time.Duration
}

// Feed is a Client for venues speaking the normalized JSON feed.
type Feed struct {
	cfg         FeedConfig
	instruments InstrumentProvider
	wss         *ws.WebSocket
}

func NewFeed(cfg FeedConfig, instruments InstrumentProvider) *Feed {
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}
	return &Feed{cfg: cfg, instruments: instruments}
}

func (f *Feed) Connect(ctx context.Context) error {
	f.wss = ws.New(ctx, f.cfg.URL)
	if err := f.wss.Start(ctx); err != nil {
		return ConnectionLost(errors.Wrap(err, "start wss").With("url", f.cfg.URL))
	}
	return nil
}

// Logon subscribes every configured symbol and waits for the acknowledgement.
func (f *Feed) Logon(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.SubscribeTimeout)
	defer cancel()

	err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, c *ws.WebSocket) error {
			payload := feedRequest{Op: "subscribe", Args: f.cfg.Symbols, ID: feedSubscribeID}
			if err := c.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp feedResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != feedSubscribeID {
				return false, nil
			}
			if !resp.Success {
				return false, Validation("symbols", resp.Message)
			}
			return true, nil
		},
	}, true)
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout(f.cfg.SubscribeTimeout)
	}
	return ConnectionLost(errors.Wrap(err, "subscribe"))
}

func (f *Feed) Run(ctx context.Context, in *Inbound) error {
	ch, cancel := f.wss.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return ConnectionLost(exception.ErrConnectionClose)
			}
			var msg FeedMessage
			if err := m.Unmarshal(&msg); err != nil {
				logs.Warnf("feed %s: unmarshal message, err: %+v", f.cfg.Venue, err)
				continue
			}
			if err := f.Handle(ctx, in, msg); err != nil {
				if errors.Is(err, exception.ErrFeedMessage) {
					logs.Warnf("feed %s: %+v", f.cfg.Venue, err)
					continue
				}
				return err
			}
		}
	}
}

func (f *Feed) Disconnect() error {
	if f.wss != nil {
		f.wss.Close()
		f.wss = nil
	}
	return nil
}

// HandleRaw decodes one raw feed message and handles it.
func (f *Feed) HandleRaw(ctx context.Context, in *Inbound, raw []byte) error {
	var msg FeedMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		return errors.Wrap(exception.ErrFeedMessage, "unmarshal").With("error", err.Error())
	}
	return f.Handle(ctx, in, msg)
}

// Handle publishes the data carried by msg. Venue error messages are returned
// as classified adapter errors.
func (f *Feed) Handle(ctx context.Context, in *Inbound, msg FeedMessage) error {
	switch msg.Type {
	case "error":
		return FromHTTPStatus(msg.Code, msg.Message)
	case "", "pong":
		return nil
	}
	d, err := f.Decode(msg)
	if err != nil {
		return err
	}
	return in.PublishData(ctx, d)
}

// Decode converts a feed message into a data value. ts_init is left for the
// Inbound to stamp.
func (f *Feed) Decode(msg FeedMessage) (model.Data, error) {
	id := model.NewInstrumentID(model.NewSymbol(msg.Symbol), f.cfg.Venue)
	inst, ok := f.instruments.Instrument(id)
	if !ok {
		return nil, errors.Wrap(exception.ErrFeedMessage, "unknown instrument").With("instrument", id.String())
	}
	p := feedParser{inst: inst}
	ts := model.UnixNanos(msg.Ts)

	var d model.Data
	switch msg.Type {
	case "quote":
		d = model.QuoteTick{
			InstrumentID: id,
			BidPrice:     p.price("bid", msg.Bid),
			AskPrice:     p.price("ask", msg.Ask),
			BidSize:      p.qty("bidSize", msg.BidSize),
			AskSize:      p.qty("askSize", msg.AskSize),
			TsEvent:      ts,
		}
	case "trade":
		d = model.TradeTick{
			InstrumentID:  id,
			Price:         p.price("price", msg.Price),
			Size:          p.qty("size", msg.Size),
			AggressorSide: parseAggressor(msg.Side),
			TradeID:       model.NewTradeID(msg.TradeID),
			TsEvent:       ts,
		}
	case "depth":
		depth, err := p.decodeDepth(id, msg)
		if err != nil {
			return nil, err
		}
		d = depth
	case "mark":
		d = model.MarkPriceUpdate{InstrumentID: id, Value: p.price("value", msg.Value), TsEvent: ts}
	case "index":
		d = model.IndexPriceUpdate{InstrumentID: id, Value: p.price("value", msg.Value), TsEvent: ts}
	case "funding":
		d = model.FundingRateUpdate{
			InstrumentID: id,
			Rate:         p.exact("rate", p.parse("rate", msg.Rate)),
			NextFunding:  model.UnixNanos(msg.NextFunding),
			TsEvent:      ts,
		}
	case "status":
		action, ok := parseMarketStatus(msg.Status)
		if !ok {
			return nil, errors.Wrap(exception.ErrFeedMessage, "unknown status").With("status", msg.Status)
		}
		d = model.InstrumentStatus{
			InstrumentID: id,
			Action:       action,
			Reason:       msg.Reason,
			IsTrading:    action == enum.MarketStatusActionTrading,
			IsQuoting:    action == enum.MarketStatusActionTrading || action == enum.MarketStatusActionPreOpen,
			TsEvent:      ts,
		}
	default:
		return nil, errors.Wrap(exception.ErrFeedMessage, "unknown type").With("type", msg.Type)
	}
	if p.err != nil {
		return nil, errors.Wrap(exception.ErrFeedMessage, p.err.Error()).With("instrument", id.String())
	}
	return d, nil
}

type feedParser struct {
	inst *model.Instrument
	err  error
}

func (p *feedParser) fail(field string, err error) {
	if p.err == nil {
		p.err = errors.Wrap(err, "parse "+field)
	}
}

func (p *feedParser) parse(field string, v wire.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		p.fail(field, err)
	}
	return d
}

func (p *feedParser) price(field string, v wire.Decimal) model.Price {
	px, err := p.inst.MakePrice(p.parse(field, v))
	if err != nil {
		p.fail(field, err)
	}
	return px
}

func (p *feedParser) qty(field string, v wire.Decimal) model.Quantity {
	q, err := p.inst.MakeQty(p.parse(field, v))
	if err != nil {
		p.fail(field, err)
	}
	return q
}

// exact keeps every decimal of v, for values such as funding rates that are
// finer than the price grid.
func (p *feedParser) exact(field string, v decimal.Decimal) model.Price {
	precision := uint8(0)
	if exp := v.Exponent(); exp < 0 {
		precision = uint8(min(-exp, model.FixedPrecision))
	}
	px, err := model.PriceFromDecimal(v, precision)
	if err != nil {
		p.fail(field, err)
	}
	return px
}

func parseAggressor(side string) enum.AggressorSide {
	switch strings.ToLower(side) {
	case "buy", "buyer":
		return enum.AggressorSideBuyer
	case "sell", "seller":
		return enum.AggressorSideSeller
	default:
		return enum.AggressorSideNoAggressor
	}
}

func parseMarketStatus(s string) (enum.MarketStatusAction, bool) {
	switch strings.ToLower(s) {
	case "pre_open":
		return enum.MarketStatusActionPreOpen, true
	case "trading", "open":
		return enum.MarketStatusActionTrading, true
	case "pause":
		return enum.MarketStatusActionPause, true
	case "halt":
		return enum.MarketStatusActionHalt, true
	case "close", "closed":
		return enum.MarketStatusActionClose, true
	case "not_available":
		return enum.MarketStatusActionNotAvailable, true
	default:
		return 0, false
	}
}
