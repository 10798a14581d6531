package codec

import (
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Codec turns model values into WAL records and back, resolving instruments
// through the registry.
type Codec struct {
	registry *schema.Registry
}

func New(registry *schema.Registry) *Codec {
	return &Codec{registry: registry}
}

func (c *Codec) Registry() *schema.Registry { return c.registry }

// EncodeData builds the header and payload of a data record. seq is written to
// the header as given.
func (c *Codec) EncodeData(dst []byte, seq uint64, d model.Data) (schema.Header, []byte, error) {
	recordType, ok := schema.RecordTypeOf(d.Kind())
	if !ok {
		return schema.Header{}, nil, errors.Wrap(exception.ErrUnknownRecord, "encode").With("kind", d.Kind().String())
	}
	symbol, venue, err := c.resolve(d.Instrument())
	if err != nil {
		return schema.Header{}, nil, err
	}

	header := schema.NewHeader(recordType, venue, seq, d.EventTime(), d.InitTime())
	switch v := d.(type) {
	case model.QuoteTick:
		return header, EncodeQuote(dst, symbol, v), nil
	case model.TradeTick:
		payload, err := EncodeTrade(dst, symbol, v)
		return header, payload, err
	case model.Bar:
		return header, EncodeBar(dst, symbol, v), nil
	case model.MarkPriceUpdate:
		return header, EncodePriceUpdate(dst, symbol, v.Value), nil
	case model.IndexPriceUpdate:
		return header, EncodePriceUpdate(dst, symbol, v.Value), nil
	case model.FundingRateUpdate:
		return header, EncodeFunding(dst, symbol, v), nil
	default:
		return schema.Header{}, nil, errors.Wrap(exception.ErrUnknownRecord, "encode").With("kind", d.Kind().String())
	}
}

// DecodeData rebuilds a data value from a record.
func (c *Codec) DecodeData(h schema.Header, payload []byte) (model.Data, error) {
	var (
		symbol schema.SymbolID
		out    model.Data
		ok     bool
	)
	switch h.Type {
	case schema.RecordQuote:
		var q model.QuoteTick
		symbol, q, ok = DecodeQuote(payload, h)
		if ok {
			q.InstrumentID, ok = c.instrumentID(symbol)
		}
		out = q
	case schema.RecordTrade:
		var t model.TradeTick
		symbol, t, ok = DecodeTrade(payload, h)
		if ok {
			t.InstrumentID, ok = c.instrumentID(symbol)
		}
		out = t
	case schema.RecordBar:
		var b model.Bar
		symbol, b, ok = DecodeBar(payload, h)
		if ok {
			b.BarType.InstrumentID, ok = c.instrumentID(symbol)
		}
		out = b
	case schema.RecordMarkPrice, schema.RecordIndexPrice:
		var px model.Price
		symbol, px, ok = DecodePriceUpdate(payload)
		if !ok {
			break
		}
		var id model.InstrumentID
		id, ok = c.instrumentID(symbol)
		if h.Type == schema.RecordMarkPrice {
			out = model.MarkPriceUpdate{InstrumentID: id, Value: px, TsEvent: h.TsEvent, TsInit: h.TsInit}
		} else {
			out = model.IndexPriceUpdate{InstrumentID: id, Value: px, TsEvent: h.TsEvent, TsInit: h.TsInit}
		}
	case schema.RecordFundingRate:
		var f model.FundingRateUpdate
		symbol, f, ok = DecodeFunding(payload, h)
		if ok {
			f.InstrumentID, ok = c.instrumentID(symbol)
		}
		out = f
	default:
		return nil, errors.Wrap(exception.ErrUnknownRecord, "decode").With("type", h.Type.String())
	}

	if out == nil || !ok {
		if symbol != 0 {
			if _, known := c.registry.InstrumentBySymbol(symbol); !known {
				return nil, errors.Wrap(exception.ErrUnknownSymbol, "decode").With("symbol", symbol)
			}
		}
		return nil, errors.Wrap(exception.ErrShortPayload, "decode").With("type", h.Type.String()).With("len", len(payload))
	}
	return out, nil
}

// EncodeFill builds a fill record.
func (c *Codec) EncodeFill(dst []byte, seq uint64, fill model.OrderFilled) (schema.Header, []byte, error) {
	symbol, venue, err := c.resolve(fill.InstrumentID)
	if err != nil {
		return schema.Header{}, nil, err
	}
	payload, err := EncodeFill(dst, symbol, fill)
	if err != nil {
		return schema.Header{}, nil, err
	}
	return schema.NewHeader(schema.RecordFill, venue, seq, fill.TsEvent, fill.TsInit), payload, nil
}

func (c *Codec) DecodeFill(h schema.Header, payload []byte) (model.OrderFilled, error) {
	if h.Type != schema.RecordFill {
		return model.OrderFilled{}, errors.Wrap(exception.ErrUnknownRecord, "decode fill").With("type", h.Type.String())
	}
	symbol, fill, err := DecodeFill(payload, h)
	if err != nil {
		return model.OrderFilled{}, err
	}
	inst, ok := c.registry.InstrumentBySymbol(symbol)
	if !ok {
		return model.OrderFilled{}, errors.Wrap(exception.ErrUnknownSymbol, "decode fill").With("symbol", symbol)
	}
	fill.InstrumentID = inst.ID
	fill.Currency = inst.QuoteCurrency
	if fill.Commission.Currency.Code == "" {
		fill.Commission = model.ZeroMoney(inst.QuoteCurrency)
	}
	return fill, nil
}

func (c *Codec) resolve(id model.InstrumentID) (schema.SymbolID, schema.VenueID, error) {
	symbol, ok := c.registry.SymbolID(id)
	if !ok {
		return 0, 0, errors.Wrap(exception.ErrUnknownSymbol, "encode").With("instrument", id.String())
	}
	venue, _ := c.registry.VenueID(id.Venue)
	return symbol, venue, nil
}

func (c *Codec) instrumentID(symbol schema.SymbolID) (model.InstrumentID, bool) {
	inst, ok := c.registry.InstrumentBySymbol(symbol)
	if !ok {
		return model.InstrumentID{}, false
	}
	return inst.ID, true
}
