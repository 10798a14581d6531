// Package switchboard computes the canonical bus topics and caches them per key.
package switchboard

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
)

// Well-known endpoints.
const (
	EndpointDataEngine = "DataEngine.execute"
	EndpointExecEngine = "ExecEngine.execute"
	EndpointRiskEngine = "RiskEngine.execute"
	// EndpointReconcile receives venue mass status reports on (re)connect.
	EndpointReconcile = "ExecEngine.reconcile"
)

// DataType identifies a custom data stream, e.g. `data.news.source=reuters`.
type DataType struct {
	TypeName string
	Metadata map[string]string
}

// Topic renders the data type's topic with metadata keys in sorted order.
func (d DataType) Topic() string {
	var sb strings.Builder
	sb.WriteString("data.")
	sb.WriteString(d.TypeName)
	for _, k := range slices.Sorted(maps.Keys(d.Metadata)) {
		sb.WriteByte('.')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(d.Metadata[k])
	}
	return sb.String()
}

type snapshotKey struct {
	instrumentID model.InstrumentID
	intervalMs   uint64
}

// Switchboard is owned by the engine goroutine. Every lookup hits a per-kind map
// and the topic string is built once.
type Switchboard struct {
	customTopics      map[string]string
	venueInstruments  map[model.Venue]string
	instrumentTopics  map[model.InstrumentID]string
	deltaTopics       map[model.InstrumentID]string
	depthTopics       map[model.InstrumentID]string
	bookSnapTopics    map[snapshotKey]string
	quoteTopics       map[model.InstrumentID]string
	tradeTopics       map[model.InstrumentID]string
	barTopics         map[model.BarType]string
	markPriceTopics   map[model.InstrumentID]string
	indexPriceTopics  map[model.InstrumentID]string
	fundingTopics     map[model.InstrumentID]string
	statusTopics      map[model.InstrumentID]string
	closeTopics       map[model.InstrumentID]string
	fillTopics        map[model.InstrumentID]string
	orderSnapTopics   map[model.ClientOrderID]string
	positionSnapTopic map[model.PositionID]string
	orderEventTopics  map[model.StrategyID]string
	posEventTopics    map[model.StrategyID]string
	adapterTopics     map[model.ClientID]string
}

func New() *Switchboard {
	return &Switchboard{
		customTopics:      make(map[string]string),
		venueInstruments:  make(map[model.Venue]string),
		instrumentTopics:  make(map[model.InstrumentID]string),
		deltaTopics:       make(map[model.InstrumentID]string),
		depthTopics:       make(map[model.InstrumentID]string),
		bookSnapTopics:    make(map[snapshotKey]string),
		quoteTopics:       make(map[model.InstrumentID]string),
		tradeTopics:       make(map[model.InstrumentID]string),
		barTopics:         make(map[model.BarType]string),
		markPriceTopics:   make(map[model.InstrumentID]string),
		indexPriceTopics:  make(map[model.InstrumentID]string),
		fundingTopics:     make(map[model.InstrumentID]string),
		statusTopics:      make(map[model.InstrumentID]string),
		closeTopics:       make(map[model.InstrumentID]string),
		fillTopics:        make(map[model.InstrumentID]string),
		orderSnapTopics:   make(map[model.ClientOrderID]string),
		positionSnapTopic: make(map[model.PositionID]string),
		orderEventTopics:  make(map[model.StrategyID]string),
		posEventTopics:    make(map[model.StrategyID]string),
		adapterTopics:     make(map[model.ClientID]string),
	}
}

func lookup[K comparable](m map[K]string, key K, build func() string) string {
	if topic, ok := m[key]; ok {
		return topic
	}
	topic := model.Intern(build()).String()
	m[key] = topic
	return topic
}

func venueSymbol(prefix string, id model.InstrumentID) func() string {
	return func() string {
		return prefix + id.Venue.String() + "." + id.Symbol.String()
	}
}

func (s *Switchboard) CustomTopic(dataType DataType) string {
	key := dataType.Topic()
	return lookup(s.customTopics, key, func() string { return key })
}

func (s *Switchboard) InstrumentsTopic(venue model.Venue) string {
	return lookup(s.venueInstruments, venue, func() string { return "data.instrument." + venue.String() })
}

func (s *Switchboard) InstrumentTopic(id model.InstrumentID) string {
	return lookup(s.instrumentTopics, id, venueSymbol("data.instrument.", id))
}

func (s *Switchboard) BookDeltasTopic(id model.InstrumentID) string {
	return lookup(s.deltaTopics, id, venueSymbol("data.book.deltas.", id))
}

func (s *Switchboard) BookDepth10Topic(id model.InstrumentID) string {
	return lookup(s.depthTopics, id, venueSymbol("data.book.depth10.", id))
}

func (s *Switchboard) BookSnapshotsTopic(id model.InstrumentID, intervalMs uint64) string {
	return lookup(s.bookSnapTopics, snapshotKey{id, intervalMs}, func() string {
		return venueSymbol("data.book.snapshots.", id)() + "." + strconv.FormatUint(intervalMs, 10)
	})
}

func (s *Switchboard) QuotesTopic(id model.InstrumentID) string {
	return lookup(s.quoteTopics, id, venueSymbol("data.quotes.", id))
}

func (s *Switchboard) TradesTopic(id model.InstrumentID) string {
	return lookup(s.tradeTopics, id, venueSymbol("data.trades.", id))
}

func (s *Switchboard) BarsTopic(barType model.BarType) string {
	return lookup(s.barTopics, barType, func() string { return "data.bars." + barType.String() })
}

func (s *Switchboard) MarkPriceTopic(id model.InstrumentID) string {
	return lookup(s.markPriceTopics, id, venueSymbol("data.mark_prices.", id))
}

func (s *Switchboard) IndexPriceTopic(id model.InstrumentID) string {
	return lookup(s.indexPriceTopics, id, venueSymbol("data.index_prices.", id))
}

func (s *Switchboard) FundingRateTopic(id model.InstrumentID) string {
	return lookup(s.fundingTopics, id, venueSymbol("data.funding_rates.", id))
}

func (s *Switchboard) InstrumentStatusTopic(id model.InstrumentID) string {
	return lookup(s.statusTopics, id, venueSymbol("data.status.", id))
}

func (s *Switchboard) InstrumentCloseTopic(id model.InstrumentID) string {
	return lookup(s.closeTopics, id, venueSymbol("data.close.", id))
}

func (s *Switchboard) OrderFillsTopic(id model.InstrumentID) string {
	return lookup(s.fillTopics, id, func() string { return "events.fills." + id.String() })
}

func (s *Switchboard) OrderSnapshotsTopic(id model.ClientOrderID) string {
	return lookup(s.orderSnapTopics, id, func() string { return "order.snapshots." + id.String() })
}

func (s *Switchboard) PositionSnapshotsTopic(id model.PositionID) string {
	return lookup(s.positionSnapTopic, id, func() string { return "positions.snapshots." + id.String() })
}

func (s *Switchboard) EventOrdersTopic(id model.StrategyID) string {
	return lookup(s.orderEventTopics, id, func() string { return "events.order." + id.String() })
}

func (s *Switchboard) EventPositionsTopic(id model.StrategyID) string {
	return lookup(s.posEventTopics, id, func() string { return "events.position." + id.String() })
}

// AdapterStatusTopic carries adapter lifecycle and error events for one client.
func (s *Switchboard) AdapterStatusTopic(id model.ClientID) string {
	return lookup(s.adapterTopics, id, func() string { return "events.adapter." + id.String() })
}

// DataTopic returns the topic a data value is published on.
func (s *Switchboard) DataTopic(d model.Data) (string, bool) {
	id := d.Instrument()
	switch d.Kind() {
	case enum.DataKindQuote:
		return s.QuotesTopic(id), true
	case enum.DataKindTrade:
		return s.TradesTopic(id), true
	case enum.DataKindOrderBookDelta, enum.DataKindOrderBookDeltas:
		return s.BookDeltasTopic(id), true
	case enum.DataKindOrderBookDepth10:
		return s.BookDepth10Topic(id), true
	case enum.DataKindBar:
		switch bar := d.(type) {
		case model.Bar:
			return s.BarsTopic(bar.BarType), true
		case *model.Bar:
			return s.BarsTopic(bar.BarType), true
		}
		return "", false
	case enum.DataKindMarkPrice:
		return s.MarkPriceTopic(id), true
	case enum.DataKindIndexPrice:
		return s.IndexPriceTopic(id), true
	case enum.DataKindFundingRate:
		return s.FundingRateTopic(id), true
	case enum.DataKindInstrumentStatus:
		return s.InstrumentStatusTopic(id), true
	case enum.DataKindInstrumentClose:
		return s.InstrumentCloseTopic(id), true
	default:
		return "", false
	}
}
