package core

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/cache"
	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/reconcile"
	"tradecore/internal/risk"
	"tradecore/internal/state"
	"tradecore/internal/switchboard"
)

var (
	ethusdt  = model.NewInstrumentID(model.NewSymbol("ETHUSDT"), model.NewVenue("BINANCE"))
	strategy = model.NewStrategyID("S-001")
	trader   = model.NewTraderID("TRADER-001")
)

func testInstrument() *model.Instrument {
	return &model.Instrument{
		ID:             ethusdt,
		Kind:           model.InstrumentKindPerpetual,
		QuoteCurrency:  model.USDT,
		PricePrecision: 2,
		SizePrecision:  3,
		PriceIncrement: model.MustParsePrice("0.01"),
		SizeIncrement:  model.MustParseQuantity("0.001"),
		MakerFee:       decimal.RequireFromString("0.0002"),
		TakerFee:       decimal.RequireFromString("0.0005"),
	}
}

type harness struct {
	t         *testing.T
	e         *Engine
	clk       *clock.AtomicTime
	events    []model.OrderEvent
	positions []model.Position
}

func newHarness(t *testing.T, mutate func(*Config), opts ...Option) *harness {
	t.Helper()
	clk := clock.NewStatic(1_000_000)
	cfg := DefaultConfig(trader)
	cfg.InflightInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)

	h := &harness{t: t, e: e, clk: clk}
	require.NoError(t, e.Bus().Subscribe("events.*", bus.NewHandler("test", h.record), 0))
	require.NoError(t, e.Bus().Send(switchboard.EndpointDataEngine, testInstrument()))
	return h
}

func (h *harness) record(_ string, msg any) {
	switch v := msg.(type) {
	case model.OrderEvent:
		h.events = append(h.events, v)
	case model.Position:
		h.positions = append(h.positions, v)
	}
}

func (h *harness) tick() model.UnixNanos {
	now, err := h.clk.Advance(time.Millisecond)
	require.NoError(h.t, err)
	return now
}

func (h *harness) quote(bid, ask string) {
	now := h.tick()
	require.NoError(h.t, h.e.Bus().Send(switchboard.EndpointDataEngine, model.QuoteTick{
		InstrumentID: ethusdt,
		BidPrice:     model.MustParsePrice(bid),
		AskPrice:     model.MustParsePrice(ask),
		BidSize:      model.MustParseQuantity("5.000"),
		AskSize:      model.MustParseQuantity("5.000"),
		TsEvent:      now,
		TsInit:       now,
	}))
}

func (h *harness) send(cmd any) {
	h.tick()
	require.NoError(h.t, h.e.Bus().Send(switchboard.EndpointExecEngine, cmd))
}

func (h *harness) submit(init model.OrderInitialized) *model.Order {
	h.send(SubmitOrder{Order: init})
	o, ok := h.e.Cache().Order(init.ClientOrderID)
	require.True(h.t, ok)
	return o
}

func (h *harness) kinds() []enum.OrderEventKind {
	out := make([]enum.OrderEventKind, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Kind())
	}
	return out
}

func (h *harness) last() model.OrderEvent {
	require.NotEmpty(h.t, h.events)
	return h.events[len(h.events)-1]
}

func newOrder(id string, side enum.OrderSide, typ enum.OrderType, qty string) model.OrderInitialized {
	return model.OrderInitialized{
		EventHeader: model.EventHeader{
			StrategyID:    strategy,
			InstrumentID:  ethusdt,
			ClientOrderID: model.NewClientOrderID(id),
		},
		Side:        side,
		OrderType:   typ,
		Quantity:    model.MustParseQuantity(qty),
		TimeInForce: enum.TimeInForceGTC,
	}
}

func limitOrder(id string, side enum.OrderSide, qty, px string) model.OrderInitialized {
	init := newOrder(id, side, enum.OrderTypeLimit, qty)
	price := model.MustParsePrice(px)
	init.Price = &price
	return init
}

func TestMarketOrderFillsAtTouch(t *testing.T) {
	h := newHarness(t, nil)
	h.quote("99.50", "100.50")

	o := h.submit(newOrder("O-1", enum.OrderSideBuy, enum.OrderTypeMarket, "1.000"))

	assert.Equal(t, []enum.OrderEventKind{
		enum.OrderEventInitialized, enum.OrderEventSubmitted, enum.OrderEventAccepted, enum.OrderEventFilled,
	}, h.kinds())
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	assert.InDelta(t, 100.5, o.AvgPx, 1e-9)
	assert.False(t, o.VenueOrderID.IsEmpty())

	fill := h.last().(model.OrderFilled)
	assert.Equal(t, enum.LiquiditySideTaker, fill.LiquiditySide)
	assert.Equal(t, "100.50", fill.LastPx.String())
	assert.True(t, fill.Commission.Decimal().Equal(decimal.RequireFromString("0.05025")), "commission %s", fill.Commission)

	require.Len(t, h.positions, 1)
	assert.InDelta(t, 1.0, h.positions[0].SignedQty, 1e-9)
	assert.InDelta(t, 1.0, h.e.Positions().NetQty(ethusdt), 1e-9)
	_, cached := h.e.Cache().Position(state.NettingPositionID(ethusdt, strategy))
	assert.True(t, cached)
}

func TestLimitOrderRestsThenFills(t *testing.T) {
	h := newHarness(t, nil)
	h.quote("99.00", "101.00")

	o := h.submit(limitOrder("O-1", enum.OrderSideBuy, "2.000", "100.00"))
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)
	core, ok := h.e.Core(ethusdt)
	require.True(t, ok)
	assert.True(t, core.OrderExists(o.ClientOrderID))

	h.quote("99.50", "100.50")
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)

	h.quote("99.00", "100.00")
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	assert.False(t, core.OrderExists(o.ClientOrderID))

	fill := h.last().(model.OrderFilled)
	assert.Equal(t, enum.LiquiditySideMaker, fill.LiquiditySide)
	assert.Equal(t, "100.00", fill.LastPx.String())
	assert.True(t, fill.Commission.Decimal().Equal(decimal.RequireFromString("0.04")), "commission %s", fill.Commission)
}

func TestMarketableLimitIsTaker(t *testing.T) {
	h := newHarness(t, nil)
	h.quote("99.00", "100.00")

	o := h.submit(limitOrder("O-1", enum.OrderSideBuy, "1.000", "100.00"))
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	assert.Equal(t, enum.LiquiditySideTaker, h.last().(model.OrderFilled).LiquiditySide)
}

func TestTradesStandInForQuotes(t *testing.T) {
	h := newHarness(t, nil)
	o := h.submit(limitOrder("O-1", enum.OrderSideSell, "1.000", "101.00"))
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)

	now := h.tick()
	require.NoError(t, h.e.Bus().Send(switchboard.EndpointDataEngine, model.TradeTick{
		InstrumentID:  ethusdt,
		Price:         model.MustParsePrice("101.00"),
		Size:          model.MustParseQuantity("0.500"),
		AggressorSide: enum.AggressorSideBuyer,
		TradeID:       model.NewTradeID("1"),
		TsEvent:       now,
		TsInit:        now,
	}))
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	assert.InDelta(t, -1.0, h.e.Positions().NetQty(ethusdt), 1e-9)
}

func TestStopLimitTriggersThenRests(t *testing.T) {
	h := newHarness(t, nil)
	h.quote("100.00", "100.10")

	init := newOrder("O-1", enum.OrderSideSell, enum.OrderTypeStopLimit, "1.000")
	trigger, price := model.MustParsePrice("95.00"), model.MustParsePrice("94.00")
	init.TriggerPrice, init.Price = &trigger, &price
	o := h.submit(init)
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)

	h.quote("96.00", "96.10")
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)

	h.quote("95.00", "95.10")
	assert.Equal(t, []enum.OrderEventKind{
		enum.OrderEventInitialized, enum.OrderEventSubmitted, enum.OrderEventAccepted,
		enum.OrderEventTriggered, enum.OrderEventFilled,
	}, h.kinds())
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	assert.Equal(t, "94.00", h.last().(model.OrderFilled).LastPx.String())
}

func TestStopMarketFillsAtTouch(t *testing.T) {
	h := newHarness(t, nil)
	h.quote("100.00", "100.10")

	init := newOrder("O-1", enum.OrderSideBuy, enum.OrderTypeStopMarket, "1.000")
	trigger := model.MustParsePrice("101.00")
	init.TriggerPrice = &trigger
	o := h.submit(init)

	h.quote("101.00", "101.20")
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	fill := h.last().(model.OrderFilled)
	assert.Equal(t, "101.20", fill.LastPx.String())
	assert.Equal(t, enum.LiquiditySideTaker, fill.LiquiditySide)
}

func TestSubmitRejections(t *testing.T) {
	testCases := []struct {
		desc   string
		setup  func(h *harness)
		order  func() model.OrderInitialized
		kind   enum.OrderEventKind
		reason string
	}{
		{
			desc:   "unknown instrument",
			order: func() model.OrderInitialized {
				o := limitOrder("O-1", enum.OrderSideBuy, "1.000", "100.00")
				o.InstrumentID = model.MustParseInstrumentID("BTCUSDT.BINANCE")
				return o
			},
			kind:   enum.OrderEventDenied,
			reason: ReasonUnknownInstrument,
		},
		{
			desc:   "wrong size precision",
			order:  func() model.OrderInitialized { return limitOrder("O-1", enum.OrderSideBuy, "1.00", "100.00") },
			kind:   enum.OrderEventDenied,
			reason: risk.ReasonQuantity,
		},
		{
			desc: "risk limit",
			setup: func(h *harness) {
				require.NoError(h.t, h.e.Bus().Send(switchboard.EndpointRiskEngine, risk.Config{Version: 2, MaxOrderQty: decimal.RequireFromString("0.5")}))
			},
			order:  func() model.OrderInitialized { return limitOrder("O-1", enum.OrderSideBuy, "1.000", "100.00") },
			kind:   enum.OrderEventDenied,
			reason: risk.ReasonMaxQty,
		},
		{
			desc:   "market without quotes",
			order:  func() model.OrderInitialized { return newOrder("O-1", enum.OrderSideBuy, enum.OrderTypeMarket, "1.000") },
			kind:   enum.OrderEventRejected,
			reason: ReasonNoMarket,
		},
		{
			desc:  "post only would take",
			setup: func(h *harness) { h.quote("99.00", "100.00") },
			order: func() model.OrderInitialized {
				o := limitOrder("O-1", enum.OrderSideBuy, "1.000", "100.00")
				o.PostOnly = true
				return o
			},
			kind:   enum.OrderEventRejected,
			reason: ReasonPostOnly,
		},
		{
			desc:  "reduce only without position",
			setup: func(h *harness) { h.quote("99.00", "100.00") },
			order: func() model.OrderInitialized {
				o := newOrder("O-1", enum.OrderSideSell, enum.OrderTypeMarket, "1.000")
				o.ReduceOnly = true
				return o
			},
			kind:   enum.OrderEventRejected,
			reason: ReasonReduceOnly,
		},
		{
			desc: "halted",
			setup: func(h *harness) {
				now := h.tick()
				require.NoError(h.t, h.e.Bus().Send(switchboard.EndpointDataEngine, model.InstrumentStatus{
					InstrumentID: ethusdt,
					Action:       enum.MarketStatusActionHalt,
					Reason:       "maintenance",
					TsEvent:      now,
					TsInit:       now,
				}))
			},
			order:  func() model.OrderInitialized { return limitOrder("O-1", enum.OrderSideBuy, "1.000", "100.00") },
			kind:   enum.OrderEventRejected,
			reason: ReasonMarketHalted,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			h := newHarness(t, nil)
			if tc.setup != nil {
				tc.setup(h)
			}
			o := h.submit(tc.order())
			ev := h.last()
			require.Equal(t, tc.kind, ev.Kind())
			switch v := ev.(type) {
			case model.OrderDenied:
				assert.Equal(t, tc.reason, v.Reason)
			case model.OrderRejected:
				assert.Equal(t, tc.reason, v.Reason)
			}
			assert.True(t, o.IsTerminal())
		})
	}
}

func TestImmediateOrCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.quote("99.00", "101.00")

	init := limitOrder("O-1", enum.OrderSideBuy, "1.000", "100.00")
	init.TimeInForce = enum.TimeInForceIOC
	o := h.submit(init)

	assert.Equal(t, enum.OrderStatusCanceled, o.Status)
	core, _ := h.e.Core(ethusdt)
	assert.False(t, core.OrderExists(o.ClientOrderID))
}

func TestModifyAndCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.quote("99.00", "101.00")
	o := h.submit(limitOrder("O-1", enum.OrderSideBuy, "1.000", "99.50"))
	core, _ := h.e.Core(ethusdt)

	price := model.MustParsePrice("100.00")
	h.send(ModifyOrder{ClientOrderID: o.ClientOrderID, Quantity: model.MustParseQuantity("2.000"), Price: &price})
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)
	assert.Equal(t, "2.000", o.Quantity.String())
	assert.Equal(t, "100.00", o.Price.String())
	p, ok := core.Order(o.ClientOrderID)
	require.True(t, ok)
	assert.Equal(t, "100.00", p.LimitPx.String())

	h.send(ModifyOrder{ClientOrderID: o.ClientOrderID, Quantity: model.MustParseQuantity("0.000")})
	assert.Equal(t, "2.000", o.Quantity.String())

	h.send(CancelOrder{ClientOrderID: o.ClientOrderID})
	assert.Equal(t, enum.OrderStatusCanceled, o.Status)
	assert.False(t, core.OrderExists(o.ClientOrderID))

	h.send(CancelOrder{ClientOrderID: o.ClientOrderID})
	assert.Equal(t, enum.OrderEventCanceled, h.last().Kind())
}

func TestModifyWithoutChangesKeepsOrder(t *testing.T) {
	h := newHarness(t, nil)
	o := h.submit(limitOrder("O-1", enum.OrderSideBuy, "1.000", "90.00"))

	h.send(ModifyOrder{ClientOrderID: o.ClientOrderID, Quantity: model.MustParseQuantity("0.000")})
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)
	assert.Equal(t, "1.000", o.Quantity.String())
	assert.Equal(t, enum.OrderEventUpdated, h.last().Kind())
}

func TestCancelAllOrders(t *testing.T) {
	h := newHarness(t, nil)
	a := h.submit(limitOrder("O-1", enum.OrderSideBuy, "1.000", "90.00"))
	b := h.submit(limitOrder("O-2", enum.OrderSideSell, "1.000", "110.00"))

	h.send(CancelAllOrders{InstrumentID: ethusdt})
	assert.Equal(t, enum.OrderStatusCanceled, a.Status)
	assert.Equal(t, enum.OrderStatusCanceled, b.Status)
	core, _ := h.e.Core(ethusdt)
	assert.Empty(t, core.Orders())
}

func TestAdapterEventsAreApplied(t *testing.T) {
	h := newHarness(t, nil)
	topics := switchboard.New()
	init := limitOrder("O-1", enum.OrderSideBuy, "1.000", "90.00")
	init.TraderID = trader
	init.EventID = model.NewUUID4()

	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), init)
	o, ok := h.e.Cache().Order(init.ClientOrderID)
	require.True(t, ok)

	header := init.EventHeader
	header.EventID = model.NewUUID4()
	accepted := model.OrderAccepted{EventHeader: header, VenueOrderID: model.NewVenueOrderID("V-9")}
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), model.OrderSubmitted{EventHeader: init.EventHeader})
	assert.Equal(t, enum.OrderStatusInitialized, o.Status, "duplicate event id is dropped")

	header.EventID = model.NewUUID4()
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), model.OrderSubmitted{EventHeader: header})
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), accepted)
	assert.Equal(t, enum.OrderStatusAccepted, o.Status)
	found, ok := h.e.Cache().OrderByVenueID(model.NewVenueOrderID("V-9"))
	require.True(t, ok)
	assert.Equal(t, o, found)
}

func TestResentFillKeepsOrderAndPositionInStep(t *testing.T) {
	h := newHarness(t, nil)
	topics := switchboard.New()
	init := limitOrder("O-1", enum.OrderSideBuy, "1.000", "90.00")
	init.TraderID = trader
	init.EventID = model.NewUUID4()
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), init)
	o, ok := h.e.Cache().Order(init.ClientOrderID)
	require.True(t, ok)

	header := init.EventHeader
	header.EventID = model.NewUUID4()
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), model.OrderSubmitted{EventHeader: header})
	header.EventID = model.NewUUID4()
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), model.OrderAccepted{EventHeader: header, VenueOrderID: model.NewVenueOrderID("V-9")})

	fill := func() model.OrderFilled {
		header.EventID = model.NewUUID4()
		return model.OrderFilled{
			EventHeader:  header,
			VenueOrderID: model.NewVenueOrderID("V-9"),
			TradeID:      model.NewTradeID("T-7"),
			Side:         enum.OrderSideBuy,
			OrderType:    enum.OrderTypeLimit,
			LastQty:      model.MustParseQuantity("0.400"),
			LastPx:       model.MustParsePrice("90.00"),
			Currency:     model.USDT,
			Commission:   model.ZeroMoney(model.USDT),
		}
	}
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), fill())
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), fill())

	assert.Equal(t, enum.OrderStatusPartiallyFilled, o.Status)
	assert.Equal(t, "0.400", o.FilledQty.String())
	assert.Equal(t, "0.600", o.LeavesQty.String())
	assert.InDelta(t, 0.4, h.e.Positions().NetQty(ethusdt), 1e-9)
}

func TestReplayedFillWithoutOrderUpdatesPosition(t *testing.T) {
	h := newHarness(t, nil)
	fill := model.OrderFilled{
		EventHeader: model.EventHeader{
			TraderID:      trader,
			StrategyID:    strategy,
			InstrumentID:  ethusdt,
			ClientOrderID: model.NewClientOrderID("O-external"),
			EventID:       model.NewUUID4(),
			TsEvent:       5,
			TsInit:        5,
		},
		TradeID:    model.NewTradeID("T-1"),
		Side:       enum.OrderSideSell,
		OrderType:  enum.OrderTypeMarket,
		LastQty:    model.MustParseQuantity("0.250"),
		LastPx:     model.MustParsePrice("100.00"),
		Currency:   model.USDT,
		Commission: model.ZeroMoney(model.USDT),
	}
	h.e.Bus().Publish(switchboard.New().OrderFillsTopic(ethusdt), fill)
	h.e.Bus().Publish(switchboard.New().OrderFillsTopic(ethusdt), fill)
	assert.InDelta(t, -0.25, h.e.Positions().NetQty(ethusdt), 1e-9)
	assert.Len(t, h.positions, 1)
}

func TestReconcileMassStatus(t *testing.T) {
	h := newHarness(t, nil)
	o := h.submit(limitOrder("O-1", enum.OrderSideBuy, "1.000", "90.00"))
	require.Equal(t, enum.OrderStatusAccepted, o.Status)

	mass := model.NewExecutionMassStatus(model.NewClientID("BINANCE"), o.AccountID, model.NewVenue("BINANCE"), h.clk.Now())
	mass.AddOrderReports(model.OrderStatusReport{
		AccountID:     o.AccountID,
		InstrumentID:  ethusdt,
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		Side:          enum.OrderSideBuy,
		OrderType:     enum.OrderTypeLimit,
		TimeInForce:   enum.TimeInForceGTC,
		Status:        enum.OrderStatusCanceled,
		Quantity:      o.Quantity,
		FilledQty:     model.MustParseQuantity("0.000"),
		ReportID:      model.NewUUID4(),
		TsLast:        h.clk.Now(),
		TsInit:        h.clk.Now(),
	})
	require.NoError(t, h.e.Bus().Send(switchboard.EndpointReconcile, mass))

	assert.Equal(t, enum.OrderStatusCanceled, o.Status)
	core, _ := h.e.Core(ethusdt)
	assert.False(t, core.OrderExists(o.ClientOrderID))
}

func TestInflightTimeoutRejects(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Reconcile = reconcile.Config{InflightThreshold: time.Second, InflightMaxRetries: 1}
	})
	topics := switchboard.New()
	init := limitOrder("O-1", enum.OrderSideBuy, "1.000", "90.00")
	init.TraderID = trader
	init.EventID = model.NewUUID4()
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), init)

	header := init.EventHeader
	header.EventID = model.NewUUID4()
	header.TsEvent = h.clk.Now()
	h.e.Bus().Publish(topics.EventOrdersTopic(strategy), model.OrderSubmitted{EventHeader: header})
	o, _ := h.e.Cache().Order(init.ClientOrderID)
	require.Equal(t, enum.OrderStatusSubmitted, o.Status)

	h.send(CheckInflight{})
	assert.Equal(t, enum.OrderStatusSubmitted, o.Status)

	_, err := h.clk.Advance(2 * time.Second)
	require.NoError(t, err)
	h.send(CheckInflight{})
	assert.Equal(t, enum.OrderStatusRejected, o.Status)
	assert.Equal(t, reconcile.ReasonInflightTimeout, h.last().(model.OrderRejected).Reason)
}

func TestRunDrainsQueue(t *testing.T) {
	h := newHarness(t, nil)
	now := h.tick()
	q := h.e.Queue()
	require.NoError(t, q.Publish(t.Context(), bus.Envelope{
		Topic: switchboard.New().QuotesTopic(ethusdt),
		Msg: model.QuoteTick{
			InstrumentID: ethusdt,
			BidPrice:     model.MustParsePrice("99.00"),
			AskPrice:     model.MustParsePrice("100.00"),
			BidSize:      model.MustParseQuantity("1.000"),
			AskSize:      model.MustParseQuantity("1.000"),
			TsEvent:      now,
			TsInit:       now,
		},
	}))
	init := newOrder("O-1", enum.OrderSideBuy, enum.OrderTypeMarket, "0.500")
	require.NoError(t, q.Publish(t.Context(), bus.Envelope{Endpoint: switchboard.EndpointExecEngine, Msg: SubmitOrder{Order: init}}))
	q.Close()

	require.NoError(t, h.e.Run(t.Context()))
	assert.True(t, h.e.Bus().IsDisposed())

	o, ok := h.e.Cache().Order(init.ClientOrderID)
	require.True(t, ok)
	assert.Equal(t, enum.OrderStatusFilled, o.Status)

	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, h.e.SnapshotPositions(path))
	snap, err := state.ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, now, snap.LastTsInit)
}

func TestLoadRestoresRestingOrders(t *testing.T) {
	backend := cache.NewMemoryBackend()
	instance := model.NewUUID4()
	cfg := cache.Config{UseTraderPrefix: true, Encoding: enum.SerializationEncodingJSON}
	newCache := func() *cache.Cache {
		db, err := cache.NewDatabase(cfg, trader, instance, backend)
		require.NoError(t, err)
		return cache.New(db)
	}

	first := newHarness(t, nil, WithCache(newCache()))
	o := first.submit(limitOrder("O-1", enum.OrderSideBuy, "1.000", "100.00"))
	require.Equal(t, enum.OrderStatusAccepted, o.Status)

	clk := clock.NewStatic(first.clk.Now())
	dcfg := DefaultConfig(trader)
	dcfg.InflightInterval = 0
	second, err := New(dcfg, WithClock(clk), WithCache(newCache()))
	require.NoError(t, err)
	require.NoError(t, second.Load(t.Context()))

	core, ok := second.Core(ethusdt)
	require.True(t, ok)
	require.True(t, core.OrderExists(o.ClientOrderID))

	_, err = clk.Advance(time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, second.Bus().Send(switchboard.EndpointDataEngine, model.QuoteTick{
		InstrumentID: ethusdt,
		BidPrice:     model.MustParsePrice("99.00"),
		AskPrice:     model.MustParsePrice("100.00"),
		BidSize:      model.MustParseQuantity("1.000"),
		AskSize:      model.MustParseQuantity("1.000"),
		TsEvent:      clk.Now(),
		TsInit:       clk.Now(),
	}))
	restored, ok := second.Cache().Order(o.ClientOrderID)
	require.True(t, ok)
	assert.Equal(t, enum.OrderStatusFilled, restored.Status)
}

func BenchmarkQuoteIterate(b *testing.B) {
	e, err := New(Config{TraderID: trader}, WithClock(clock.NewStatic(1)))
	require.NoError(b, err)
	require.NoError(b, e.Bus().Send(switchboard.EndpointDataEngine, testInstrument()))
	for i := range 100 {
		init := limitOrder("O-"+strconv.Itoa(i), enum.OrderSideBuy, "1.000", "50.00")
		require.NoError(b, e.Bus().Send(switchboard.EndpointExecEngine, SubmitOrder{Order: init}))
	}
	q := model.QuoteTick{
		InstrumentID: ethusdt,
		BidPrice:     model.MustParsePrice("99.00"),
		AskPrice:     model.MustParsePrice("100.00"),
		BidSize:      model.MustParseQuantity("1.000"),
		AskSize:      model.MustParseQuantity("1.000"),
	}
	topic := switchboard.New().QuotesTopic(ethusdt)
	for b.Loop() {
		e.Bus().Publish(topic, q)
	}
}
