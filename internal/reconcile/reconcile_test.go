package reconcile

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
)

var (
	testInstrumentID = model.MustParseInstrumentID("ETHUSDT.BINANCE")
	testAccount      = model.NewAccountID("BINANCE-001")
	syntheticPattern = regexp.MustCompile(`^S-[0-9a-f]+-[0-9a-f]{8}$`)
)

type instruments map[model.InstrumentID]*model.Instrument

func (m instruments) Instrument(id model.InstrumentID) (*model.Instrument, bool) {
	inst, ok := m[id]
	return inst, ok
}

func testInstruments() instruments {
	return instruments{
		testInstrumentID: {
			ID:             testInstrumentID,
			Kind:           model.InstrumentKindPerpetual,
			QuoteCurrency:  model.USDT,
			PricePrecision: 2,
			SizePrecision:  0,
			PriceIncrement: model.MustParsePrice("0.01"),
			SizeIncrement:  model.MustParseQuantity("1"),
		},
	}
}

func fillReport(vid string, ts model.UnixNanos, side enum.OrderSide, qty, px string) model.FillReport {
	return model.FillReport{
		AccountID:     testAccount,
		InstrumentID:  testInstrumentID,
		ClientOrderID: model.NewClientOrderID("O-" + vid),
		VenueOrderID:  model.NewVenueOrderID(vid),
		TradeID:       model.NewTradeID("T-" + vid),
		Side:          side,
		LastQty:       model.MustParseQuantity(qty),
		LastPx:        model.MustParsePrice(px),
		Commission:    model.ZeroMoney(model.USDT),
		LiquiditySide: enum.LiquiditySideTaker,
		TsEvent:       ts,
		TsInit:        ts,
	}
}

func orderReport(vid string, side enum.OrderSide, status enum.OrderStatus, qty, filled string) model.OrderStatusReport {
	return model.OrderStatusReport{
		AccountID:     testAccount,
		InstrumentID:  testInstrumentID,
		ClientOrderID: model.NewClientOrderID("O-" + vid),
		VenueOrderID:  model.NewVenueOrderID(vid),
		Side:          side,
		OrderType:     enum.OrderTypeLimit,
		TimeInForce:   enum.TimeInForceGTC,
		Status:        status,
		Quantity:      model.MustParseQuantity(qty),
		FilledQty:     model.MustParseQuantity(filled),
		TsAccepted:    1,
		TsLast:        1,
	}
}

func positionReport(side enum.PositionSide, qty, avg string) model.PositionStatusReport {
	var avgPx *model.Price
	if avg != "" {
		p := model.MustParsePrice(avg)
		avgPx = &p
	}
	if avgPx == nil {
		return model.NewPositionStatusReport(testAccount, testInstrumentID, side, model.MustParseQuantity(qty), nil, 1_000, 1_000)
	}
	d := avgPx.Decimal()
	return model.NewPositionStatusReport(testAccount, testInstrumentID, side, model.MustParseQuantity(qty), &d, 1_000, 1_000)
}

func newMassStatus() *model.ExecutionMassStatus {
	return model.NewExecutionMassStatus(model.NewClientID("BINANCE"), testAccount, model.NewVenue("BINANCE"), 1_000)
}

func newReconciler(metrics *obs.Metrics) *Reconciler {
	return New(DefaultConfig(), clock.NewStatic(5_000), metrics)
}

// requirePositionCorrect replays the rewritten fills from flat and compares the
// result with the venue position.
func requirePositionCorrect(t *testing.T, res Result, pos model.PositionStatusReport) {
	t.Helper()
	fills := res.Fills(pos.InstrumentID)
	snaps := make([]FillSnapshot, len(fills))
	for i, f := range fills {
		snaps[i] = snapshot(f)
	}
	qty, value := SimulatePosition(snaps)
	venue := VenuePosition{Qty: pos.SignedQty, AvgPx: pos.AvgPxOpen.Decimal}
	require.True(t, CheckPositionMatch(qty, value, venue, DefaultTolerance), "simulated %s value %s", qty, value)
}

// requireWorkingOrdersKept checks every non-terminal input order survives.
func requireWorkingOrdersKept(t *testing.T, mass *model.ExecutionMassStatus, res Result) {
	t.Helper()
	for vid, rep := range mass.OrderReports {
		if rep.Status.IsTerminal() {
			continue
		}
		got, ok := res.OrderReports[vid]
		require.True(t, ok, "working order %s dropped", vid)
		assert.Equal(t, rep, got)
	}
}

func TestAdjustMassStatusNoAdjustment(t *testing.T) {
	mass := newMassStatus()
	mass.AddOrderReports(
		orderReport("V1", enum.OrderSideBuy, enum.OrderStatusFilled, "5", "5"),
		orderReport("V2", enum.OrderSideBuy, enum.OrderStatusFilled, "5", "5"),
	)
	mass.AddFillReports(
		fillReport("V1", 10, enum.OrderSideBuy, "5", "100"),
		fillReport("V2", 20, enum.OrderSideBuy, "5", "102"),
	)
	pos := positionReport(enum.PositionSideLong, "10", "101.00")
	mass.AddPositionReports(pos)

	metrics := obs.NewMetrics()
	res := newReconciler(metrics).AdjustMassStatus(mass, testInstruments())

	assert.Equal(t, NoAdjustment, res.Actions[testInstrumentID])
	assert.Equal(t, mass.OrderReports, res.OrderReports)
	assert.Equal(t, mass.FillReports, res.FillReports)
	assert.Equal(t, uint64(1), metrics.Snapshot().ReconcileCounts[obs.ReconcileNoAdjustment])
	requirePositionCorrect(t, res, pos)
}

func TestAdjustMassStatusSyntheticOpening(t *testing.T) {
	mass := newMassStatus()
	working := orderReport("V9", enum.OrderSideSell, enum.OrderStatusAccepted, "2", "0")
	mass.AddOrderReports(working)
	pos := positionReport(enum.PositionSideLong, "10", "100.00")
	mass.AddPositionReports(pos)

	res := newReconciler(nil).AdjustMassStatus(mass, testInstruments())
	assert.Equal(t, AddSyntheticOpening, res.Actions[testInstrumentID])

	fills := res.Fills(testInstrumentID)
	require.Len(t, fills, 1)
	fill := fills[0]
	assert.Equal(t, enum.OrderSideBuy, fill.Side)
	assert.Equal(t, model.MustParseQuantity("10"), fill.LastQty)
	assert.True(t, fill.LastPx.Decimal().Equal(model.MustParsePrice("100").Decimal()))
	assert.Equal(t, uint8(2), fill.LastPx.Precision)
	assert.Regexp(t, syntheticPattern, fill.VenueOrderID.String())
	assert.Regexp(t, syntheticPattern, fill.TradeID.String())
	assert.True(t, fill.Commission.IsZero())
	assert.Equal(t, model.USDT, fill.Commission.Currency)

	order, ok := res.OrderReports[fill.VenueOrderID]
	require.True(t, ok)
	assert.Equal(t, enum.OrderTypeMarket, order.OrderType)
	assert.Equal(t, enum.OrderStatusFilled, order.Status)
	assert.Equal(t, fill.LastQty, order.FilledQty)

	requirePositionCorrect(t, res, pos)
	requireWorkingOrdersKept(t, mass, res)
}

func TestAdjustMassStatusReplaceCurrentLifecycle(t *testing.T) {
	mass := newMassStatus()
	mass.AddOrderReports(
		orderReport("V1", enum.OrderSideBuy, enum.OrderStatusFilled, "10", "10"),
		orderReport("V2", enum.OrderSideSell, enum.OrderStatusFilled, "10", "10"),
		orderReport("V3", enum.OrderSideBuy, enum.OrderStatusFilled, "3", "3"),
	)
	first := fillReport("V1", 10, enum.OrderSideBuy, "10", "100")
	second := fillReport("V2", 20, enum.OrderSideSell, "10", "110")
	mass.AddFillReports(first, second, fillReport("V3", 30, enum.OrderSideBuy, "3", "120"))
	pos := positionReport(enum.PositionSideLong, "5", "118.00")
	mass.AddPositionReports(pos)

	res := newReconciler(nil).AdjustMassStatus(mass, testInstruments())
	assert.Equal(t, ReplaceCurrentLifecycle, res.Actions[testInstrumentID])

	fills := res.Fills(testInstrumentID)
	require.Len(t, fills, 3)
	assert.Equal(t, first, fills[0])
	assert.Equal(t, second, fills[1])

	synthetic := fills[2]
	assert.Equal(t, model.NewVenueOrderID("V3"), synthetic.VenueOrderID)
	assert.Equal(t, enum.OrderSideBuy, synthetic.Side)
	assert.Equal(t, model.MustParseQuantity("5"), synthetic.LastQty)
	assert.True(t, synthetic.LastPx.Decimal().Equal(model.MustParsePrice("118").Decimal()))
	assert.Regexp(t, `^S-`, synthetic.TradeID.String())

	order := res.OrderReports[model.NewVenueOrderID("V3")]
	assert.Equal(t, enum.OrderStatusFilled, order.Status)
	assert.Equal(t, model.MustParseQuantity("5"), order.Quantity)
	assert.Equal(t, model.MustParseQuantity("5"), order.FilledQty)
	assert.InDelta(t, 118.0, order.AvgPx, 1e-9)

	requirePositionCorrect(t, res, pos)
}

func TestAdjustMassStatusFilterToCurrentLifecycle(t *testing.T) {
	mass := newMassStatus()
	mass.AddOrderReports(
		orderReport("V1", enum.OrderSideBuy, enum.OrderStatusFilled, "10", "10"),
		orderReport("V2", enum.OrderSideSell, enum.OrderStatusFilled, "15", "15"),
		orderReport("V3", enum.OrderSideSell, enum.OrderStatusPartiallyFilled, "8", "5"),
		orderReport("V4", enum.OrderSideBuy, enum.OrderStatusAccepted, "1", "0"),
	)
	mass.AddFillReports(
		fillReport("V1", 10, enum.OrderSideBuy, "10", "100"),
		fillReport("V2", 20, enum.OrderSideSell, "15", "110"),
		fillReport("V3", 30, enum.OrderSideSell, "5", "120"),
	)
	pos := positionReport(enum.PositionSideShort, "5", "120.00")
	mass.AddPositionReports(pos)

	res := newReconciler(nil).AdjustMassStatus(mass, testInstruments())
	assert.Equal(t, FilterToCurrentLifecycle, res.Actions[testInstrumentID])

	fills := res.Fills(testInstrumentID)
	require.Len(t, fills, 1)
	assert.Equal(t, model.NewVenueOrderID("V3"), fills[0].VenueOrderID)

	assert.NotContains(t, res.OrderReports, model.NewVenueOrderID("V1"))
	assert.NotContains(t, res.OrderReports, model.NewVenueOrderID("V2"))
	assert.NotContains(t, res.FillReports, model.NewVenueOrderID("V1"))

	requirePositionCorrect(t, res, pos)
	requireWorkingOrdersKept(t, mass, res)
}

func TestAdjustMassStatusSyntheticClose(t *testing.T) {
	mass := newMassStatus()
	mass.AddOrderReports(orderReport("V1", enum.OrderSideBuy, enum.OrderStatusFilled, "5", "5"))
	mass.AddFillReports(fillReport("V1", 10, enum.OrderSideBuy, "5", "100"))
	pos := positionReport(enum.PositionSideFlat, "0", "")
	mass.AddPositionReports(pos)

	res := newReconciler(nil).AdjustMassStatus(mass, testInstruments())
	assert.Equal(t, AddSyntheticClose, res.Actions[testInstrumentID])

	fills := res.Fills(testInstrumentID)
	require.Len(t, fills, 2)
	assert.Equal(t, enum.OrderSideSell, fills[1].Side)
	requirePositionCorrect(t, res, pos)
}

func TestAdjustMassStatusPassThrough(t *testing.T) {
	testCases := []struct {
		desc        string
		instruments instruments
		fills       []model.FillReport
		pos         model.PositionStatusReport
	}{
		{
			desc:        "unknown instrument",
			instruments: instruments{},
			fills:       []model.FillReport{fillReport("V1", 10, enum.OrderSideBuy, "5", "100")},
			pos:         positionReport(enum.PositionSideLong, "10", "100"),
		},
		{
			desc:        "no price closes the gap",
			instruments: testInstruments(),
			fills:       []model.FillReport{fillReport("V1", 10, enum.OrderSideBuy, "5", "300")},
			pos:         positionReport(enum.PositionSideLong, "10", "100"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			mass := newMassStatus()
			mass.AddOrderReports(orderReport("V1", enum.OrderSideBuy, enum.OrderStatusFilled, "5", "5"))
			mass.AddFillReports(tc.fills...)
			mass.AddPositionReports(tc.pos)

			metrics := obs.NewMetrics()
			res := newReconciler(metrics).AdjustMassStatus(mass, tc.instruments)
			assert.NotContains(t, res.Actions, testInstrumentID)
			assert.Equal(t, mass.OrderReports, res.OrderReports)
			assert.Equal(t, mass.FillReports, res.FillReports)
			assert.Equal(t, uint64(1), metrics.Snapshot().ReconcileCounts[obs.ReconcileFailed])
		})
	}
}

func TestAdjustMassStatusDoesNotMutateInput(t *testing.T) {
	mass := newMassStatus()
	mass.AddOrderReports(orderReport("V1", enum.OrderSideBuy, enum.OrderStatusFilled, "10", "10"))
	mass.AddFillReports(fillReport("V1", 10, enum.OrderSideBuy, "10", "100"))
	mass.AddPositionReports(positionReport(enum.PositionSideShort, "5", "120"))

	before := len(mass.FillReports[model.NewVenueOrderID("V1")])
	res := newReconciler(nil).AdjustMassStatus(mass, testInstruments())
	require.NotEqual(t, NoAdjustment, res.Actions[testInstrumentID])
	assert.Len(t, mass.FillReports[model.NewVenueOrderID("V1")], before)
	assert.Len(t, mass.OrderReports, 1)
}

func TestReconcileOrderReport(t *testing.T) {
	newOrder := func(status enum.OrderStatus) *model.Order {
		price := model.MustParsePrice("100")
		o := model.NewOrder(model.OrderInitialized{
			EventHeader: model.EventHeader{
				TraderID:      model.NewTraderID("TRADER-001"),
				StrategyID:    model.NewStrategyID("S-001"),
				InstrumentID:  testInstrumentID,
				ClientOrderID: model.NewClientOrderID("O-V1"),
				EventID:       model.NewUUID4(),
				TsEvent:       1,
			},
			Side:        enum.OrderSideBuy,
			OrderType:   enum.OrderTypeLimit,
			Quantity:    model.MustParseQuantity("5"),
			Price:       &price,
			TimeInForce: enum.TimeInForceGTC,
		})
		o.Status = status
		return o
	}

	testCases := []struct {
		desc   string
		from   enum.OrderStatus
		to     enum.OrderStatus
		reason string
		want   enum.OrderEventKind
		none   bool
	}{
		{desc: "in sync", from: enum.OrderStatusAccepted, to: enum.OrderStatusAccepted, none: true},
		{desc: "accepted", from: enum.OrderStatusSubmitted, to: enum.OrderStatusAccepted, want: enum.OrderEventAccepted},
		{desc: "rejected", from: enum.OrderStatusSubmitted, to: enum.OrderStatusRejected, reason: "POST_ONLY", want: enum.OrderEventRejected},
		{desc: "triggered", from: enum.OrderStatusAccepted, to: enum.OrderStatusTriggered, want: enum.OrderEventTriggered},
		{desc: "canceled", from: enum.OrderStatusAccepted, to: enum.OrderStatusCanceled, want: enum.OrderEventCanceled},
		{desc: "expired", from: enum.OrderStatusAccepted, to: enum.OrderStatusExpired, want: enum.OrderEventExpired},
		{desc: "filled is left to fill reports", from: enum.OrderStatusAccepted, to: enum.OrderStatusFilled, none: true},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			report := orderReport("V1", enum.OrderSideBuy, tc.to, "5", "0")
			report.CancelReason = tc.reason
			ev, ok := newReconciler(nil).ReconcileOrderReport(newOrder(tc.from), report)
			if tc.none {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, ev.Kind())
			assert.Equal(t, model.NewClientOrderID("O-V1"), ev.Header().ClientOrderID)
			if rej, isRej := ev.(model.OrderRejected); isRej {
				assert.Equal(t, "POST_ONLY", rej.Reason)
			}
		})
	}
}

type store struct {
	instruments
	orders map[model.ClientOrderID]*model.Order
}

func (s store) Order(id model.ClientOrderID) (*model.Order, bool) {
	o, ok := s.orders[id]
	return o, ok
}

func submittedOrder(id string) *model.Order {
	o := model.NewOrder(model.OrderInitialized{
		EventHeader: model.EventHeader{
			TraderID:      model.NewTraderID("TRADER-001"),
			StrategyID:    model.NewStrategyID("S-001"),
			InstrumentID:  testInstrumentID,
			ClientOrderID: model.NewClientOrderID(id),
			EventID:       model.NewUUID4(),
			TsEvent:       1,
		},
		Side:        enum.OrderSideBuy,
		OrderType:   enum.OrderTypeMarket,
		Quantity:    model.MustParseQuantity("5"),
		TimeInForce: enum.TimeInForceIOC,
	})
	o.Status = enum.OrderStatusSubmitted
	return o
}

func TestMassStatusEventsDeduplicatesFills(t *testing.T) {
	o := submittedOrder("O-V1")
	s := store{instruments: testInstruments(), orders: map[model.ClientOrderID]*model.Order{o.ClientOrderID: o}}

	mass := newMassStatus()
	mass.AddOrderReports(orderReport("V1", enum.OrderSideBuy, enum.OrderStatusAccepted, "5", "2"))
	mass.AddFillReports(fillReport("V1", 10, enum.OrderSideBuy, "2", "100"))

	r := newReconciler(nil)
	res := r.AdjustMassStatus(mass, s)
	events := r.MassStatusEvents(res, s)
	require.Len(t, events, 2)
	assert.Equal(t, enum.OrderEventAccepted, events[0].Kind())
	assert.Equal(t, enum.OrderEventFilled, events[1].Kind())
	assert.Equal(t, model.USDT, events[1].(model.OrderFilled).Currency)

	assert.Empty(t, r.MassStatusEvents(res, s)[1:], "fills are converted once per trade id")
}

func TestInferFill(t *testing.T) {
	o := submittedOrder("O-V1")
	o.Status = enum.OrderStatusAccepted
	report := orderReport("V1", enum.OrderSideBuy, enum.OrderStatusFilled, "5", "5")
	report.AvgPx = 101.5
	report.TsLast = 42

	ev, ok := newReconciler(nil).InferFill(o, report, testInstruments()[testInstrumentID])
	require.True(t, ok)
	assert.Equal(t, model.MustParseQuantity("5"), ev.LastQty)
	assert.True(t, ev.LastPx.Decimal().Equal(model.MustParsePrice("101.5").Decimal()))
	assert.Equal(t, model.UnixNanos(42), ev.TsEvent)
	assert.Regexp(t, syntheticPattern, ev.TradeID.String())
}

func TestCheckInflight(t *testing.T) {
	clk := clock.NewStatic(1_000)
	cfg := DefaultConfig()
	cfg.InflightThreshold = time.Second
	cfg.InflightMaxRetries = 2
	r := New(cfg, clk, nil)

	o := submittedOrder("O-1")
	s := store{instruments: testInstruments(), orders: map[model.ClientOrderID]*model.Order{o.ClientOrderID: o}}
	r.RegisterInflight(o.ClientOrderID)

	events, query := r.CheckInflight(s)
	assert.Empty(t, events)
	assert.Empty(t, query, "not past threshold yet")

	require.NoError(t, clk.Set(1_000+model.UnixNanos(2*time.Second)))
	events, query = r.CheckInflight(s)
	assert.Empty(t, events)
	assert.Equal(t, []model.ClientOrderID{o.ClientOrderID}, query)

	events, query = r.CheckInflight(s)
	assert.Empty(t, events)
	assert.Empty(t, query, "queries are spaced by the threshold")

	require.NoError(t, clk.Set(1_000+model.UnixNanos(4*time.Second)))
	events, query = r.CheckInflight(s)
	assert.Empty(t, query)
	require.Len(t, events, 1)
	rej, ok := events[0].(model.OrderRejected)
	require.True(t, ok)
	assert.Equal(t, ReasonInflightTimeout, rej.Reason)
	assert.Equal(t, 0, r.InflightCount())
}

func TestCheckInflightCleared(t *testing.T) {
	clk := clock.NewStatic(1)
	r := New(DefaultConfig(), clk, nil)
	o := submittedOrder("O-1")
	s := store{instruments: testInstruments(), orders: map[model.ClientOrderID]*model.Order{o.ClientOrderID: o}}

	r.RegisterInflight(o.ClientOrderID)
	r.ClearInflight(o.ClientOrderID)
	require.NoError(t, clk.Set(model.UnixNanos(time.Hour)))
	events, query := r.CheckInflight(s)
	assert.Empty(t, events)
	assert.Empty(t, query)
}

// randomMassStatus builds fills with random sides, sizes and prices, a few
// working orders and a venue position that may or may not agree with them.
func randomMassStatus(rng *rand.Rand) (*model.ExecutionMassStatus, model.PositionStatusReport) {
	price := func() string { return fmt.Sprintf("%d.%02d", 80+rng.IntN(40), rng.IntN(100)) }
	mass := newMassStatus()
	for i := range rng.IntN(12) {
		vid := "F" + strconv.Itoa(i)
		side := enum.OrderSideBuy
		if rng.IntN(2) == 0 {
			side = enum.OrderSideSell
		}
		qty := strconv.Itoa(1 + rng.IntN(20))
		mass.AddOrderReports(orderReport(vid, side, enum.OrderStatusFilled, qty, qty))
		mass.AddFillReports(fillReport(vid, model.UnixNanos(10*(i+1)), side, qty, price()))
	}
	for i := range rng.IntN(4) {
		status := enum.OrderStatusAccepted
		if rng.IntN(3) == 0 {
			status = enum.OrderStatusCanceled
		}
		mass.AddOrderReports(orderReport("W"+strconv.Itoa(i), enum.OrderSideBuy, status, strconv.Itoa(1+rng.IntN(5)), "0"))
	}

	var pos model.PositionStatusReport
	switch qty := rng.IntN(41) - 20; {
	case qty > 0:
		pos = positionReport(enum.PositionSideLong, strconv.Itoa(qty), price())
	case qty < 0:
		pos = positionReport(enum.PositionSideShort, strconv.Itoa(-qty), price())
	default:
		pos = positionReport(enum.PositionSideFlat, "0", "")
	}
	mass.AddPositionReports(pos)
	return mass, pos
}

func TestAdjustMassStatusRandomReports(t *testing.T) {
	testCases := []struct {
		desc   string
		seed   uint64
		rounds int
	}{
		{desc: "seed 7", seed: 7, rounds: 300},
		{desc: "seed 99", seed: 99, rounds: 300},
		{desc: "seed 31337", seed: 31337, rounds: 300},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rng := rand.New(rand.NewPCG(tc.seed, tc.seed^0x9e3779b97f4a7c15))
			var adjusted int
			for range tc.rounds {
				mass, pos := randomMassStatus(rng)
				res := newReconciler(nil).AdjustMassStatus(mass, testInstruments())

				if _, ok := res.Actions[testInstrumentID]; ok {
					requirePositionCorrect(t, res, pos)
					adjusted++
				} else {
					assert.Equal(t, mass.OrderReports, res.OrderReports)
					assert.Equal(t, mass.FillReports, res.FillReports)
				}

				for vid, rep := range mass.OrderReports {
					if rep.Status.IsTerminal() {
						continue
					}
					require.Contains(t, res.OrderReports, vid, "working order %s dropped", vid)
				}
			}
			assert.Positive(t, adjusted)
		})
	}
}
