package bitmex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/adapter"
	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/order"
	"tradecore/internal/reconcile"
	"tradecore/internal/switchboard"
	"tradecore/pkg/exception"
)

var (
	xbtusd  = model.NewInstrumentID(model.NewSymbol("XBTUSD"), Venue)
	client  = model.NewClientID("BITMEX")
	account = model.NewAccountID("BITMEX-001")
)

type store struct {
	orders map[model.ClientOrderID]*model.Order
}

func (s store) Instrument(id model.InstrumentID) (*model.Instrument, bool) {
	if id != xbtusd {
		return nil, false
	}
	return &model.Instrument{ID: xbtusd, QuoteCurrency: model.USD, PricePrecision: 1, SizePrecision: 0}, true
}

func (s store) Order(id model.ClientOrderID) (*model.Order, bool) {
	o, ok := s.orders[id]
	return o, ok
}

func drain(q *bus.Queue) []bus.Envelope {
	var out []bus.Envelope
	for q.Len() > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		q.Run(ctx, func(e bus.Envelope) {
			out = append(out, e)
			if q.Len() == 0 {
				cancel()
			}
		})
		cancel()
	}
	return out
}

const orderTable = `{"table":"order","action":"partial","data":[
	{"orderID":"V-1","clOrdID":"O-1","symbol":"XBTUSD","side":"Buy","ordType":"Limit","timeInForce":"GoodTillCancel","ordStatus":"New","orderQty":100,"cumQty":0,"price":65000.5,"timestamp":"2024-05-01T00:00:01.000Z","transactTime":"2024-05-01T00:00:00.000Z"},
	{"orderID":"V-2","clOrdID":"O-2","symbol":"XBTUSD","side":"Sell","ordType":"Limit","timeInForce":"GoodTillCrossing","ordStatus":"New","orderQty":50,"cumQty":0,"price":66000,"timestamp":"2024-05-01T00:00:02.000Z"},
	{"orderID":"V-3","clOrdID":"O-3","symbol":"XBTUSD","side":"Buy","ordType":"Stop","timeInForce":"Forever","ordStatus":"Filled","orderQty":10,"cumQty":10,"stopPx":64000,"avgPx":64000.5,"timestamp":"2024-05-01T00:00:03.000Z"},
	{"orderID":"V-4","clOrdID":"O-4","symbol":"ETHUSD","side":"Buy","ordType":"Limit","timeInForce":"GoodTillCancel","ordStatus":"New","orderQty":1,"cumQty":0,"price":3000}
]}`

func TestHandleOrders(t *testing.T) {
	q := bus.NewQueue(16)
	in := adapter.NewInbound(q, clock.NewStatic(1_000))
	x := NewExecution(client, account, store{}, clock.NewStatic(2_000))

	require.NoError(t, x.HandleOrders(t.Context(), in, []byte(orderTable)))

	envs := drain(q)
	require.Len(t, envs, 4)

	topic := switchboard.New().AdapterStatusTopic(client)
	var reasons []string
	for _, env := range envs[:3] {
		assert.Equal(t, topic, env.Topic)
		reasons = append(reasons, env.Msg.(adapter.ErrorReport).Reason)
	}
	assert.Contains(t, reasons[0], "unsupported time in force GoodTillCrossing")
	assert.Contains(t, reasons[1], "unknown time in force Forever")
	assert.Contains(t, reasons[2], "ETHUSD")

	assert.Equal(t, switchboard.EndpointReconcile, envs[3].Endpoint)
	mass := envs[3].Msg.(*model.ExecutionMassStatus)
	require.Len(t, mass.OrderReports, 3)

	ok := mass.OrderReports[model.NewVenueOrderID("V-1")]
	assert.Equal(t, enum.OrderStatusAccepted, ok.Status)
	assert.Equal(t, enum.TimeInForceGTC, ok.TimeInForce)
	assert.Equal(t, "100", ok.Quantity.String())
	assert.Equal(t, "65000.5", ok.Price.String())
	assert.Equal(t, model.UnixNanos(2_000), ok.TsInit)
	assert.Positive(t, ok.TsAccepted)

	crossing := mass.OrderReports[model.NewVenueOrderID("V-2")]
	assert.Equal(t, enum.OrderStatusRejected, crossing.Status)
	assert.Contains(t, crossing.CancelReason, "GoodTillCrossing")

	done := mass.OrderReports[model.NewVenueOrderID("V-3")]
	assert.Equal(t, enum.OrderStatusFilled, done.Status, "terminal rows keep their status")
	assert.Equal(t, enum.OrderTypeStopMarket, done.OrderType)
	assert.Equal(t, "64000.0", done.TriggerPrice.String())
	assert.InDelta(t, 64000.5, done.AvgPx, 1e-9)
}

func TestHandleOrdersErrors(t *testing.T) {
	testCases := []struct {
		desc string
		raw  string
	}{
		{desc: "not json", raw: `{`},
		{desc: "other table", raw: `{"table":"execution","data":[]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			q := bus.NewQueue(4)
			x := NewExecution(client, account, store{}, clock.NewStatic(1))
			err := x.HandleOrders(t.Context(), adapter.NewInbound(q, clock.NewStatic(1)), []byte(tc.raw))
			require.ErrorIs(t, err, exception.ErrFeedMessage)
			assert.Zero(t, q.Len())
		})
	}
}

func TestOrderReportValidation(t *testing.T) {
	base := OrderRow{OrderID: "V-1", Symbol: "XBTUSD", Side: "Buy", OrdType: "Limit", TimeInForce: "Day", OrdStatus: "New"}
	testCases := []struct {
		desc   string
		mutate func(r *OrderRow)
		field  string
	}{
		{desc: "side", mutate: func(r *OrderRow) { r.Side = "Hold" }, field: "side"},
		{desc: "order type", mutate: func(r *OrderRow) { r.OrdType = "Pegged" }, field: "ordType"},
		{desc: "status", mutate: func(r *OrderRow) { r.OrdStatus = "Stopped" }, field: "ordStatus"},
	}
	x := NewExecution(client, account, store{}, clock.NewStatic(1))
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			row := base
			tc.mutate(&row)
			report, err := x.OrderReport(row, 1)
			e, ok := adapter.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tc.field, e.Field)
			assert.True(t, report.VenueOrderID.IsEmpty())
		})
	}
}

// A venue order carrying a crossing time in force is rejected on the engine
// side once the report is reconciled.
func TestUnsupportedTimeInForceRejectsCachedOrder(t *testing.T) {
	clk := clock.NewStatic(1_000)
	price := model.MustParsePrice("66000.0")
	header := model.EventHeader{
		TraderID:      model.NewTraderID("TRADER-001"),
		StrategyID:    model.NewStrategyID("S-001"),
		InstrumentID:  xbtusd,
		ClientOrderID: model.NewClientOrderID("O-2"),
		EventID:       model.NewUUID4(),
		TsEvent:       1,
		TsInit:        1,
	}
	o := model.NewOrder(model.OrderInitialized{
		EventHeader: header,
		Side:        enum.OrderSideSell,
		OrderType:   enum.OrderTypeLimit,
		Quantity:    model.MustParseQuantity("50"),
		Price:       &price,
		TimeInForce: enum.TimeInForceGTC,
	})
	header.EventID = model.NewUUID4()
	require.NoError(t, order.Apply(o, model.OrderSubmitted{EventHeader: header, AccountID: account}))
	header.EventID = model.NewUUID4()
	require.NoError(t, order.Apply(o, model.OrderAccepted{EventHeader: header, VenueOrderID: model.NewVenueOrderID("V-2"), AccountID: account}))

	q := bus.NewQueue(16)
	x := NewExecution(client, account, store{}, clk)
	require.NoError(t, x.HandleOrders(t.Context(), adapter.NewInbound(q, clk), []byte(orderTable)))
	envs := drain(q)
	mass := envs[len(envs)-1].Msg.(*model.ExecutionMassStatus)

	s := store{orders: map[model.ClientOrderID]*model.Order{o.ClientOrderID: o}}
	r := reconcile.New(reconcile.DefaultConfig(), clk, nil)
	events := r.MassStatusEvents(r.AdjustMassStatus(mass, s), s)
	require.Len(t, events, 1)

	rejected, ok := events[0].(model.OrderRejected)
	require.True(t, ok)
	assert.Contains(t, rejected.Reason, "GoodTillCrossing")
	require.NoError(t, order.Apply(o, rejected))
	assert.Equal(t, enum.OrderStatusRejected, o.Status)
}
