package bitmex

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/adapter"
	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

var Venue = model.NewVenue("BITMEX")

// OrderRow is one row of the order table, as returned by GET /order and
// pushed on the "order" websocket table.
type OrderRow struct {
	OrderID      string              `json:"orderID"`
	ClOrdID      string              `json:"clOrdID"`
	Symbol       string              `json:"symbol"`
	Side         string              `json:"side"`
	OrdType      string              `json:"ordType"`
	TimeInForce  string              `json:"timeInForce"`
	OrdStatus    string              `json:"ordStatus"`
	OrderQty     decimal.Decimal     `json:"orderQty"`
	CumQty       decimal.Decimal     `json:"cumQty"`
	Price        decimal.NullDecimal `json:"price"`
	StopPx       decimal.NullDecimal `json:"stopPx"`
	AvgPx        decimal.NullDecimal `json:"avgPx"`
	Text         string              `json:"text"`
	TransactTime time.Time           `json:"transactTime"`
	Timestamp    time.Time           `json:"timestamp"`
}

type OrderTable struct {
	Table  string     `json:"table"`
	Action string     `json:"action"`
	Data   []OrderRow `json:"data"`
}

var sides = map[string]enum.OrderSide{
	"Buy":  enum.OrderSideBuy,
	"Sell": enum.OrderSideSell,
}

var orderTypes = map[string]enum.OrderType{
	"Market":          enum.OrderTypeMarket,
	"Limit":           enum.OrderTypeLimit,
	"Stop":            enum.OrderTypeStopMarket,
	"StopLimit":       enum.OrderTypeStopLimit,
	"MarketIfTouched": enum.OrderTypeMarketIfTouched,
	"LimitIfTouched":  enum.OrderTypeLimitIfTouched,
}

var orderStatuses = map[string]enum.OrderStatus{
	"PendingNew":      enum.OrderStatusSubmitted,
	"New":             enum.OrderStatusAccepted,
	"PartiallyFilled": enum.OrderStatusPartiallyFilled,
	"Filled":          enum.OrderStatusFilled,
	"PendingCancel":   enum.OrderStatusPendingCancel,
	"Canceled":        enum.OrderStatusCanceled,
	"Rejected":        enum.OrderStatusRejected,
	"Expired":         enum.OrderStatusExpired,
	"Triggered":       enum.OrderStatusTriggered,
}

// Execution turns BitMEX order rows into status reports for reconciliation.
type Execution struct {
	client      model.ClientID
	account     model.AccountID
	instruments adapter.InstrumentProvider
	clock       *clock.AtomicTime
}

func NewExecution(client model.ClientID, account model.AccountID, instruments adapter.InstrumentProvider, clk *clock.AtomicTime) *Execution {
	if clk == nil {
		clk = clock.Global()
	}
	return &Execution{client: client, account: account, instruments: instruments, clock: clk}
}

// OrderReport converts row. A row whose time in force has no canonical value
// comes back rejected, together with the conversion error. Any other error
// leaves the report empty.
func (x *Execution) OrderReport(row OrderRow, tsInit model.UnixNanos) (model.OrderStatusReport, error) {
	id := model.NewInstrumentID(model.NewSymbol(row.Symbol), Venue)
	inst, ok := x.instruments.Instrument(id)
	if !ok {
		return model.OrderStatusReport{}, &adapter.Error{Kind: adapter.KindInvalidSymbol, Symbol: row.Symbol, Message: "order " + row.OrderID}
	}
	side, ok := sides[row.Side]
	if !ok {
		return model.OrderStatusReport{}, adapter.Validation("side", row.Side)
	}
	typ, ok := orderTypes[row.OrdType]
	if !ok {
		return model.OrderStatusReport{}, adapter.Validation("ordType", row.OrdType)
	}
	status, ok := orderStatuses[row.OrdStatus]
	if !ok {
		return model.OrderStatusReport{}, adapter.Validation("ordStatus", row.OrdStatus)
	}
	qty, err := inst.MakeQty(row.OrderQty)
	if err != nil {
		return model.OrderStatusReport{}, adapter.NewError(adapter.KindValidation, "orderQty", err)
	}
	filled, err := inst.MakeQty(row.CumQty)
	if err != nil {
		return model.OrderStatusReport{}, adapter.NewError(adapter.KindValidation, "cumQty", err)
	}

	report := model.OrderStatusReport{
		AccountID:     x.account,
		InstrumentID:  id,
		ClientOrderID: model.NewClientOrderID(row.ClOrdID),
		VenueOrderID:  model.NewVenueOrderID(row.OrderID),
		Side:          side,
		OrderType:     typ,
		Status:        status,
		Quantity:      qty,
		FilledQty:     filled,
		ReportID:      model.NewUUID4(),
		TsAccepted:    unixNanos(row.TransactTime),
		TsLast:        unixNanos(row.Timestamp),
		TsInit:        tsInit,
	}
	if row.Price.Valid {
		px, err := inst.MakePrice(row.Price.Decimal)
		if err != nil {
			return model.OrderStatusReport{}, adapter.NewError(adapter.KindValidation, "price", err)
		}
		report.Price = &px
	}
	if row.StopPx.Valid {
		px, err := inst.MakePrice(row.StopPx.Decimal)
		if err != nil {
			return model.OrderStatusReport{}, adapter.NewError(adapter.KindValidation, "stopPx", err)
		}
		report.TriggerPrice = &px
	}
	if row.AvgPx.Valid {
		report.AvgPx = row.AvgPx.Decimal.InexactFloat64()
	}
	if status == enum.OrderStatusRejected || status == enum.OrderStatusCanceled {
		report.CancelReason = row.Text
	}

	tif, err := ParseTimeInForce(row.TimeInForce)
	if err != nil {
		if !status.IsTerminal() {
			report.Status = enum.OrderStatusRejected
		}
		report.CancelReason = err.Error()
		return report, err
	}
	report.TimeInForce = tif
	return report, nil
}

// HandleOrders decodes an order table message and sends its rows to the
// reconciliation endpoint as one mass status. Rows that cannot be converted
// are reported on the adapter topic; rows with an unsupported time in force
// are still sent, as rejected.
func (x *Execution) HandleOrders(ctx context.Context, in *adapter.Inbound, raw []byte) error {
	var table OrderTable
	if err := sonic.Unmarshal(raw, &table); err != nil {
		return errors.Wrap(exception.ErrFeedMessage, "unmarshal order table").With("error", err.Error())
	}
	if table.Table != "order" {
		return errors.Wrap(exception.ErrFeedMessage, "unexpected table").With("table", table.Table)
	}

	now := x.clock.Now()
	mass := model.NewExecutionMassStatus(x.client, x.account, Venue, now)
	for _, row := range table.Data {
		report, err := x.OrderReport(row, now)
		if err != nil {
			logs.Warnf("bitmex %s: order %s, err: %+v", x.client, row.OrderID, err)
			if perr := in.PublishError(x.client, err); perr != nil {
				logs.Warnf("bitmex %s: %+v", x.client, perr)
			}
			if report.VenueOrderID.IsEmpty() {
				continue
			}
		}
		mass.AddOrderReports(report)
	}
	if len(mass.OrderReports) == 0 {
		return nil
	}
	return in.SendMassStatus(ctx, mass)
}

func unixNanos(t time.Time) model.UnixNanos {
	if t.IsZero() {
		return 0
	}
	return model.UnixNanos(t.UnixNano())
}
