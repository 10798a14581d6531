package cache

import (
	"context"
	"slices"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

// Cache holds the engine's working set. It is owned by the engine goroutine and
// is not safe for concurrent use. When a Database is attached every mutation is
// written through to it.
type Cache struct {
	db *Database

	instruments map[model.InstrumentID]*model.Instrument
	orders      map[model.ClientOrderID]*model.Order
	positions   map[model.PositionID]*model.Position
	venueIndex  map[model.VenueOrderID]model.ClientOrderID
}

func New(db *Database) *Cache {
	return &Cache{
		db:          db,
		instruments: make(map[model.InstrumentID]*model.Instrument),
		orders:      make(map[model.ClientOrderID]*model.Order),
		positions:   make(map[model.PositionID]*model.Position),
		venueIndex:  make(map[model.VenueOrderID]model.ClientOrderID),
	}
}

// Load replaces the working set with the database contents.
func (c *Cache) Load(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	instruments, err := c.db.LoadInstruments(ctx)
	if err != nil {
		return errors.Wrap(err, "load instruments")
	}
	orders, err := c.db.LoadOrders(ctx)
	if err != nil {
		return errors.Wrap(err, "load orders")
	}
	positions, err := c.db.LoadPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "load positions")
	}

	c.instruments, c.orders, c.positions = instruments, orders, positions
	clear(c.venueIndex)
	for id, o := range c.orders {
		if !o.VenueOrderID.IsEmpty() {
			c.venueIndex[o.VenueOrderID] = id
		}
	}
	logs.Infof("cache: loaded %d instruments, %d orders, %d positions from %s",
		len(instruments), len(orders), len(positions), c.db.Keyspace())
	return nil
}

func (c *Cache) AddInstrument(ctx context.Context, inst *model.Instrument) error {
	c.instruments[inst.ID] = inst
	if c.db != nil {
		return c.db.AddInstrument(ctx, inst)
	}
	return nil
}

func (c *Cache) Instrument(id model.InstrumentID) (*model.Instrument, bool) {
	inst, ok := c.instruments[id]
	return inst, ok
}

func (c *Cache) Instruments() []*model.Instrument {
	out := make([]*model.Instrument, 0, len(c.instruments))
	for _, inst := range c.instruments {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b *model.Instrument) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func (c *Cache) AddOrder(ctx context.Context, o *model.Order) error {
	if _, ok := c.orders[o.ClientOrderID]; ok {
		return errors.Wrap(exception.ErrAlreadyExists, "add order").With("client_order_id", o.ClientOrderID)
	}
	c.orders[o.ClientOrderID] = o
	c.indexVenue(o)
	if c.db != nil {
		return c.db.AddOrder(ctx, o)
	}
	return nil
}

// UpdateOrder persists the current state of an order already in the cache.
func (c *Cache) UpdateOrder(ctx context.Context, o *model.Order) error {
	if _, ok := c.orders[o.ClientOrderID]; !ok {
		return errors.Wrap(exception.ErrOrderNotFound, "update order").With("client_order_id", o.ClientOrderID)
	}
	c.orders[o.ClientOrderID] = o
	c.indexVenue(o)
	if c.db != nil {
		return c.db.UpdateOrder(ctx, o)
	}
	return nil
}

func (c *Cache) Order(id model.ClientOrderID) (*model.Order, bool) {
	o, ok := c.orders[id]
	return o, ok
}

func (c *Cache) OrderByVenueID(id model.VenueOrderID) (*model.Order, bool) {
	cid, ok := c.venueIndex[id]
	if !ok {
		return nil, false
	}
	return c.Order(cid)
}

// Orders returns orders sorted by client order id, optionally narrowed to one instrument.
func (c *Cache) Orders(instrumentID *model.InstrumentID, filter func(*model.Order) bool) []*model.Order {
	out := make([]*model.Order, 0)
	for _, o := range c.orders {
		if instrumentID != nil && o.InstrumentID != *instrumentID {
			continue
		}
		if filter != nil && !filter(o) {
			continue
		}
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b *model.Order) int {
		return strings.Compare(a.ClientOrderID.String(), b.ClientOrderID.String())
	})
	return out
}

func (c *Cache) OrdersOpen(instrumentID *model.InstrumentID) []*model.Order {
	return c.Orders(instrumentID, (*model.Order).IsOpen)
}

func (c *Cache) OrdersInflight(instrumentID *model.InstrumentID) []*model.Order {
	return c.Orders(instrumentID, (*model.Order).IsInflight)
}

func (c *Cache) AddPosition(ctx context.Context, p *model.Position) error {
	if _, ok := c.positions[p.ID]; ok {
		return errors.Wrap(exception.ErrAlreadyExists, "add position").With("position_id", p.ID)
	}
	c.positions[p.ID] = p
	if c.db != nil {
		return c.db.AddPosition(ctx, p)
	}
	return nil
}

func (c *Cache) UpdatePosition(ctx context.Context, p *model.Position) error {
	c.positions[p.ID] = p
	if c.db != nil {
		return c.db.UpdatePosition(ctx, p)
	}
	return nil
}

func (c *Cache) Position(id model.PositionID) (*model.Position, bool) {
	p, ok := c.positions[id]
	return p, ok
}

// PositionsOpen returns open positions sorted by id.
func (c *Cache) PositionsOpen(instrumentID *model.InstrumentID) []*model.Position {
	out := make([]*model.Position, 0)
	for _, p := range c.positions {
		if !p.IsOpen() {
			continue
		}
		if instrumentID != nil && p.InstrumentID != *instrumentID {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *model.Position) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func (c *Cache) indexVenue(o *model.Order) {
	if !o.VenueOrderID.IsEmpty() {
		c.venueIndex[o.VenueOrderID] = o.ClientOrderID
	}
}
