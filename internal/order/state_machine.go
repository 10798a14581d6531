package order

import (
	"slices"
	"strings"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

// StateMachine owns the orders of one engine and applies lifecycle events to them.
// It is not safe for concurrent use.
type StateMachine struct {
	orders map[model.ClientOrderID]*model.Order
	venue  map[model.VenueOrderID]model.ClientOrderID
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		orders: make(map[model.ClientOrderID]*model.Order),
		venue:  make(map[model.VenueOrderID]model.ClientOrderID),
	}
}

// Order returns the current order state.
func (m *StateMachine) Order(id model.ClientOrderID) (*model.Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// ByVenueID resolves an order from its venue order id.
func (m *StateMachine) ByVenueID(id model.VenueOrderID) (*model.Order, bool) {
	cid, ok := m.venue[id]
	if !ok {
		return nil, false
	}
	return m.Order(cid)
}

// Add creates a new order in Initialized status.
func (m *StateMachine) Add(init model.OrderInitialized) (*model.Order, error) {
	if init.ClientOrderID.IsEmpty() {
		return nil, errors.Wrap(exception.ErrInvalidOrderEvent, "empty client order id")
	}
	if _, ok := m.orders[init.ClientOrderID]; ok {
		return nil, errors.Wrap(exception.ErrAlreadyExists, "order").With("client_order_id", init.ClientOrderID.String())
	}
	o := model.NewOrder(init)
	m.orders[o.ClientOrderID] = o
	return o, nil
}

// Restore inserts an order rebuilt elsewhere, e.g. loaded from the cache.
func (m *StateMachine) Restore(o *model.Order) {
	m.orders[o.ClientOrderID] = o
	if !o.VenueOrderID.IsEmpty() {
		m.venue[o.VenueOrderID] = o.ClientOrderID
	}
}

// Apply routes ev to its order.
func (m *StateMachine) Apply(ev model.OrderEvent) (*model.Order, error) {
	h := ev.Header()
	o, ok := m.orders[h.ClientOrderID]
	if !ok {
		return nil, errors.Wrap(exception.ErrOrderNotFound, "apply").With("client_order_id", h.ClientOrderID.String())
	}
	if err := Apply(o, ev); err != nil {
		return o, err
	}
	if !o.VenueOrderID.IsEmpty() {
		m.venue[o.VenueOrderID] = o.ClientOrderID
	}
	return o, nil
}

// Open returns the orders working at a venue, sorted by client order id.
func (m *StateMachine) Open() []*model.Order {
	return m.filter(func(o *model.Order) bool { return o.IsOpen() })
}

// Inflight returns orders waiting on a venue response.
func (m *StateMachine) Inflight() []*model.Order {
	return m.filter(func(o *model.Order) bool { return o.IsInflight() })
}

func (m *StateMachine) Len() int {
	return len(m.orders)
}

func (m *StateMachine) filter(keep func(*model.Order) bool) []*model.Order {
	out := make([]*model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b *model.Order) int {
		return strings.Compare(a.ClientOrderID.String(), b.ClientOrderID.String())
	})
	return out
}
