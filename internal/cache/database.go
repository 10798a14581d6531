package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

// Database persists orders, positions, instruments and general blobs under one
// keyspace. With a non-zero buffer interval writes are queued and drained by Run.
type Database struct {
	cfg      Config
	keyspace string
	backend  Backend
	ser      Serializer

	mu      sync.Mutex
	pending []Entry
	closed  bool
}

func NewDatabase(cfg Config, traderID model.TraderID, instanceID model.UUID4, backend Backend) (*Database, error) {
	if backend == nil {
		return nil, exception.ErrNilInstance
	}
	ser, err := NewSerializer(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return &Database{
		cfg:      cfg,
		keyspace: cfg.Keyspace(traderID, instanceID),
		backend:  backend,
		ser:      ser,
	}, nil
}

func (d *Database) Keyspace() string {
	return d.keyspace
}

func (d *Database) Add(ctx context.Context, key string, value []byte) error {
	return d.enqueue(ctx, Entry{Key: Key(d.keyspace, CollectionGeneral, key), Value: value})
}

func (d *Database) AddInstrument(ctx context.Context, inst *model.Instrument) error {
	return d.put(ctx, CollectionInstruments, inst.ID.String(), inst)
}

func (d *Database) AddOrder(ctx context.Context, o *model.Order) error {
	return d.put(ctx, CollectionOrders, o.ClientOrderID.String(), o)
}

func (d *Database) UpdateOrder(ctx context.Context, o *model.Order) error {
	return d.AddOrder(ctx, o)
}

func (d *Database) DeleteOrder(ctx context.Context, id model.ClientOrderID) error {
	return d.enqueue(ctx, Entry{Key: Key(d.keyspace, CollectionOrders, id.String()), Delete: true})
}

func (d *Database) AddPosition(ctx context.Context, p *model.Position) error {
	return d.put(ctx, CollectionPositions, p.ID.String(), p)
}

func (d *Database) UpdatePosition(ctx context.Context, p *model.Position) error {
	return d.AddPosition(ctx, p)
}

func (d *Database) LoadGeneral(ctx context.Context) (map[string][]byte, error) {
	if err := d.Flush(ctx); err != nil {
		return nil, err
	}
	prefix := CollectionPrefix(d.keyspace, CollectionGeneral)
	out := make(map[string][]byte)
	err := d.backend.Scan(ctx, prefix, func(key string, value []byte) error {
		out[strings.TrimPrefix(key, prefix)] = value
		return nil
	})
	return out, err
}

func (d *Database) LoadInstruments(ctx context.Context) (map[model.InstrumentID]*model.Instrument, error) {
	out := make(map[model.InstrumentID]*model.Instrument)
	err := d.load(ctx, CollectionInstruments, func(data []byte) error {
		var inst model.Instrument
		if err := d.ser.Unmarshal(data, &inst); err != nil {
			return err
		}
		out[inst.ID] = &inst
		return nil
	})
	return out, err
}

func (d *Database) LoadOrders(ctx context.Context) (map[model.ClientOrderID]*model.Order, error) {
	out := make(map[model.ClientOrderID]*model.Order)
	err := d.load(ctx, CollectionOrders, func(data []byte) error {
		var o model.Order
		if err := d.ser.Unmarshal(data, &o); err != nil {
			return err
		}
		out[o.ClientOrderID] = &o
		return nil
	})
	return out, err
}

func (d *Database) LoadPositions(ctx context.Context) (map[model.PositionID]*model.Position, error) {
	out := make(map[model.PositionID]*model.Position)
	err := d.load(ctx, CollectionPositions, func(data []byte) error {
		var p model.Position
		if err := d.ser.Unmarshal(data, &p); err != nil {
			return err
		}
		out[p.ID] = &p
		return nil
	})
	return out, err
}

// Pending is the number of writes waiting for the next drain.
func (d *Database) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush drains queued writes to the backend.
func (d *Database) Flush(ctx context.Context) error {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := d.backend.Write(ctx, batch); err != nil {
		d.mu.Lock()
		d.pending = append(batch, d.pending...)
		d.mu.Unlock()
		return err
	}
	return nil
}

// Run drains the write buffer every buffer interval until ctx is done, then
// flushes what is left. It returns immediately when buffering is disabled.
func (d *Database) Run(ctx context.Context) error {
	interval := d.cfg.BufferInterval()
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.Flush(context.WithoutCancel(ctx))
		case <-ticker.C:
			if err := d.Flush(ctx); err != nil {
				logs.Errorf("cache: flush %d entries to %s, err: %+v", d.Pending(), d.keyspace, err)
			}
		}
	}
}

// Close flushes outstanding writes and closes the backend.
func (d *Database) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	flushErr := d.Flush(context.Background())
	if err := d.backend.Close(); err != nil {
		return err
	}
	return flushErr
}

func (d *Database) put(ctx context.Context, collection, id string, v any) error {
	data, err := d.ser.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode cache value").With("collection", collection).With("id", id)
	}
	return d.enqueue(ctx, Entry{Key: Key(d.keyspace, collection, id), Value: data})
}

func (d *Database) enqueue(ctx context.Context, e Entry) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return exception.ErrCacheClosed
	}
	if d.cfg.BufferIntervalMs > 0 {
		d.pending = append(d.pending, e)
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	return d.backend.Write(ctx, []Entry{e})
}

func (d *Database) load(ctx context.Context, collection string, decode func([]byte) error) error {
	if err := d.Flush(ctx); err != nil {
		return err
	}
	return d.backend.Scan(ctx, CollectionPrefix(d.keyspace, collection), func(key string, value []byte) error {
		if err := decode(value); err != nil {
			return errors.Wrap(err, "decode cache value").With("key", key)
		}
		return nil
	})
}
