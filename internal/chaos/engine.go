package chaos

import (
	"math/rand/v2"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Record is one WAL record going through the chaos engine.
type Record struct {
	Header  schema.Header
	Payload []byte
}

// Config controls fault injection. Rates are probabilities in [0, 1].
type Config struct {
	Seed          uint64
	DropRate      float64
	DuplicateRate float64
	// ReorderWindow is how many records are buffered and released in random
	// order. 1 keeps the input order.
	ReorderWindow int
	// MaxDelay bounds the random delay added to ts_init.
	MaxDelay time.Duration
}

// Stats counts what the engine did.
type Stats struct {
	In         int
	Out        int
	Dropped    int
	Duplicated int
	Delayed    int
}

// Engine drops, duplicates, delays and reorders records. It is deterministic
// for a given seed and input.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []Record
	stats   Stats
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
	}, nil
}

func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "drop rate must be between 0 and 1").With("rate", c.DropRate)
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "duplicate rate must be between 0 and 1").With("rate", c.DuplicateRate)
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "reorder window must be >= 1").With("window", c.ReorderWindow)
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "max delay must be >= 0").With("delay", c.MaxDelay)
	}
	return nil
}

// Stats returns the counters so far.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Process applies chaos to one record and returns the records to emit now.
func (e *Engine) Process(rec Record) []Record {
	e.stats.In++
	if e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate {
		e.stats.Dropped++
		return nil
	}
	rec = e.delay(rec)
	if e.cfg.ReorderWindow <= 1 {
		return e.duplicate(rec)
	}
	e.pending = append(e.pending, rec)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.duplicate(e.take())
}

// Flush releases every buffered record.
func (e *Engine) Flush() []Record {
	out := make([]Record, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.duplicate(e.take())...)
	}
	return out
}

func (e *Engine) take() Record {
	idx := e.rng.IntN(len(e.pending))
	rec := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return rec
}

func (e *Engine) duplicate(rec Record) []Record {
	out := []Record{rec}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		e.stats.Duplicated++
		out = append(out, rec)
	}
	e.stats.Out += len(out)
	return out
}

func (e *Engine) delay(rec Record) Record {
	if e.cfg.MaxDelay <= 0 {
		return rec
	}
	d := e.rng.Int64N(e.cfg.MaxDelay.Nanoseconds() + 1)
	if d == 0 {
		return rec
	}
	e.stats.Delayed++
	base := rec.Header.TsInit
	if base == 0 {
		base = rec.Header.TsEvent
	}
	rec.Header.TsInit = base + model.UnixNanos(d)
	return rec
}
