package mdg

import (
	"math/rand/v2"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Config shapes the synthetic market. Prices and sizes are in units of the
// instrument's last decimal, e.g. 10050 is 100.50 at price precision 2.
type Config struct {
	Kind      enum.DataKind
	Seed      uint64
	BasePrice int64
	BaseSize  int64
	// Spread is the distance between bid and ask.
	Spread int64
	// MaxStep bounds how far the mid moves between two ticks of one instrument.
	MaxStep int64
}

// Generator creates synthetic quote or trade ticks. Each instrument of the
// registry follows its own bounded random walk and ticks are emitted
// round-robin across instruments.
type Generator struct {
	cfg         Config
	instruments []model.InstrumentID
	mids        []int64
	rng         *rand.Rand
	index       int
}

// NewGenerator creates a generator for all instruments in the registry.
func NewGenerator(reg *schema.Registry, cfg Config) (*Generator, error) {
	if reg == nil || reg.SymbolCount() == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "registry has no instruments")
	}
	if cfg.Kind != enum.DataKindQuote && cfg.Kind != enum.DataKindTrade {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "generator kind").With("kind", cfg.Kind.String())
	}
	if cfg.BasePrice <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "base price must be positive")
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 1
	}
	cfg.Spread = max(cfg.Spread, 0)
	cfg.MaxStep = max(cfg.MaxStep, 0)

	instruments := reg.Instruments()
	g := &Generator{
		cfg:         cfg,
		instruments: make([]model.InstrumentID, 0, len(instruments)),
		mids:        make([]int64, 0, len(instruments)),
		rng:         rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	for _, inst := range instruments {
		g.instruments = append(g.instruments, inst.ID)
		g.mids = append(g.mids, cfg.BasePrice)
	}
	return g, nil
}

// Next creates the next raw tick in sequence.
func (g *Generator) Next(now model.UnixNanos) RawTick {
	i := g.index
	g.index = (g.index + 1) % len(g.instruments)

	if g.cfg.MaxStep > 0 {
		step := g.rng.Int64N(2*g.cfg.MaxStep+1) - g.cfg.MaxStep
		g.mids[i] = max(g.mids[i]+step, g.cfg.Spread+1)
	}
	mid := g.mids[i]

	tick := RawTick{
		Instrument: g.instruments[i].String(),
		Kind:       g.cfg.Kind,
		TsEvent:    now,
	}
	switch g.cfg.Kind {
	case enum.DataKindQuote:
		tick.BidPrice = mid - g.cfg.Spread/2
		tick.AskPrice = tick.BidPrice + g.cfg.Spread
		tick.BidSize = g.cfg.BaseSize
		tick.AskSize = g.cfg.BaseSize
	case enum.DataKindTrade:
		tick.Price = mid
		tick.Size = g.cfg.BaseSize
		tick.Aggressor = enum.AggressorSideBuyer
		if g.rng.IntN(2) == 1 {
			tick.Aggressor = enum.AggressorSideSeller
		}
	}
	return tick
}
