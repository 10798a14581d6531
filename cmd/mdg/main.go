package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/clock"
	"tradecore/internal/codec"
	"tradecore/internal/mdg"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/recorder"
	"tradecore/pkg/exception"
)

func main() {
	walDir := flag.String("wal-dir", "testdata/wal", "WAL directory for market data")
	configPath := flag.String("config", "config.json", "Config with the instrument registry")
	ticks := flag.Int("ticks", 10, "Number of ticks to generate")
	step := flag.Duration("step", time.Millisecond, "Simulated time between ticks")
	seed := flag.Uint64("seed", 1, "Random walk seed")
	basePrice := flag.Int64("base-price", 10000, "Base mid in units of the last price decimal")
	baseSize := flag.Int64("base-size", 100, "Size in units of the last size decimal")
	spread := flag.Int64("spread", 2, "Bid/ask spread in units of the last price decimal")
	kind := flag.String("kind", "quote", "Market data kind: quote|trade")
	flag.Parse()

	if err := run(*walDir, *configPath, *ticks, *step, mdg.Config{
		Seed:      *seed,
		BasePrice: *basePrice,
		BaseSize:  *baseSize,
		Spread:    *spread,
		MaxStep:   max(*spread, 1),
	}, *kind); err != nil {
		logs.Errorf("mdg: %+v", err)
		os.Exit(1)
	}
}

// run writes a synthetic WAL on a static clock starting now, so the output
// replays like a recorded session.
func run(walDir, configPath string, ticks int, step time.Duration, cfg mdg.Config, kind string) error {
	if ticks <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "ticks must be > 0")
	}
	switch kind {
	case "quote":
		cfg.Kind = enum.DataKindQuote
	case "trade":
		cfg.Kind = enum.DataKindTrade
	default:
		return errors.Wrap(exception.ErrInvalidArgument, "unsupported kind").With("kind", kind)
	}

	registry, err := ops.LoadRegistry(configPath)
	if err != nil {
		return err
	}
	generator, err := mdg.NewGenerator(registry, cfg)
	if err != nil {
		return err
	}
	normalizer := mdg.NewNormalizer(registry)

	writer, err := recorder.NewWriter(recorder.DefaultConfig(walDir))
	if err != nil {
		return err
	}
	if err := writer.Start(context.Background()); err != nil {
		return err
	}
	rec := recorder.NewRecorder(writer, codec.New(registry), obs.NewTraceGenerator(cfg.Seed))
	metrics := obs.NewMetrics()

	clk := clock.NewStatic(clock.FromTime(time.Now()))
	for range ticks {
		now, err := clk.Advance(step)
		if err != nil {
			return err
		}
		d, err := normalizer.Normalize(generator.Next(now))
		if err != nil {
			return err
		}
		d = model.WithInitTime(d, now)
		if err := rec.RecordData(d); err != nil {
			metrics.IncQueueDrop()
			logs.Warnf("mdg: record %s, err: %+v", d.Instrument(), err)
			continue
		}
		metrics.ObserveData(d.Kind(), uint64(d.EventTime()), uint64(d.InitTime()))
	}

	if err := writer.Close(); err != nil {
		return err
	}
	stats := writer.Stats()
	logs.Infof("mdg: wrote %d records (%d bytes, %d segments) to %s, dropped %d, %+v",
		stats.Appended, stats.Bytes, stats.Segments, walDir, stats.Dropped, metrics.Snapshot())
	return nil
}
