package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"

	"tradecore/internal/adapter"
	"tradecore/internal/bus"
	"tradecore/internal/cache"
	"tradecore/internal/clock"
	"tradecore/internal/codec"
	"tradecore/internal/core"
	"tradecore/internal/mdg"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/recorder"
	"tradecore/internal/schema"
	"tradecore/internal/state"
	"tradecore/internal/switchboard"
	"tradecore/pkg/exception"
)

const (
	modePaper  = "paper"
	modeRecord = "record"
	modeReplay = "replay"
)

type options struct {
	configPath string
	envPath    string
	mode       string

	ticks      int
	interval   time.Duration
	seed       uint64
	basePrice  int64
	spread     int64
	trades     bool
	orderEvery int

	replayDir     string
	replaySpeed   float64
	snapshotPath  string
	expectedPath  string
	recoverWAL    bool
	watchInterval time.Duration
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config.json", "config file")
	flag.StringVar(&opts.envPath, "env", ".env", "dotenv file, ignored when missing")
	flag.StringVar(&opts.mode, "mode", modePaper, "paper | record | replay")
	flag.IntVar(&opts.ticks, "ticks", 0, "synthetic ticks to generate, 0 runs until shutdown")
	flag.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "synthetic tick interval")
	flag.Uint64Var(&opts.seed, "seed", 1, "synthetic market seed")
	flag.Int64Var(&opts.basePrice, "base-price", 10000, "synthetic mid in units of the last price decimal")
	flag.Int64Var(&opts.spread, "spread", 2, "synthetic spread in units of the last price decimal")
	flag.BoolVar(&opts.trades, "trades", false, "generate trades instead of quotes")
	flag.IntVar(&opts.orderEvery, "order-every", 100, "submit a paper market order every n ticks, 0 disables")
	flag.StringVar(&opts.replayDir, "replay-dir", "", "wal dir to replay, defaults to the recorder dir")
	flag.Float64Var(&opts.replaySpeed, "replay-speed", 0, "replay pacing multiplier, 0 replays as fast as possible")
	flag.StringVar(&opts.snapshotPath, "snapshot", "", "write the position snapshot here on exit")
	flag.StringVar(&opts.expectedPath, "expect", "", "replay: compare the final positions with this snapshot")
	flag.BoolVar(&opts.recoverWAL, "recover", false, "recover positions from the snapshot and the wal before start")
	flag.DurationVar(&opts.watchInterval, "watch-interval", 2*time.Second, "config poll interval when fsnotify is unavailable")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		logs.Errorf("node: %+v", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	switch opts.mode {
	case modePaper, modeRecord, modeReplay:
	default:
		return errors.Wrap(exception.ErrInvalidArgument, "mode").With("mode", opts.mode)
	}

	if err := ops.LoadDotEnv(opts.envPath); err != nil {
		return errors.Wrap(err, "load dotenv").With("path", opts.envPath)
	}
	loaded, err := ops.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.mode == modeRecord {
		if loaded.Recorder.Dir == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "record mode needs recorder.dir")
		}
		loaded.Features.EnableRecording = true
	}
	if opts.mode == modeReplay {
		// Replayed fills come from the WAL; a second recorder would duplicate them.
		loaded.Features.EnableRecording = false
		loaded.Features.EnableTrading = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Infof("node: shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	stopProfiler, err := startProfiler(loaded.Profiling, loaded.TraderID.String())
	if err != nil {
		return err
	}
	defer stopProfiler()

	metrics := obs.NewMetrics()
	clk := clock.NewRealtime()
	if opts.mode == modeReplay {
		clk = clock.NewStatic(0)
	}

	backend, err := openCacheBackend(ctx, loaded.Cache)
	if err != nil {
		return err
	}
	db, err := cache.NewDatabase(loaded.Cache.Config, loaded.TraderID, loaded.InstanceID, backend)
	if err != nil {
		_ = backend.Close()
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logs.Errorf("node: close cache database, err: %+v", err)
		}
	}()

	engineOpts := []core.Option{
		core.WithClock(clk),
		core.WithMetrics(metrics),
		core.WithCache(cache.New(db)),
	}

	streamer, err := openBacking(loaded, metrics)
	if err != nil {
		return err
	}
	if streamer != nil {
		engineOpts = append(engineOpts, core.WithBacking(streamer))
	}

	walCodec := codec.New(loaded.Registry)
	var writer *recorder.Writer
	if loaded.Features.EnableRecording {
		writer, err = recorder.NewWriter(loaded.Recorder)
		if err != nil {
			return err
		}
		// The engine drains after shutdown; Close stops the writer once it is done.
		if err := writer.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logs.Errorf("node: close wal writer, err: %+v", err)
			}
			logs.Infof("node: wal %+v", writer.Stats())
		}()
		trace := obs.NewTraceGenerator(uint64(clock.Now()))
		engineOpts = append(engineOpts, core.WithRecorder(recorder.NewRecorder(writer, walCodec, trace)))
	}

	cfg := core.DefaultConfig(loaded.TraderID)
	cfg.AccountID = loaded.AccountID
	cfg.Reconcile = loaded.Reconcile
	cfg.Risk = loaded.Risk
	cfg.InflightInterval = loaded.InflightInterval
	if !loaded.Features.EnableInflightCheck || opts.mode == modeReplay {
		cfg.InflightInterval = 0
	}
	if loaded.Bus.QueueSize > 0 {
		cfg.QueueSize = loaded.Bus.QueueSize
	}

	engine, err := core.New(cfg, engineOpts...)
	if err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return errors.Wrap(err, "load cache")
	}
	for _, inst := range loaded.Registry.Instruments() {
		if err := engine.Bus().Send(switchboard.EndpointDataEngine, inst); err != nil {
			return errors.Wrap(err, "add instrument").With("instrument", inst.ID.String())
		}
	}
	if opts.recoverWAL && opts.mode != modeReplay {
		if err := recoverPositions(ctx, engine, loaded, walCodec, opts.snapshotPath); err != nil {
			return err
		}
	}

	logs.Infof("node: %s starting in %s mode, instruments %d, cache %s, backing %s",
		loaded.TraderID, opts.mode, loaded.Registry.SymbolCount(), loaded.Cache.Backend, loaded.Bus.Backing)

	eg, egCtx := errgroup.WithContext(ctx)
	feedCtx, stopFeed := context.WithCancel(egCtx)
	defer stopFeed()

	eg.Go(func() error {
		// The engine outlives its feeds; it stops once the queue is drained.
		return engine.Run(context.WithoutCancel(egCtx))
	})
	eg.Go(func() error {
		<-egCtx.Done()
		engine.Queue().Close()
		return nil
	})
	eg.Go(func() error {
		return db.Run(egCtx)
	})
	if streamer != nil {
		eg.Go(func() error {
			return streamer.Run(egCtx)
		})
	}
	if loaded.Metrics.Addr != "" {
		eg.Go(func() error {
			return serveMetrics(egCtx, loaded.Metrics.Addr, metrics)
		})
	}
	eg.Go(func() error {
		ops.Watch(egCtx, opts.configPath, opts.watchInterval, ops.RiskUpdater(engine.Queue()))
		return nil
	})

	eg.Go(func() error {
		var err error
		switch opts.mode {
		case modeReplay:
			err = replay(feedCtx, engine, loaded, walCodec, clk, opts)
		default:
			err = paper(feedCtx, engine, loaded, clk, opts)
		}
		if err != nil {
			return err
		}
		// A bounded run ends the node once its feed is exhausted.
		if opts.mode == modeReplay || opts.ticks > 0 {
			cancel()
		}
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logs.Infof("node: %s stopped, %+v", loaded.TraderID, metrics.Snapshot())
	if err := finish(engine, opts); err != nil {
		return err
	}
	return nil
}

// recoverPositions restores positions from the snapshot plus the fills
// recorded after it.
func recoverPositions(ctx context.Context, engine *core.Engine, loaded ops.Loaded, c *codec.Codec, snapshotPath string) error {
	res, err := state.RecoverPositions(ctx, state.RecoverConfig{
		WALDir:       loaded.Recorder.Dir,
		SnapshotPath: snapshotPath,
		FilePrefix:   loaded.Recorder.FilePrefix,
	}, c)
	if err != nil {
		return errors.Wrap(err, "recover positions")
	}
	engine.RestorePositions(res.Positions.Positions())
	logs.Infof("node: recovered %d positions, applied %d fills after seq %d",
		res.Positions.Count(), res.Applied, res.LastSeq)
	return nil
}

// paper drives the engine with synthetic market data and, when trading is
// enabled, a market order every opts.orderEvery ticks.
func paper(ctx context.Context, engine *core.Engine, loaded ops.Loaded, clk *clock.AtomicTime, opts options) error {
	kind := enum.DataKindQuote
	if opts.trades {
		kind = enum.DataKindTrade
	}
	gen, err := mdg.NewGenerator(loaded.Registry, mdg.Config{
		Kind:      kind,
		Seed:      opts.seed,
		BasePrice: opts.basePrice,
		BaseSize:  100,
		Spread:    opts.spread,
		MaxStep:   max(opts.spread, 1),
	})
	if err != nil {
		return err
	}

	var pub mdg.Publisher = adapter.NewInbound(engine.Queue(), clk)
	if loaded.Features.EnableTrading && opts.orderEvery > 0 {
		pub = &trader{
			Publisher: pub,
			queue:     engine.Queue(),
			registry:  loaded.Registry,
			strategy:  model.NewStrategyID("PAPER-001"),
			every:     opts.orderEvery,
		}
	}

	n, err := mdg.Run(ctx, gen, mdg.NewNormalizer(loaded.Registry), pub, clk, mdg.RunOptions{
		Ticks:    opts.ticks,
		Interval: opts.interval,
	})
	logs.Infof("node: paper feed published %d ticks", n)
	return err
}

// trader submits alternating market orders alongside the data it forwards.
type trader struct {
	mdg.Publisher
	queue    *bus.Queue
	registry *schema.Registry
	strategy model.StrategyID
	every    int

	ticks int
	seq   int
}

func (t *trader) PublishData(ctx context.Context, d model.Data) error {
	if err := t.Publisher.PublishData(ctx, d); err != nil {
		return err
	}
	t.ticks++
	if t.ticks%t.every != 0 {
		return nil
	}

	inst, ok := t.registry.Instrument(d.Instrument())
	if !ok {
		return nil
	}
	qty, err := model.QuantityFromDecimal(decimal.NewFromInt(1), inst.SizePrecision)
	if err != nil {
		return err
	}

	t.seq++
	side := enum.OrderSideBuy
	if t.seq%2 == 0 {
		side = enum.OrderSideSell
	}
	init := model.OrderInitialized{
		EventHeader: model.EventHeader{
			StrategyID:    t.strategy,
			InstrumentID:  d.Instrument(),
			ClientOrderID: model.NewClientOrderID("PAPER-" + strconv.Itoa(t.seq)),
		},
		Side:        side,
		OrderType:   enum.OrderTypeMarket,
		Quantity:    qty,
		TimeInForce: enum.TimeInForceIOC,
	}
	return t.queue.Publish(ctx, bus.Envelope{
		Endpoint: switchboard.EndpointExecEngine,
		Msg:      core.SubmitOrder{Order: init},
	})
}

// replay feeds the recorded WAL through the engine on a static clock.
func replay(ctx context.Context, engine *core.Engine, loaded ops.Loaded, c *codec.Codec, clk *clock.AtomicTime, opts options) error {
	dir := opts.replayDir
	if dir == "" {
		dir = loaded.Recorder.Dir
	}
	playback, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:        dir,
		FilePrefix: loaded.Recorder.FilePrefix,
		Speed:      opts.replaySpeed,
	})
	if err != nil {
		return err
	}
	stats, err := recorder.NewReplayer(playback, c, engine.Queue(), clk).Run(ctx)
	if err != nil {
		return errors.Wrap(err, "replay").With("dir", dir)
	}
	logs.Infof("node: replayed %d data, %d fills from %s, out of order %d, undecoded %d",
		stats.Data, stats.Fills, filepath.Clean(dir), stats.OutOfOrder, stats.Undecoded)
	return nil
}

// finish writes and checks the position snapshot after the engine stopped.
func finish(engine *core.Engine, opts options) error {
	if opts.snapshotPath != "" {
		if err := engine.SnapshotPositions(opts.snapshotPath); err != nil {
			return errors.Wrap(err, "write snapshot").With("path", opts.snapshotPath)
		}
		logs.Infof("node: positions written to %s", opts.snapshotPath)
	}
	if opts.expectedPath == "" {
		return nil
	}
	expected, err := state.ReadSnapshot(opts.expectedPath)
	if err != nil {
		return errors.Wrap(err, "read expected snapshot").With("path", opts.expectedPath)
	}
	actual := engine.Positions().Snapshot(expected.LastSeq, expected.LastTsInit)
	if err := state.CompareSnapshots(expected, actual); err != nil {
		return err
	}
	logs.Infof("node: positions match %s", opts.expectedPath)
	return nil
}
