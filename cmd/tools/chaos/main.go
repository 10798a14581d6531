package main

import (
	"context"
	"flag"
	"os"

	"github.com/yanun0323/logs"

	"tradecore/internal/chaos"
	"tradecore/internal/recorder"
	"tradecore/internal/schema"
)

func main() {
	inputDir := flag.String("input-dir", "testdata/wal", "Input WAL directory")
	inputPrefix := flag.String("input-prefix", "", "Input WAL file prefix (default: wal)")
	outputDir := flag.String("output-dir", "testdata/wal_chaos", "Output WAL directory")
	outputPrefix := flag.String("output-prefix", "chaos", "Output WAL file prefix")
	seed := flag.Uint64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "Max ts_init delay")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	flag.Parse()

	err := run(recorder.PlaybackConfig{
		Dir:             *inputDir,
		FilePrefix:      *inputPrefix,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}, *outputDir, *outputPrefix, chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	})
	if err != nil {
		logs.Errorf("chaos: %+v", err)
		os.Exit(1)
	}
}

func run(input recorder.PlaybackConfig, outputDir, outputPrefix string, cfg chaos.Config) error {
	pb, err := recorder.NewPlayback(input)
	if err != nil {
		return err
	}
	engine, err := chaos.NewEngine(cfg)
	if err != nil {
		return err
	}

	outCfg := recorder.DefaultConfig(outputDir)
	outCfg.FilePrefix = outputPrefix
	writer, err := recorder.NewWriter(outCfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := writer.Start(ctx); err != nil {
		return err
	}

	// Output sequences continue after anything already in the output dir.
	seq := writer.LastSeq()
	emit := func(recs []chaos.Record) error {
		for _, rec := range recs {
			seq++
			rec.Header.Seq = seq
			if err := writer.Append(ctx, rec.Header, rec.Payload); err != nil {
				return err
			}
		}
		return nil
	}

	err = pb.Run(ctx, func(h schema.Header, payload []byte) error {
		// The reader reuses its payload buffer between records.
		return emit(engine.Process(chaos.Record{Header: h, Payload: append([]byte(nil), payload...)}))
	})
	if err == nil {
		err = emit(engine.Flush())
	}
	if closeErr := writer.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	stats := engine.Stats()
	logs.Infof("chaos: in %d, out %d, dropped %d, duplicated %d, delayed %d, wal %+v",
		stats.In, stats.Out, stats.Dropped, stats.Duplicated, stats.Delayed, writer.Stats())
	return nil
}
