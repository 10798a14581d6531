package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/codec"
	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/persistence"
	"tradecore/internal/recorder"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: wal)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useEvent := flag.Bool("use-event-time", false, "Use ts_event for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	configPath := flag.String("config", "", "Config with the instrument registry, needed by -decode and -arrow")
	decode := flag.Bool("decode", false, "Decode record payloads")
	arrowDir := flag.String("arrow", "", "Export decoded data to an Arrow catalog rooted here")
	highPrecision := flag.Bool("high-precision", false, "Store raw values as 128-bit in the Arrow export")
	flag.Parse()

	if err := run(inspectOptions{
		playback: recorder.PlaybackConfig{
			Dir:             *dir,
			FilePrefix:      *prefix,
			Speed:           *speed,
			UseEventTime:    *useEvent,
			DisableChecksum: *noChecksum,
			MaxPayloadSize:  *maxPayload,
		},
		configPath:    *configPath,
		decode:        *decode,
		arrowDir:      *arrowDir,
		highPrecision: *highPrecision,
	}); err != nil {
		logs.Errorf("replay: %+v", err)
		os.Exit(1)
	}
}

type inspectOptions struct {
	playback      recorder.PlaybackConfig
	configPath    string
	decode        bool
	arrowDir      string
	highPrecision bool
}

func run(opts inspectOptions) error {
	pb, err := recorder.NewPlayback(opts.playback)
	if err != nil {
		return err
	}

	var c *codec.Codec
	if opts.decode || opts.arrowDir != "" {
		if opts.configPath == "" {
			return errors.Wrap(exception.ErrInvalidArgument, "-decode and -arrow need -config")
		}
		registry, err := ops.LoadRegistry(opts.configPath)
		if err != nil {
			return err
		}
		c = codec.New(registry)
	}

	var (
		index    int
		counts   = make(map[schema.RecordType]int)
		exported []model.Data
	)
	err = pb.Run(context.Background(), func(h schema.Header, payload []byte) error {
		index++
		counts[h.Type]++
		fmt.Printf("%06d seq=%d type=%s ts_event=%d ts_init=%d trace=%s len=%d\n",
			index, h.Seq, h.Type, h.TsEvent, h.TsInit, obs.FormatTrace(h.TraceID), len(payload))
		if c == nil {
			return nil
		}

		if h.Type == schema.RecordFill {
			fill, err := c.DecodeFill(h, payload)
			if err != nil {
				fmt.Printf("  decode fill failed: %v\n", err)
				return nil
			}
			if opts.decode {
				fmt.Printf("  fill %s %s %s %s@%s trade=%s commission=%s\n",
					fill.InstrumentID, fill.ClientOrderID, fill.Side, fill.LastQty, fill.LastPx, fill.TradeID, fill.Commission)
			}
			return nil
		}

		d, err := c.DecodeData(h, payload)
		if err != nil {
			fmt.Printf("  decode %s failed: %v\n", h.Type, err)
			return nil
		}
		if opts.decode {
			fmt.Printf("  %s %+v\n", d.Kind(), d)
		}
		if opts.arrowDir != "" {
			exported = append(exported, d)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "playback").With("dir", opts.playback.Dir)
	}

	for t, n := range counts {
		logs.Infof("replay: %s records %d", t, n)
	}
	logs.Infof("replay: %d records", index)

	if opts.arrowDir == "" || len(exported) == 0 {
		return nil
	}
	mode := persistence.Mode64
	if opts.highPrecision {
		mode = persistence.ModeHighPrecision
	}
	paths, err := persistence.NewCatalog(opts.arrowDir, mode, nil).Write(exported)
	if err != nil {
		return err
	}
	for _, p := range paths {
		logs.Infof("replay: wrote %s", p)
	}
	return nil
}
