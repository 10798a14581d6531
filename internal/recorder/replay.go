package recorder

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/codec"
	"tradecore/internal/model"
	"tradecore/internal/schema"
	"tradecore/internal/switchboard"
)

// ReplayStats summarises one replay run.
type ReplayStats struct {
	Data       int
	Fills      int
	OutOfOrder int
	Undecoded  int
}

// Replayer feeds WAL records into the engine inbound queue on the topics they
// were originally published on. Records whose ts_init goes backwards are
// dropped so consumers see a non-decreasing sequence.
type Replayer struct {
	playback *Playback
	codec    *codec.Codec
	queue    *bus.Queue
	clock    *clock.AtomicTime
	topics   *switchboard.Switchboard
}

// NewReplayer builds a replayer. When clk is in static mode it is moved to each
// record's ts_init before the record is queued.
func NewReplayer(playback *Playback, c *codec.Codec, queue *bus.Queue, clk *clock.AtomicTime) *Replayer {
	return &Replayer{
		playback: playback,
		codec:    c,
		queue:    queue,
		clock:    clk,
		topics:   switchboard.New(),
	}
}

func (r *Replayer) Run(ctx context.Context) (ReplayStats, error) {
	var (
		stats ReplayStats
		last  model.UnixNanos
	)
	err := r.playback.Run(ctx, func(h schema.Header, payload []byte) error {
		if h.TsInit < last {
			stats.OutOfOrder++
			logs.Warnf("recorder: seq %d ts_init %d before %d, dropped", h.Seq, h.TsInit, last)
			return nil
		}

		topic, msg, err := r.decode(h, payload)
		if err != nil {
			stats.Undecoded++
			logs.Warnf("recorder: seq %d %s undecodable, err: %+v", h.Seq, h.Type, err)
			return nil
		}
		last = h.TsInit

		if r.clock != nil && r.clock.Mode() == clock.ModeStatic {
			if err := r.clock.Set(h.TsInit); err != nil {
				return errors.Wrap(err, "advance replay clock")
			}
		}
		if err := r.queue.Publish(ctx, bus.Envelope{Topic: topic, Msg: msg}); err != nil {
			return errors.Wrap(err, "queue replayed record").With("seq", h.Seq)
		}
		if h.Type == schema.RecordFill {
			stats.Fills++
		} else {
			stats.Data++
		}
		return nil
	})
	return stats, err
}

func (r *Replayer) decode(h schema.Header, payload []byte) (string, any, error) {
	if h.Type == schema.RecordFill {
		fill, err := r.codec.DecodeFill(h, payload)
		if err != nil {
			return "", nil, err
		}
		return r.topics.OrderFillsTopic(fill.InstrumentID), fill, nil
	}
	d, err := r.codec.DecodeData(h, payload)
	if err != nil {
		return "", nil, err
	}
	topic, _ := r.topics.DataTopic(d)
	return topic, d, nil
}
