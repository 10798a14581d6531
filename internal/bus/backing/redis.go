package backing

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"

	"tradecore/internal/clock"
)

// StreamAdder is the subset of *redis.Client used for XADD.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisSink appends records to redis streams. With AutotrimMins set, entries
// older than that many minutes are trimmed on each append.
type RedisSink struct {
	client       StreamAdder
	autotrimMins int
	now          func() clock.UnixNanos
}

func NewRedisSink(client StreamAdder, autotrimMins int) *RedisSink {
	return &RedisSink{client: client, autotrimMins: autotrimMins, now: clock.Now}
}

func (r *RedisSink) Write(ctx context.Context, records []Record) error {
	for _, rec := range records {
		args := &redis.XAddArgs{
			Stream: rec.Stream,
			Values: map[string]any{
				"topic":   rec.Topic,
				"payload": rec.Payload,
				"ts_init": strconv.FormatUint(uint64(rec.TsInit), 10),
			},
		}
		if r.autotrimMins > 0 {
			cutoff := r.now().Millis() - uint64((time.Duration(r.autotrimMins) * time.Minute).Milliseconds())
			args.MinID = strconv.FormatUint(cutoff, 10)
			args.Approx = true
		}
		if err := r.client.XAdd(ctx, args).Err(); err != nil {
			return errors.Wrap(err, "xadd").With("stream", rec.Stream)
		}
	}
	return nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
