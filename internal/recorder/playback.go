package recorder

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Speed paces records by the gaps between their timestamps divided by
	// Speed. Zero replays as fast as the handler allows.
	Speed           float64
	UseEventTime    bool
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c PlaybackConfig) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrInvalidConfig, "playback: dir is empty")
	case c.Speed < 0:
		return errors.Wrap(exception.ErrInvalidConfig, "playback: speed is negative").With("speed", c.Speed)
	case c.MaxPayloadSize < 0:
		return errors.Wrap(exception.ErrInvalidConfig, "playback: max payload size is negative")
	}
	return nil
}

// Sleeper waits between paced records. Tests swap in one that records the
// requested durations.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handler receives each replayed record. The payload is only valid during the
// call.
type Handler func(schema.Header, []byte) error

// Playback reads every segment of a WAL directory in id order. A torn record
// at the end of the newest segment ends playback with a warning; anywhere else
// it is an error.
type Playback struct {
	cfg     PlaybackConfig
	sleeper Sleeper
}

func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaults.FilePrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, sleeper: timerSleeper{}}, nil
}

func (p *Playback) WithSleeper(s Sleeper) *Playback {
	if s != nil {
		p.sleeper = s
	}
	return p
}

// Files lists the segment paths in replay order.
func (p *Playback) Files() ([]string, error) {
	if _, err := os.Stat(p.cfg.Dir); err != nil {
		return nil, errors.Wrap(err, "stat wal dir").With("dir", p.cfg.Dir)
	}
	segs, err := listSegments(p.cfg.Dir, p.cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(segs))
	for i, seg := range segs {
		paths[i] = seg.path
	}
	return paths, nil
}

func (p *Playback) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.Wrap(exception.ErrNilInstance, "playback handler")
	}
	files, err := p.Files()
	if err != nil {
		return err
	}
	pacer := pacer{speed: p.cfg.Speed, useEvent: p.cfg.UseEventTime, sleeper: p.sleeper}
	for i, path := range files {
		if err := p.play(ctx, path, i == len(files)-1, &pacer, handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) play(ctx context.Context, path string, newest bool, pacer *pacer, handler Handler) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open segment").With("path", path)
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for ctx.Err() == nil {
		header, payload, err := reader.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case newest && errors.Is(err, exception.ErrWALTruncated):
			logs.Warnf("recorder: %s ends in a torn record at offset %d, stopping there", path, reader.Offset())
			return nil
		case err != nil:
			return errors.Wrap(err, "read segment").With("path", path)
		}

		if err := pacer.wait(ctx, header); err != nil {
			return err
		}
		if err := handler(header, payload); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// pacer spaces records by the gaps between their timestamps.
type pacer struct {
	speed    float64
	useEvent bool
	sleeper  Sleeper
	last     model.UnixNanos
}

func (p *pacer) wait(ctx context.Context, h schema.Header) error {
	if p.speed <= 0 {
		return nil
	}
	ts := h.TsInit
	if p.useEvent {
		ts = h.TsEvent
	}
	if ts == 0 {
		return nil
	}
	last := p.last
	p.last = ts
	if last == 0 || ts <= last {
		return nil
	}
	return p.sleeper.Sleep(ctx, time.Duration(float64(ts-last)/p.speed))
}
