// Package backing streams published bus messages to an external broker.
package backing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/cache"
	"tradecore/internal/clock"
	"tradecore/internal/obs"
)

// Record is one encoded bus message.
type Record struct {
	Stream  string
	Topic   string
	Payload []byte
	TsInit  clock.UnixNanos
}

// Sink writes records to a broker.
type Sink interface {
	Write(ctx context.Context, records []Record) error
	Close() error
}

// Config selects which topics are streamed and how they are keyed.
type Config struct {
	// StreamKey is the stream name, usually `<trader_key>:stream`.
	StreamKey string
	// StreamPerTopic appends the topic to the stream name.
	StreamPerTopic bool
	// TopicPrefixes, when not empty, restricts streaming to matching topics.
	TopicPrefixes []string
	// BufferInterval batches writes. Zero writes every message immediately.
	BufferInterval time.Duration
	// WriteTimeout bounds each immediate write.
	WriteTimeout time.Duration
}

// StreamKey builds `<trader_key>:stream`.
func StreamKey(keyspace string) string {
	return keyspace + ":stream"
}

// Streamer implements bus.Backing on top of a Sink.
type Streamer struct {
	cfg     Config
	sink    Sink
	ser     cache.Serializer
	metrics *obs.Metrics

	mu      sync.Mutex
	pending []Record
	closed  bool
}

func NewStreamer(cfg Config, sink Sink, ser cache.Serializer, metrics *obs.Metrics) *Streamer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	return &Streamer{cfg: cfg, sink: sink, ser: ser, metrics: metrics}
}

// Publish encodes msg and queues or writes it. Failures are logged; the bus never
// sees them.
func (s *Streamer) Publish(topic string, msg any) {
	if !s.accepts(topic) {
		return
	}
	payload, err := s.ser.Marshal(msg)
	if err != nil {
		s.metrics.IncSendFailure()
		logs.Warnf("backing: encode message on %s, err: %+v", topic, err)
		return
	}
	rec := Record{Stream: s.stream(topic), Topic: topic, Payload: payload, TsInit: clock.Now()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cfg.BufferInterval > 0 {
		s.pending = append(s.pending, rec)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.sink.Write(ctx, []Record{rec}); err != nil {
		s.metrics.IncSendFailure()
		logs.Errorf("backing: write %s, err: %+v", rec.Stream, err)
	}
}

// Pending is the number of buffered records.
func (s *Streamer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every buffered record.
func (s *Streamer) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.sink.Write(ctx, batch); err != nil {
		s.metrics.IncSendFailure()
		return errors.Wrap(err, "flush backing").With("records", len(batch))
	}
	return nil
}

// Run drains the buffer every BufferInterval until ctx is done.
func (s *Streamer) Run(ctx context.Context) error {
	if s.cfg.BufferInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.cfg.BufferInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Flush(context.WithoutCancel(ctx))
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				logs.Errorf("backing: %+v", err)
			}
		}
	}
}

// Close flushes what is buffered and closes the sink.
func (s *Streamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	flushErr := s.Flush(ctx)
	if err := s.sink.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *Streamer) accepts(topic string) bool {
	if len(s.cfg.TopicPrefixes) == 0 {
		return true
	}
	for _, p := range s.cfg.TopicPrefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

func (s *Streamer) stream(topic string) string {
	if s.cfg.StreamPerTopic {
		return s.cfg.StreamKey + ":" + topic
	}
	return s.cfg.StreamKey
}
