package backing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/cache"
	"tradecore/internal/clock"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
)

type memorySink struct {
	batches [][]Record
	err     error
	closed  bool
}

func (m *memorySink) Write(_ context.Context, records []Record) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func (m *memorySink) records() []Record {
	var out []Record
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func jsonSerializer(t *testing.T) cache.Serializer {
	t.Helper()
	ser, err := cache.NewSerializer(enum.SerializationEncodingJSON)
	require.NoError(t, err)
	return ser
}

func TestStreamerImmediate(t *testing.T) {
	sink := &memorySink{}
	s := NewStreamer(Config{StreamKey: StreamKey("trader-T1")}, sink, jsonSerializer(t), nil)

	b := bus.New(model.NewTraderID("T1"), "MessageBus", bus.WithBacking(s))
	b.Publish("data.quotes.SIM.A", map[string]int{"bid": 1})
	b.Publish("events.order.S-1", "x")

	recs := sink.records()
	require.Len(t, recs, 2)
	assert.Equal(t, "trader-T1:stream", recs[0].Stream)
	assert.Equal(t, "data.quotes.SIM.A", recs[0].Topic)
	assert.JSONEq(t, `{"bid":1}`, string(recs[0].Payload))
	assert.Len(t, sink.batches, 2)

	require.NoError(t, b.Dispose())
	assert.True(t, sink.closed)
}

func TestStreamerFiltersAndPerTopic(t *testing.T) {
	sink := &memorySink{}
	s := NewStreamer(Config{
		StreamKey:      "k:stream",
		StreamPerTopic: true,
		TopicPrefixes:  []string{"events."},
	}, sink, jsonSerializer(t), nil)

	s.Publish("data.quotes.SIM.A", 1)
	s.Publish("events.fills.A.SIM", 2)

	recs := sink.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "k:stream:events.fills.A.SIM", recs[0].Stream)
}

func TestStreamerBuffered(t *testing.T) {
	sink := &memorySink{}
	s := NewStreamer(Config{StreamKey: "k", BufferInterval: 5 * time.Millisecond}, sink, jsonSerializer(t), nil)

	s.Publish("a", 1)
	s.Publish("b", 2)
	assert.Equal(t, 2, s.Pending())
	assert.Empty(t, sink.batches)

	require.NoError(t, s.Flush(t.Context()))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 2)

	s.Publish("c", 3)
	require.NoError(t, s.Close())
	assert.Len(t, sink.records(), 3)
	assert.True(t, sink.closed)

	s.Publish("d", 4)
	assert.Equal(t, 0, s.Pending())
}

func TestStreamerCountsFailures(t *testing.T) {
	m := obs.NewMetrics()
	sink := &memorySink{err: errors.New("down")}
	s := NewStreamer(Config{StreamKey: "k"}, sink, jsonSerializer(t), m)

	s.Publish("a", 1)
	s.Publish("b", make(chan int))
	assert.Equal(t, uint64(2), m.Snapshot().SendFailures)
}

func TestStreamerRunFlushesOnCancel(t *testing.T) {
	sink := &memorySink{}
	s := NewStreamer(Config{StreamKey: "k", BufferInterval: time.Hour}, sink, jsonSerializer(t), nil)
	s.Publish("a", 1)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Len(t, sink.records(), 1)
}

type fakeStreams struct {
	args []*redis.XAddArgs
}

func (f *fakeStreams) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeStreams) Close() error { return nil }

func TestRedisSink(t *testing.T) {
	streams := &fakeStreams{}
	sink := NewRedisSink(streams, 10)
	sink.now = func() clock.UnixNanos { return clock.UnixNanos(20 * time.Minute) }

	require.NoError(t, sink.Write(t.Context(), []Record{{Stream: "k:stream", Topic: "a", Payload: []byte("p"), TsInit: 7}}))
	require.Len(t, streams.args, 1)

	a := streams.args[0]
	assert.Equal(t, "k:stream", a.Stream)
	assert.Equal(t, "600000", a.MinID)
	assert.True(t, a.Approx)
	assert.Equal(t, map[string]any{"topic": "a", "payload": []byte("p"), "ts_init": "7"}, a.Values)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)

	require.NoError(t, sink.Write(t.Context(), []Record{
		{Stream: "trader-T1:stream", Topic: "data.quotes.SIM.A", Payload: []byte("1"), TsInit: 5},
	}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "trader-T1_stream", w.msgs[0].Topic)
	assert.Equal(t, []byte("data.quotes.SIM.A"), w.msgs[0].Key)
	assert.Equal(t, []kafka.Header{{Key: "ts_init", Value: []byte("5")}}, w.msgs[0].Headers)
}
