package chaos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func records(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		ts := model.UnixNanos(1_000 * (i + 1))
		out[i] = Record{Header: schema.NewHeader(schema.RecordQuote, 1, uint64(i+1), ts, ts)}
	}
	return out
}

func run(t *testing.T, cfg Config, in []Record) ([]Record, Stats) {
	t.Helper()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	var out []Record
	for _, rec := range in {
		out = append(out, e.Process(rec)...)
	}
	out = append(out, e.Flush()...)
	return out, e.Stats()
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
	}{
		{desc: "negative drop", cfg: Config{DropRate: -0.1, ReorderWindow: 1}},
		{desc: "drop above one", cfg: Config{DropRate: 1.5, ReorderWindow: 1}},
		{desc: "duplicate above one", cfg: Config{DuplicateRate: 2, ReorderWindow: 1}},
		{desc: "negative delay", cfg: Config{MaxDelay: -time.Second, ReorderWindow: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewEngine(tc.cfg)
			require.ErrorIs(t, err, exception.ErrInvalidConfig)
		})
	}
}

func TestPassThrough(t *testing.T) {
	in := records(20)
	out, stats := run(t, Config{Seed: 7}, in)
	assert.Equal(t, in, out)
	assert.Equal(t, Stats{In: 20, Out: 20}, stats)
}

func TestDropAll(t *testing.T) {
	out, stats := run(t, Config{Seed: 7, DropRate: 1}, records(10))
	assert.Empty(t, out)
	assert.Equal(t, 10, stats.Dropped)
}

func TestDuplicateAll(t *testing.T) {
	out, stats := run(t, Config{Seed: 7, DuplicateRate: 1}, records(5))
	require.Len(t, out, 10)
	for i := 0; i < len(out); i += 2 {
		assert.Equal(t, out[i], out[i+1])
	}
	assert.Equal(t, 5, stats.Duplicated)
}

func TestReorderKeepsEveryRecord(t *testing.T) {
	in := records(50)
	out, _ := run(t, Config{Seed: 3, ReorderWindow: 8}, in)
	require.Len(t, out, len(in))
	assert.ElementsMatch(t, in, out)
	assert.NotEqual(t, in, out)
}

func TestDelayOnlyMovesTsInitForward(t *testing.T) {
	in := records(50)
	out, stats := run(t, Config{Seed: 11, MaxDelay: time.Microsecond}, in)
	require.Len(t, out, len(in))
	for i := range out {
		assert.Equal(t, in[i].Header.TsEvent, out[i].Header.TsEvent)
		assert.GreaterOrEqual(t, out[i].Header.TsInit, in[i].Header.TsInit)
		assert.LessOrEqual(t, out[i].Header.TsInit, in[i].Header.TsInit+1_000)
	}
	assert.Positive(t, stats.Delayed)
}

func TestDeterministicForSeed(t *testing.T) {
	cfg := Config{Seed: 42, DropRate: 0.2, DuplicateRate: 0.2, ReorderWindow: 4, MaxDelay: time.Microsecond}
	a, _ := run(t, cfg, records(100))
	b, _ := run(t, cfg, records(100))
	assert.Equal(t, a, b)
}
