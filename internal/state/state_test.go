package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/codec"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
	"tradecore/internal/recorder"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

var ethID = model.MustParseInstrumentID("ETHUSDT.BINANCE")

func fill(side enum.OrderSide, qty, px, trade string, ts model.UnixNanos) model.OrderFilled {
	return model.OrderFilled{
		EventHeader: model.EventHeader{
			StrategyID:    model.NewStrategyID("S-1"),
			InstrumentID:  ethID,
			ClientOrderID: model.NewClientOrderID("O-" + trade),
			EventID:       model.NewUUID4(),
			TsEvent:       ts,
			TsInit:        ts,
		},
		TradeID:    model.NewTradeID(trade),
		Side:       side,
		OrderType:  enum.OrderTypeMarket,
		LastQty:    model.MustParseQuantity(qty),
		LastPx:     model.MustParsePrice(px),
		Currency:   model.USDT,
		Commission: model.ZeroMoney(model.USDT),
	}
}

func newTestCodec(t *testing.T) *codec.Codec {
	t.Helper()
	reg := schema.NewRegistry()
	_, err := reg.AddVenue(ethID.Venue)
	require.NoError(t, err)
	_, err = reg.AddInstrument(&model.Instrument{ID: ethID, QuoteCurrency: model.USDT, PricePrecision: 2, SizePrecision: 3})
	require.NoError(t, err)
	return codec.New(reg)
}

func TestPositionBook(t *testing.T) {
	book := NewPositionBook()
	netting := NettingPositionID(ethID, model.NewStrategyID("S-1"))
	assert.Equal(t, "ETHUSDT.BINANCE-S-1", netting.String())

	p, err := book.ApplyFill(fill(enum.OrderSideBuy, "2.000", "100.00", "T1", 10))
	require.NoError(t, err)
	assert.Equal(t, netting, p.ID)
	assert.Equal(t, 2.0, book.NetQty(ethID))

	_, err = book.ApplyFill(fill(enum.OrderSideBuy, "2.000", "100.00", "T1", 11))
	require.ErrorIs(t, err, exception.ErrDuplicateEvent)

	_, err = book.ApplyFill(fill(enum.OrderSideSell, "2.000", "110.00", "T2", 20))
	require.NoError(t, err)
	closed, ok := book.Position(netting)
	require.True(t, ok)
	assert.True(t, closed.IsClosed())

	_, err = book.ApplyFill(fill(enum.OrderSideSell, "2.000", "110.00", "T2", 21))
	require.ErrorIs(t, err, exception.ErrDuplicateEvent)

	reopened, err := book.ApplyFill(fill(enum.OrderSideSell, "1.000", "120.00", "T3", 30))
	require.NoError(t, err)
	assert.True(t, reopened.IsShort())
	assert.Equal(t, model.UnixNanos(30), reopened.TsOpened)
	assert.True(t, reopened.HasTrade(model.NewTradeID("T1")))
	assert.Equal(t, 1, book.Count())

	explicit := fill(enum.OrderSideBuy, "1.000", "120.00", "T4", 40)
	explicit.PositionID = model.NewPositionID("P-9")
	_, err = book.ApplyFill(explicit)
	require.NoError(t, err)
	assert.Equal(t, 2, book.Count())
	assert.Equal(t, 0.0, book.NetQty(ethID))
}

func TestSnapshotRoundTrip(t *testing.T) {
	book := NewPositionBook()
	_, err := book.ApplyFill(fill(enum.OrderSideBuy, "3.000", "100.00", "T1", 10))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snap", "positions.json")
	snap := book.Snapshot(7, 10)
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.LastSeq)
	assert.Equal(t, model.UnixNanos(10), got.LastTsInit)
	require.NoError(t, CompareSnapshots(snap, got))

	got.Positions[0].SignedQty = 1
	require.ErrorIs(t, CompareSnapshots(snap, got), exception.ErrSnapshotMismatch)
	require.ErrorIs(t, CompareSnapshots(snap, Snapshot{}), exception.ErrSnapshotMismatch)
}

func TestRecoverPositions(t *testing.T) {
	dir := t.TempDir()
	c := newTestCodec(t)

	cfg := recorder.DefaultConfig(dir)
	w, err := recorder.NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	rec := recorder.NewRecorder(w, c, obs.NewTraceGenerator(1))

	require.NoError(t, rec.RecordFill(fill(enum.OrderSideBuy, "2.000", "100.00", "T1", 10)))
	require.NoError(t, rec.RecordFill(fill(enum.OrderSideBuy, "1.000", "103.00", "T2", 20)))
	require.NoError(t, rec.RecordFill(fill(enum.OrderSideSell, "1.000", "110.00", "T3", 30)))
	require.NoError(t, w.Close())

	res, err := RecoverPositions(t.Context(), RecoverConfig{WALDir: dir}, c)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, uint64(3), res.LastSeq)
	assert.Equal(t, 2.0, res.Positions.NetQty(ethID))

	// A snapshot taken after the first record only replays the tail.
	partial := NewPositionBook()
	_, err = partial.ApplyFill(fill(enum.OrderSideBuy, "2.000", "100.00", "T1", 10))
	require.NoError(t, err)
	snapPath := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, WriteSnapshot(snapPath, partial.Snapshot(1, 10)))

	res, err = RecoverPositions(t.Context(), RecoverConfig{WALDir: dir, SnapshotPath: snapPath}, c)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 2.0, res.Positions.NetQty(ethID))

	res, err = RecoverPositions(t.Context(), RecoverConfig{WALDir: dir, SnapshotPath: filepath.Join(dir, "missing.json")}, c)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Applied)

	_, err = RecoverPositions(t.Context(), RecoverConfig{}, c)
	require.ErrorIs(t, err, exception.ErrInvalidConfig)
}
