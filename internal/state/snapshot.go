package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

// Snapshot captures positions and the WAL position they reflect.
type Snapshot struct {
	Timestamp  int64             `json:"timestamp"`
	LastSeq    uint64            `json:"lastSeq"`
	LastTsInit model.UnixNanos   `json:"lastTsInit"`
	Positions  []*model.Position `json:"positions"`
}

// Snapshot builds a snapshot of the current positions.
func (b *PositionBook) Snapshot(lastSeq uint64, lastTsInit model.UnixNanos) Snapshot {
	return Snapshot{
		Timestamp:  time.Now().UTC().UnixNano(),
		LastSeq:    lastSeq,
		LastTsInit: lastTsInit,
		Positions:  b.Positions(),
	}
}

// WriteSnapshot writes a snapshot to disk as JSON. The file is replaced
// atomically.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir").With("dir", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot").With("path", tmp)
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read snapshot").With("path", path)
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "unmarshal snapshot").With("path", path)
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same positions with the
// same signed quantities.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return errors.Wrap(exception.ErrSnapshotMismatch, "length").
			With("expected", len(expected.Positions)).With("actual", len(actual.Positions))
	}
	want := make(map[model.PositionID]*model.Position, len(expected.Positions))
	for _, p := range expected.Positions {
		want[p.ID] = p
	}
	for _, p := range actual.Positions {
		w, ok := want[p.ID]
		if !ok {
			return errors.Wrap(exception.ErrSnapshotMismatch, "missing position").With("id", p.ID.String())
		}
		if w.SignedQty != p.SignedQty || w.Side != p.Side {
			return errors.Wrap(exception.ErrSnapshotMismatch, "quantity").
				With("id", p.ID.String()).With("expected", w.SignedQty).With("actual", p.SignedQty)
		}
	}
	return nil
}
