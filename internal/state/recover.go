package state

import (
	"context"
	"os"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/codec"
	"tradecore/internal/model"
	"tradecore/internal/recorder"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// RecoverConfig controls snapshot + WAL recovery.
type RecoverConfig struct {
	WALDir          string
	SnapshotPath    string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
}

// RecoverResult contains recovered state and metadata.
type RecoverResult struct {
	Positions  *PositionBook
	LastSeq    uint64
	LastTsInit model.UnixNanos
	Applied    int
}

// RecoverPositions loads a snapshot, when one exists, and replays the fill
// records of the WAL tail on top of it.
func RecoverPositions(ctx context.Context, cfg RecoverConfig, c *codec.Codec) (RecoverResult, error) {
	if cfg.WALDir == "" {
		return RecoverResult{}, errors.Wrap(exception.ErrInvalidConfig, "recover: wal dir is empty")
	}
	res := RecoverResult{Positions: NewPositionBook()}

	if cfg.SnapshotPath != "" {
		snapshot, err := ReadSnapshot(cfg.SnapshotPath)
		switch {
		case err == nil:
			res.Positions.Restore(snapshot.Positions)
			res.LastSeq = snapshot.LastSeq
			res.LastTsInit = snapshot.LastTsInit
		case errors.Is(err, os.ErrNotExist):
			logs.Infof("state: no snapshot at %s, replaying full wal", cfg.SnapshotPath)
		default:
			return RecoverResult{}, err
		}
	}

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             cfg.WALDir,
		FilePrefix:      cfg.FilePrefix,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	snapshotSeq, snapshotTs := res.LastSeq, res.LastTsInit
	err = pb.Run(ctx, func(header schema.Header, payload []byte) error {
		if snapshotSeq > 0 && header.Seq <= snapshotSeq {
			return nil
		}
		if snapshotSeq == 0 && snapshotTs > 0 && header.TsInit <= snapshotTs {
			return nil
		}
		res.LastSeq = max(res.LastSeq, header.Seq)
		res.LastTsInit = max(res.LastTsInit, header.TsInit)

		if header.Type != schema.RecordFill {
			return nil
		}
		fill, err := c.DecodeFill(header, payload)
		if err != nil {
			return errors.Wrap(err, "decode fill").With("seq", header.Seq)
		}
		if _, err := res.Positions.ApplyFill(fill); err != nil {
			if errors.Is(err, exception.ErrDuplicateEvent) {
				logs.Warnf("state: seq %d trade %s already applied", header.Seq, fill.TradeID)
				return nil
			}
			return errors.Wrap(err, "apply fill").With("seq", header.Seq)
		}
		res.Applied++
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}
	return res, nil
}
