package cache

import (
	"context"
	"slices"

	"github.com/cockroachdb/pebble"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// PebbleBackend stores cache entries in a local pebble database.
type PebbleBackend struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database under dir.
func OpenPebble(dir string) (*PebbleBackend, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open pebble").With("dir", dir)
	}
	return &PebbleBackend{db: db}, nil
}

func (p *PebbleBackend) Write(_ context.Context, entries []Entry) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		var err error
		if e.Delete {
			err = batch.Delete([]byte(e.Key), nil)
		} else {
			err = batch.Set([]byte(e.Key), e.Value, nil)
		}
		if err != nil {
			return errors.Wrap(err, "pebble batch").With("key", e.Key)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "pebble commit").With("entries", len(entries))
	}
	return nil
}

func (p *PebbleBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrap(exception.ErrKeyNotFound, "pebble get").With("key", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "pebble get").With("key", key)
	}
	defer closer.Close()
	return slices.Clone(v), nil
}

func (p *PebbleBackend) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	opts := &pebble.IterOptions{LowerBound: []byte(prefix)}
	if upper := prefixUpperBound(prefix); upper != "" {
		opts.UpperBound = []byte(upper)
	}
	iter, err := p.db.NewIterWithContext(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "pebble iter").With("prefix", prefix)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(string(iter.Key()), slices.Clone(iter.Value())); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

func (p *PebbleBackend) Close() error {
	return p.db.Close()
}
