package cache

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradecore/pkg/conn"
	"tradecore/pkg/exception"
)

type cacheRow struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     []byte    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (cacheRow) TableName() string {
	return "tradecore_cache"
}

// PostgresBackend stores cache entries as rows of a single key/value table.
type PostgresBackend struct {
	client *conn.Postgres
}

// NewPostgresBackend migrates the cache table on client.
func NewPostgresBackend(client *conn.Postgres) (*PostgresBackend, error) {
	if client == nil || client.DB() == nil {
		return nil, exception.ErrNilInstance
	}
	if err := client.DB().AutoMigrate(&cacheRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate cache table")
	}
	return &PostgresBackend{client: client}, nil
}

func (p *PostgresBackend) Write(ctx context.Context, entries []Entry) error {
	now := time.Now().UTC()
	err := p.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if e.Delete {
				if err := tx.Where("key = ?", e.Key).Delete(&cacheRow{}).Error; err != nil {
					return err
				}
				continue
			}
			row := cacheRow{Key: e.Key, Value: e.Value, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "postgres write").With("entries", len(entries))
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var row cacheRow
	err := p.client.DB().WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(exception.ErrKeyNotFound, "postgres get").With("key", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres get").With("key", key)
	}
	return row.Value, nil
}

func (p *PostgresBackend) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	q := p.client.DB().WithContext(ctx).Where("key >= ?", prefix)
	if upper := prefixUpperBound(prefix); upper != "" {
		q = q.Where("key < ?", upper)
	}

	var rows []cacheRow
	if err := q.Order("key").Find(&rows).Error; err != nil {
		return errors.Wrap(err, "postgres scan").With("prefix", prefix)
	}
	for _, row := range rows {
		if err := fn(row.Key, row.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresBackend) Close() error {
	return p.client.Close()
}
