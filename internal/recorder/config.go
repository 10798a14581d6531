package recorder

import (
	"cmp"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Config controls the WAL writer. Zero sizes and an empty prefix fall back to
// the defaults; zero intervals disable the periodic flush and fsync.
type Config struct {
	Dir        string `json:"dir"`
	FilePrefix string `json:"filePrefix"`

	// A segment is closed once it would grow past SegmentMaxBytes or has been
	// open for SegmentMaxDuration.
	SegmentMaxBytes    int64         `json:"segmentMaxBytes"`
	SegmentMaxDuration time.Duration `json:"segmentMaxDuration"`

	QueueSize     int           `json:"queueSize"`
	BufferSize    int           `json:"bufferSize"`
	FlushInterval time.Duration `json:"flushInterval"`
	SyncInterval  time.Duration `json:"syncInterval"`

	// CopyPayload makes the writer own a copy of every payload, for callers
	// that reuse their encode buffers.
	CopyPayload bool `json:"copyPayload"`
}

var defaults = Config{
	FilePrefix:         "wal",
	SegmentMaxBytes:    1 << 30,
	SegmentMaxDuration: 5 * time.Minute,
	QueueSize:          4096,
	BufferSize:         256 << 10,
}

// DefaultConfig returns the writer defaults for dir.
func DefaultConfig(dir string) Config {
	cfg := defaults
	cfg.Dir = dir
	return cfg
}

func (c Config) withDefaults() Config {
	c.FilePrefix = cmp.Or(c.FilePrefix, defaults.FilePrefix)
	c.SegmentMaxBytes = cmp.Or(c.SegmentMaxBytes, defaults.SegmentMaxBytes)
	c.QueueSize = cmp.Or(c.QueueSize, defaults.QueueSize)
	c.BufferSize = cmp.Or(c.BufferSize, defaults.BufferSize)
	return c
}

func (c Config) Validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.Dir == "", "dir is empty"},
		{c.FilePrefix == "", "file prefix is empty"},
		{c.SegmentMaxBytes <= recordOverhead, "segment max bytes too small"},
		{c.SegmentMaxDuration < 0, "segment max duration is negative"},
		{c.QueueSize <= 0, "queue size must be > 0"},
		{c.BufferSize <= 0, "buffer size must be > 0"},
		{c.FlushInterval < 0, "flush interval is negative"},
		{c.SyncInterval < 0, "sync interval is negative"},
	}
	for _, check := range checks {
		if check.bad {
			return errors.Wrap(exception.ErrInvalidConfig, "recorder: "+check.msg)
		}
	}
	return nil
}
