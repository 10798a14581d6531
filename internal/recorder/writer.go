package recorder

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Stats counts writer activity since NewWriter.
type Stats struct {
	Appended uint64
	Dropped  uint64
	Segments uint64
	Bytes    uint64
}

// Writer appends records to rolling WAL segments. Producers enqueue from any
// goroutine; one goroutine started by Start owns the files.
//
// A new writer continues after the segments already in its directory: segment
// ids keep increasing and LastSeq reports the newest recorded sequence.
type Writer struct {
	cfg     Config
	tail    tailState
	queue   chan pending
	stopped chan struct{}

	// mu guards closing the queue against concurrent sends.
	mu     sync.RWMutex
	closed bool

	started  atomic.Bool
	failure  atomic.Pointer[error]
	appended atomic.Uint64
	dropped  atomic.Uint64
	segments atomic.Uint64
	bytes    atomic.Uint64
}

type pending struct {
	header  schema.Header
	payload []byte
}

func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create wal dir").With("dir", cfg.Dir)
	}
	tail, err := resumeTail(cfg.Dir, cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	if tail.lastSeq > 0 {
		logs.Infof("recorder: resuming %s after seq %d", cfg.Dir, tail.lastSeq)
	}
	return &Writer{
		cfg:     cfg,
		tail:    tail,
		queue:   make(chan pending, cfg.QueueSize),
		stopped: make(chan struct{}),
	}, nil
}

// LastSeq returns the highest sequence found in the directory at NewWriter.
func (w *Writer) LastSeq() uint64 { return w.tail.lastSeq }

// Start launches the writer goroutine. When ctx ends, queued records are
// written and the writer stops accepting more.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return exception.ErrWALAlreadyStarted
	}
	go w.run(ctx)
	return nil
}

// Close stops intake, writes what is queued and syncs the open segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	if w.started.Load() {
		<-w.stopped
	}
	return w.Err()
}

// Err returns the error that stopped the writer, if any.
func (w *Writer) Err() error {
	if p := w.failure.Load(); p != nil {
		return *p
	}
	return nil
}

func (w *Writer) Stats() Stats {
	return Stats{
		Appended: w.appended.Load(),
		Dropped:  w.dropped.Load(),
		Segments: w.segments.Load(),
		Bytes:    w.bytes.Load(),
	}
}

// TryAppend queues a record or fails with exception.ErrWALQueueFull.
func (w *Writer) TryAppend(header schema.Header, payload []byte) error {
	return w.enqueue(context.Background(), header, payload, false)
}

// Append queues a record, waiting for queue space until ctx ends.
func (w *Writer) Append(ctx context.Context, header schema.Header, payload []byte) error {
	if ctx == nil {
		return errors.Wrap(exception.ErrNilInstance, "append context")
	}
	return w.enqueue(ctx, header, payload, true)
}

func (w *Writer) enqueue(ctx context.Context, header schema.Header, payload []byte, wait bool) error {
	if !w.started.Load() {
		return exception.ErrWALNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if len(payload) > maxPayloadLen {
		return exception.ErrWALPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if w.cfg.CopyPayload && len(payload) > 0 {
		payload = append([]byte(nil), payload...)
	}
	rec := pending{header: header, payload: payload}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return exception.ErrWALClosed
	}
	select {
	case <-w.stopped:
		return exception.ErrWALClosed
	default:
	}

	if !wait {
		select {
		case w.queue <- rec:
			w.appended.Add(1)
			return nil
		default:
			w.dropped.Add(1)
			return exception.ErrWALQueueFull
		}
	}
	select {
	case w.queue <- rec:
		w.appended.Add(1)
		return nil
	case <-w.stopped:
		return exception.ErrWALClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.stopped)

	log := &segmentLog{
		dir:      w.cfg.Dir,
		prefix:   w.cfg.FilePrefix,
		maxBytes: w.cfg.SegmentMaxBytes,
		maxAge:   w.cfg.SegmentMaxDuration,
		bufSize:  w.cfg.BufferSize,
		nextID:   w.tail.nextID,
		segments: &w.segments,
		bytes:    &w.bytes,
	}
	defer func() { w.fail(log.close()) }()

	flushC, stopFlush := ticker(w.cfg.FlushInterval)
	defer stopFlush()
	syncC, stopSync := ticker(w.cfg.SyncInterval)
	defer stopSync()

	for {
		var err error
		select {
		case <-ctx.Done():
			w.drain(log)
			return
		case rec, ok := <-w.queue:
			if !ok {
				return
			}
			err = log.append(rec, time.Now())
		case <-flushC:
			err = log.flush()
		case <-syncC:
			err = log.sync()
		}
		if err != nil {
			w.fail(err)
			return
		}
	}
}

// drain writes whatever is queued without waiting for more.
func (w *Writer) drain(log *segmentLog) {
	for {
		select {
		case rec, ok := <-w.queue:
			if !ok {
				return
			}
			if err := log.append(rec, time.Now()); err != nil {
				w.fail(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) fail(err error) {
	if err == nil {
		return
	}
	if w.failure.CompareAndSwap(nil, &err) {
		logs.Errorf("recorder: writer stopped, err: %+v", err)
	}
}

// ticker returns a nil channel when d is zero.
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
