package clock

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"tradecore/pkg/exception"
)

// Mode selects where the clock reads time from.
type Mode uint32

const (
	// ModeRealtime reads the system clock and never returns the same value twice.
	ModeRealtime Mode = iota
	// ModeStatic only moves when Set or Advance is called.
	ModeStatic
)

func (m Mode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	case ModeStatic:
		return "static"
	default:
		return "unknown"
	}
}

// Clock is the read side of a time source.
type Clock interface {
	Now() UnixNanos
}

// AtomicTime is a monotonic nanosecond time source that is safe to share across goroutines.
//
// In realtime mode every call to Now returns a value strictly greater than any value
// returned before, even when the system clock steps backwards.
type AtomicTime struct {
	mode  atomic.Uint32
	nanos atomic.Uint64
}

// NewRealtime creates a clock that follows the system clock.
func NewRealtime() *AtomicTime {
	return &AtomicTime{}
}

// NewStatic creates a clock fixed at start.
func NewStatic(start UnixNanos) *AtomicTime {
	t := &AtomicTime{}
	t.mode.Store(uint32(ModeStatic))
	t.nanos.Store(uint64(start))
	return t
}

func (t *AtomicTime) Mode() Mode {
	return Mode(t.mode.Load())
}

// Now returns the current time.
func (t *AtomicTime) Now() UnixNanos {
	if t.Mode() == ModeStatic {
		return UnixNanos(t.nanos.Load())
	}
	return t.timeSinceEpoch()
}

func (t *AtomicTime) NowMicros() uint64 {
	return t.Now().Micros()
}

func (t *AtomicTime) NowMillis() uint64 {
	return t.Now().Millis()
}

func (t *AtomicTime) timeSinceEpoch() UnixNanos {
	now := uint64(FromTime(time.Now()))
	for {
		last := t.nanos.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if t.nanos.CompareAndSwap(last, next) {
			return UnixNanos(next)
		}
	}
}

// Set stores an absolute time. Only valid in static mode.
func (t *AtomicTime) Set(n UnixNanos) error {
	if t.Mode() != ModeStatic {
		return exception.ErrClockNotStatic
	}
	t.nanos.Store(uint64(n))
	return nil
}

// Advance moves a static clock forward by delta and returns the new time.
func (t *AtomicTime) Advance(delta time.Duration) (UnixNanos, error) {
	if t.Mode() != ModeStatic {
		return 0, exception.ErrClockNotStatic
	}
	if delta < 0 {
		return 0, exception.ErrUnderflow
	}
	d := uint64(delta)
	for {
		cur := t.nanos.Load()
		if cur > math.MaxUint64-d {
			return 0, exception.ErrOverflow
		}
		if t.nanos.CompareAndSwap(cur, cur+d) {
			return UnixNanos(cur + d), nil
		}
	}
}

// MakeRealtime switches to system time. The stored value is kept as the floor for
// the next realtime reading.
func (t *AtomicTime) MakeRealtime() {
	t.mode.Store(uint32(ModeRealtime))
}

// MakeStatic freezes the clock at its last observed value.
func (t *AtomicTime) MakeStatic() {
	t.mode.Store(uint32(ModeStatic))
}

var global = sync.OnceValue(NewRealtime)

// Global returns the process-wide clock.
func Global() *AtomicTime {
	return global()
}

// Now reads the process-wide clock.
func Now() UnixNanos {
	return Global().Now()
}
