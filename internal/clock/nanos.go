package clock

import (
	"strconv"
	"time"
)

// UnixNanos is a count of nanoseconds since the UNIX epoch.
type UnixNanos uint64

const (
	NanosPerMicro  = uint64(time.Microsecond)
	NanosPerMilli  = uint64(time.Millisecond)
	NanosPerSecond = uint64(time.Second)
	NanosPerMinute = uint64(time.Minute)
	NanosPerHour   = uint64(time.Hour)
	NanosPerDay    = 24 * NanosPerHour
)

// FromTime converts t to UnixNanos. Times before the epoch clamp to zero.
func FromTime(t time.Time) UnixNanos {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return UnixNanos(n)
}

func (n UnixNanos) Time() time.Time {
	return time.Unix(0, int64(n)).UTC()
}

func (n UnixNanos) Micros() uint64 {
	return uint64(n) / NanosPerMicro
}

func (n UnixNanos) Millis() uint64 {
	return uint64(n) / NanosPerMilli
}

// Sub returns n-o, saturating at zero.
func (n UnixNanos) Sub(o UnixNanos) time.Duration {
	if o >= n {
		return 0
	}
	return time.Duration(n - o)
}

// Hex renders the value as lowercase hexadecimal without a prefix.
func (n UnixNanos) Hex() string {
	return strconv.FormatUint(uint64(n), 16)
}

func (n UnixNanos) String() string {
	return n.Time().Format(time.RFC3339Nano)
}
