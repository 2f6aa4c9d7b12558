package mavlink

import (
	"fmt"
	"math"
	"time"
)

const (
	// SigningEpochUnix is 2015-01-01T00:00:00Z in unix seconds.
	SigningEpochUnix = 1420070400

	TicksPerSecond = 100000
	TimestampSize  = 6
	MaxTimestamp   = 1<<48 - 1

	tick = 10 * time.Microsecond
)

var SigningEpoch = time.Unix(SigningEpochUnix, 0).UTC()

// Timestamp counts 10µs ticks since the signing epoch. Only the low
// 48 bits go on the wire.
type Timestamp uint64

// NewTimestamp maps t onto the tick count, rounding to the nearest tick.
func NewTimestamp(t time.Time) (Timestamp, error) {
	if t.Before(SigningEpoch) {
		return 0, fmt.Errorf("%v is before the signing epoch: %w", t.UTC(), ErrTimestampRange)
	}
	// time.Duration saturates around 292 years, far past the 48-bit limit.
	d := t.Sub(SigningEpoch)
	ticks := uint64(d / tick)
	if d%tick >= tick/2 {
		ticks++
	}
	if ticks > MaxTimestamp {
		return 0, fmt.Errorf("%v overflows 48 bits: %w", t.UTC(), ErrTimestampRange)
	}
	return Timestamp(ticks), nil
}

// TimestampFromUnix converts fractional unix seconds the way the
// signing scripts do: round((unix - epoch) * 1e5).
func TimestampFromUnix(unix float64) (Timestamp, error) {
	ticks := math.Round((unix - SigningEpochUnix) * TicksPerSecond)
	if math.IsNaN(ticks) || ticks < 0 || ticks > MaxTimestamp {
		return 0, fmt.Errorf("unix time %f: %w", unix, ErrTimestampRange)
	}
	return Timestamp(ticks), nil
}

// Time returns the wall clock instant the timestamp represents.
func (ts Timestamp) Time() time.Time {
	return SigningEpoch.Add(time.Duration(ts) * tick)
}

// Unix returns fractional unix seconds: ticks / 1e5 + epoch.
func (ts Timestamp) Unix() float64 {
	return float64(ts)/TicksPerSecond + SigningEpochUnix
}

// Bytes serialises the timestamp as 6 little-endian bytes.
func (ts Timestamp) Bytes() [TimestampSize]byte {
	var b [TimestampSize]byte
	putTimestamp(b[:], ts)
	return b
}

func putTimestamp(b []byte, ts Timestamp) {
	for i := 0; i < TimestampSize; i++ {
		b[i] = byte(ts >> (8 * i))
	}
}

// ReadTimestamp decodes 6 little-endian bytes.
func ReadTimestamp(b []byte) (Timestamp, error) {
	if len(b) < TimestampSize {
		return 0, fmt.Errorf("timestamp needs %d bytes, got %d: %w", TimestampSize, len(b), ErrTruncatedPacket)
	}
	var ts Timestamp
	for i := TimestampSize - 1; i >= 0; i-- {
		ts = ts<<8 | Timestamp(b[i])
	}
	return ts, nil
}

// TimestampInput selects how the signing timestamp is chosen. It is
// resolved once per packet against the current clock.
type TimestampInput interface {
	Resolve(now time.Time) (Timestamp, error)
}

// OffsetTime signs with the current time shifted by the duration.
type OffsetTime time.Duration

func (o OffsetTime) Resolve(now time.Time) (Timestamp, error) {
	return NewTimestamp(now.Add(time.Duration(o)))
}

func (o OffsetTime) String() string {
	return fmt.Sprintf("now%+v", time.Duration(o))
}

// AbsoluteTime signs with a fixed instant regardless of the clock.
type AbsoluteTime time.Time

func (a AbsoluteTime) Resolve(time.Time) (Timestamp, error) {
	return NewTimestamp(time.Time(a))
}

func (a AbsoluteTime) String() string {
	return time.Time(a).UTC().Format(time.RFC3339Nano)
}

// UnixTime signs with a fixed instant given as fractional unix seconds.
type UnixTime float64

func (u UnixTime) Resolve(time.Time) (Timestamp, error) {
	return TimestampFromUnix(float64(u))
}

// FixedTimestamp signs with a tick count chosen by the caller.
type FixedTimestamp Timestamp

func (f FixedTimestamp) Resolve(time.Time) (Timestamp, error) {
	if f > MaxTimestamp {
		return 0, fmt.Errorf("%d ticks: %w", uint64(f), ErrTimestampRange)
	}
	return Timestamp(f), nil
}
