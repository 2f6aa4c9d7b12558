package gps

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gtu-nova/mavsign/dialect"
)

type Mode int

const (
	// ModeOffset reports the wall clock shifted by the offset.
	ModeOffset Mode = iota
	// ModeAbsolute reports a fixed unix time given as the offset.
	ModeAbsolute
)

func (m Mode) String() string {
	if m == ModeAbsolute {
		return "absolute"
	}
	return "offset"
}

// Position is latitude/longitude in degE7 and altitude in metres.
type Position struct {
	Lat int32
	Lon int32
	Alt float32
}

// CliftonSuspensionBridge is the default spoofed location.
var CliftonSuspensionBridge = Position{Lat: 514492880, Lon: -26083820, Alt: 5}

type Config struct {
	Mode Mode
	// Offset is in seconds: added to the clock in offset mode, the unix
	// time itself in absolute mode.
	Offset       int64
	Interval     time.Duration
	FastInterval time.Duration
	// Step is the position change per second of interval, in degE7
	// (metres for altitude).
	Step       float64
	Position   Position
	Satellites uint8
}

func DefaultConfig() Config {
	return Config{
		Mode:         ModeOffset,
		Interval:     time.Second,
		FastInterval: 50 * time.Millisecond,
		Step:         200,
		Position:     CliftonSuspensionBridge,
		Satellites:   13,
	}
}

// Sink delivers samples to the vehicle.
type Sink interface {
	Send(s dialect.GpsInputData) error
}

type Direction int

const (
	North Direction = iota
	South
	East
	West
	Up
	Down
)

// State is a consistent snapshot of the feed's mutable settings.
type State struct {
	Mode     Mode
	Offset   int64
	Interval time.Duration
	Position Position
}

// Feed emits GPS_INPUT samples on a timer. Offset, position and interval
// may be changed from other goroutines at any time; every tick reads them
// together under one lock.
type Feed struct {
	cfg    Config
	sink   Sink
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	offset   int64
	pos      Position
	interval time.Duration
	// samples already sent within currentSecond
	rounds        int
	currentSecond int64

	changed chan struct{}
}

func NewFeed(cfg Config, sink Sink, logger *logrus.Logger) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 50 * time.Millisecond
	}
	return &Feed{
		cfg:           cfg,
		sink:          sink,
		logger:        logger,
		now:           time.Now,
		offset:        cfg.Offset,
		pos:           cfg.Position,
		interval:      cfg.Interval,
		currentSecond: math.MinInt64,
		changed:       make(chan struct{}, 1),
	}
}

// SetClock replaces the wall clock, for tests.
func (f *Feed) SetClock(now func() time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

func (f *Feed) notify() {
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{Mode: f.cfg.Mode, Offset: f.offset, Interval: f.interval, Position: f.pos}
}

func (f *Feed) SetOffset(seconds int64) {
	f.mu.Lock()
	f.offset = seconds
	f.mu.Unlock()
	f.notify()
}

// ToggleInterval switches between the normal and the fast interval and
// returns the new one.
func (f *Feed) ToggleInterval() time.Duration {
	f.mu.Lock()
	if f.interval == f.cfg.FastInterval {
		f.interval = f.cfg.Interval
	} else {
		f.interval = f.cfg.FastInterval
	}
	interval := f.interval
	f.mu.Unlock()
	f.notify()
	return interval
}

// Nudge moves the position by Step scaled by the current interval.
func (f *Feed) Nudge(dir Direction) Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	delta := f.cfg.Step * f.interval.Seconds()
	switch dir {
	case North:
		f.pos.Lat += int32(delta)
	case South:
		f.pos.Lat -= int32(delta)
	case East:
		f.pos.Lon += int32(delta)
	case West:
		f.pos.Lon -= int32(delta)
	case Up:
		f.pos.Alt += float32(delta)
	case Down:
		f.pos.Alt -= float32(delta)
	}
	return f.pos
}

// ReportedTime is the instant, to the second, the feed is claiming.
func (f *Feed) ReportedTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Unix(f.reportedUnixLocked(), 0).UTC()
}

func (f *Feed) reportedUnixLocked() int64 {
	if f.cfg.Mode == ModeAbsolute {
		return f.offset
	}
	return f.now().Unix() + f.offset
}

// Next builds the sample for this tick. Samples sent within the same
// reported second are spread across it by the interval so no two carry
// the same time.
func (f *Feed) Next() (dialect.GpsInputData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	unix := f.reportedUnixLocked()
	if unix == f.currentSecond {
		f.rounds++
	} else {
		f.rounds = 0
		f.currentSecond = unix
	}

	week, tow, err := ToGPS(time.Unix(unix, 0))
	if err != nil {
		return dialect.GpsInputData{}, fmt.Errorf("can't convert the given offset to GPS time: %w", err)
	}
	tow += f.interval * time.Duration(f.rounds)
	if week > math.MaxUint16 {
		return dialect.GpsInputData{}, fmt.Errorf("GPS week %d does not fit 16 bits", week)
	}

	return dialect.GpsInputData{
		TimeUsec:          uint64(FromGPS(week, tow).UnixNano() / int64(time.Microsecond)),
		TimeWeekMs:        uint32(tow / time.Millisecond),
		TimeWeek:          uint16(week),
		FixType:           3,
		Lat:               f.pos.Lat,
		Lon:               f.pos.Lon,
		Alt:               float32(math.Round(float64(f.pos.Alt))),
		Hdop:              1,
		Vdop:              1,
		Vd:                -1,
		HorizAccuracy:     2,
		VertAccuracy:      2,
		SatellitesVisible: f.cfg.Satellites,
	}, nil
}

// Run sends a sample every interval until ctx is done or sending fails.
// Changing the interval or offset restarts the wait with the new value.
func (f *Feed) Run(ctx context.Context) error {
	for {
		timer := time.NewTimer(f.State().Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-f.changed:
			timer.Stop()
			continue
		case <-timer.C:
		}

		sample, err := f.Next()
		if err != nil {
			return err
		}
		if err := f.sink.Send(sample); err != nil {
			return fmt.Errorf("can't send the GPS data: %w", err)
		}
		f.logger.Debugf("gps week %d tow %dms lat %d lon %d alt %.0f",
			sample.TimeWeek, sample.TimeWeekMs, sample.Lat, sample.Lon, sample.Alt)
	}
}
