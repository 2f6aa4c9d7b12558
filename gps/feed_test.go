package gps

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gtu-nova/mavsign/dialect"
)

const captureUnix = 1744282155 // 2025-04-10 10:49:15 UTC

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type recordingSink struct {
	mu      sync.Mutex
	samples []dialect.GpsInputData
	got     chan struct{}
	err     error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan struct{}, 100)}
}

func (r *recordingSink) Send(s dialect.GpsInputData) error {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
	r.got <- struct{}{}
	return r.err
}

func absoluteFeed(sink Sink) *Feed {
	cfg := DefaultConfig()
	cfg.Mode = ModeAbsolute
	cfg.Offset = captureUnix
	return NewFeed(cfg, sink, quietLogger())
}

func TestNextAbsolute(t *testing.T) {
	f := absoluteFeed(nil)

	s, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, uint16(2361), s.TimeWeek)
	require.Equal(t, uint32(384573000), s.TimeWeekMs)
	require.Equal(t, uint64(captureUnix)*1000000, s.TimeUsec)
	require.Equal(t, uint8(3), s.FixType)
	require.Equal(t, uint8(13), s.SatellitesVisible)
	require.Equal(t, CliftonSuspensionBridge.Lat, s.Lat)
	require.Equal(t, CliftonSuspensionBridge.Lon, s.Lon)
	require.Equal(t, float32(5), s.Alt)
	require.Equal(t, float32(-1), s.Vd)
}

func TestNextSubdividesSecond(t *testing.T) {
	f := absoluteFeed(nil)
	require.Equal(t, 50*time.Millisecond, f.ToggleInterval())

	var tows []uint32
	for i := 0; i < 3; i++ {
		s, err := f.Next()
		require.NoError(t, err)
		tows = append(tows, s.TimeWeekMs)
	}
	require.Equal(t, []uint32{384573000, 384573050, 384573100}, tows)

	// A new second starts the count again.
	f.SetOffset(captureUnix + 1)
	s, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, uint32(384574000), s.TimeWeekMs)
	require.Equal(t, uint64(captureUnix+1)*1000000, s.TimeUsec)
}

func TestNextOffsetMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Offset = 86400
	f := NewFeed(cfg, nil, quietLogger())
	f.SetClock(func() time.Time { return time.Unix(captureUnix-86400, 400000000) })

	require.Equal(t, time.Unix(captureUnix, 0).UTC(), f.ReportedTime())
	s, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, uint32(384573000), s.TimeWeekMs)
}

func TestNextBeforeGPSEpoch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeAbsolute
	cfg.Offset = 0
	f := NewFeed(cfg, nil, quietLogger())

	_, err := f.Next()
	require.Error(t, err)
}

func TestToggleInterval(t *testing.T) {
	f := absoluteFeed(nil)
	require.Equal(t, time.Second, f.State().Interval)
	require.Equal(t, 50*time.Millisecond, f.ToggleInterval())
	require.Equal(t, time.Second, f.ToggleInterval())
}

func TestNudgeScalesWithInterval(t *testing.T) {
	f := absoluteFeed(nil)
	start := f.State().Position

	p := f.Nudge(North)
	require.Equal(t, start.Lat+200, p.Lat)
	p = f.Nudge(West)
	require.Equal(t, start.Lon-200, p.Lon)
	p = f.Nudge(Up)
	require.Equal(t, start.Alt+200, p.Alt)

	f.ToggleInterval()
	p = f.Nudge(South)
	require.Equal(t, start.Lat+190, p.Lat)
	p = f.Nudge(East)
	require.Equal(t, start.Lon-190, p.Lon)
	p = f.Nudge(Down)
	require.Equal(t, start.Alt+190, p.Alt)
}

func TestRunSendsUntilCancelled(t *testing.T) {
	sink := newRecordingSink()
	cfg := DefaultConfig()
	cfg.Mode = ModeAbsolute
	cfg.Offset = captureUnix
	cfg.Interval = 5 * time.Millisecond
	f := NewFeed(cfg, sink, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-sink.got:
		case <-time.After(2 * time.Second):
			t.Fatal("no sample")
		}
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.GreaterOrEqual(t, len(sink.samples), 3)
	for i := 1; i < len(sink.samples); i++ {
		require.Greater(t, sink.samples[i].TimeWeekMs, sink.samples[i-1].TimeWeekMs)
	}
}

func TestRunStopsOnSinkError(t *testing.T) {
	sink := newRecordingSink()
	sink.err = errors.New("network is unreachable")
	cfg := DefaultConfig()
	cfg.Mode = ModeAbsolute
	cfg.Offset = captureUnix
	cfg.Interval = time.Millisecond
	f := NewFeed(cfg, sink, quietLogger())

	err := f.Run(context.Background())
	require.ErrorIs(t, err, sink.err)
}

func TestRunPicksUpNewInterval(t *testing.T) {
	sink := newRecordingSink()
	cfg := DefaultConfig()
	cfg.Mode = ModeAbsolute
	cfg.Offset = captureUnix
	cfg.Interval = time.Hour
	cfg.FastInterval = 5 * time.Millisecond
	f := NewFeed(cfg, sink, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	f.ToggleInterval()
	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatal("the hour-long wait was not interrupted")
	}
}
