package link

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gtu-nova/mavsign/dialect"
	"github.com/gtu-nova/mavsign/mavlink"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func testOptions() Options {
	return Options{
		Key:         mavlink.NewSessionKey("secret"),
		LinkID:      1,
		SystemID:    255,
		ComponentID: 230,
		Seq:         254,
		Dialect:     dialect.Default(),
		Now: func() time.Time {
			return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		},
	}
}

func mustMessage(t *testing.T, id uint32, values ...interface{}) *mavlink.Message {
	t.Helper()
	def, ok := dialect.Default().Lookup(id)
	require.True(t, ok)
	msg, err := mavlink.NewMessage(def, values...)
	require.NoError(t, err)
	return msg
}

func TestSendAndReadPacket(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tx := New(c1, testOptions(), quietLogger())
	rx := New(c2, testOptions(), quietLogger())

	msg := mustMessage(t, dialect.CommandLong, dialect.DoSetMode(1, dialect.BaseModeArmedCustom, dialect.CopterModeLand).Values()...)

	sent := make(chan []byte, 3)
	go func() {
		for i := 0; i < 3; i++ {
			pkt, _, err := tx.Send(msg, mavlink.OffsetTime(time.Hour))
			if err != nil {
				close(sent)
				return
			}
			sent <- pkt
		}
	}()

	for _, wantSeq := range []uint8{254, 255, 0} {
		p, err := rx.ReadPacket()
		require.NoError(t, err)
		require.Equal(t, wantSeq, p.Seq)
		require.Equal(t, uint32(dialect.CommandLong), p.MsgID)
		require.True(t, p.Verify(mavlink.NewSessionKey("secret")))
		require.True(t, testOptions().Now().Add(time.Hour).Equal(p.Timestamp.Time()))
		require.Equal(t, uint8(1), p.LinkID)
		<-sent
	}
}

func TestReadPacketResyncsAndRejectsBadChecksum(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	msg := mustMessage(t, dialect.Timesync, 0, int64(1700000000000000000), 0, 0)
	good := mavlink.EncodeSigned(msg, mavlink.Header{Seq: 1, SystemID: 1, ComponentID: 1}, mavlink.NewSessionKey("k"), 0, 5)
	bad := append([]byte(nil), good...)
	bad[mavlink.HeaderLen] ^= 0x01

	go func() {
		_, _ = c1.Write([]byte{0x00, 0x55, 0xFE})
		_, _ = c1.Write(bad)
		_, _ = c1.Write(good)
	}()

	rx := New(c2, testOptions(), quietLogger())

	_, err := rx.ReadPacket()
	var perr *mavlink.InvalidPacketError
	require.True(t, errors.As(err, &perr), "got %v", err)

	p, err := rx.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, uint8(1), p.Seq)

	var ts dialect.TimesyncData
	require.NoError(t, Read(p, &ts))
	require.Equal(t, int64(0), ts.Tc1)
	require.Equal(t, int64(1700000000000000000), ts.Ts1)
}

func TestMainLoopDispatch(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()

	rx := New(c2, testOptions(), quietLogger())

	timesync := make(chan *mavlink.Packet, 1)
	other := make(chan *mavlink.Packet, 1)
	rx.AddCallbacks([]uint32{dialect.Timesync}, []Callback{
		func(p *mavlink.Packet, _ *Link) error {
			timesync <- p
			return nil
		},
	})
	rx.Start(func(p *mavlink.Packet, _ *Link) error {
		other <- p
		return errors.New("logged, not fatal")
	})

	tx := New(c1, testOptions(), quietLogger())
	go func() {
		_, _, _ = tx.Send(mustMessage(t, dialect.SystemTime, uint64(1), uint32(2)), mavlink.OffsetTime(0))
		_, _, _ = tx.Send(mustMessage(t, dialect.Timesync, 0, 1, 0, 0), mavlink.OffsetTime(0))
	}()

	select {
	case p := <-other:
		require.Equal(t, uint32(dialect.SystemTime), p.MsgID)
	case <-time.After(2 * time.Second):
		t.Fatal("no SYSTEM_TIME dispatched")
	}
	select {
	case p := <-timesync:
		require.Equal(t, uint32(dialect.Timesync), p.MsgID)
	case <-time.After(2 * time.Second):
		t.Fatal("no TIMESYNC dispatched")
	}

	require.NoError(t, rx.Close())
	select {
	case <-rx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("main loop did not stop")
	}
}

func TestWaitHeartbeat(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	rx := New(c2, testOptions(), quietLogger())

	// Unsigned HEARTBEAT as an autopilot sends it.
	payload := []byte{0x04, 0x00, 0x00, 0x00, 0x02, 0x03, 0x51, 0x04, 0x03}
	frame := append([]byte{byte(len(payload)), 0x00, 0x00, 0x07, 0x01, 0x01, 0x00, 0x00, 0x00}, payload...)
	crc := mavlink.FrameChecksum(frame, 50)
	heartbeat := append(append([]byte{mavlink.Magic}, frame...), byte(crc), byte(crc>>8))

	go func() {
		_, _ = c1.Write(mavlink.EncodeSigned(mustMessage(t, dialect.SystemTime, 1, 2),
			mavlink.Header{}, mavlink.NewSessionKey("k"), 0, 1))
		_, _ = c1.Write(heartbeat)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := rx.WaitHeartbeat(ctx)
	require.NoError(t, err)
	require.False(t, p.Signed())
	require.Equal(t, uint8(1), p.SystemID)
}

func TestWaitHeartbeatTimeout(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	rx := New(c2, testOptions(), quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rx.WaitHeartbeat(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitHeartbeatTimeoutLeavesLinkUsable(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	rx := New(c2, testOptions(), quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rx.WaitHeartbeat(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Nothing left behind may steal the next frame.
	go func() {
		_, _ = c1.Write(mavlink.EncodeSigned(mustMessage(t, dialect.SystemTime, 1, 2),
			mavlink.Header{Seq: 42}, mavlink.NewSessionKey("k"), 0, 1))
	}()
	p, err := rx.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, uint8(42), p.Seq)
}

func TestAddCallbacksLengthMismatch(t *testing.T) {
	l := New(nil, testOptions(), quietLogger())
	require.Panics(t, func() {
		l.AddCallbacks([]uint32{1, 2}, []Callback{nil})
	})
}

// flakyPort hands out a new connection each time it reconnects.
type flakyPort struct {
	mu    sync.Mutex
	conns []net.Conn
	cur   int
}

func (f *flakyPort) conn() net.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[f.cur]
}

func (f *flakyPort) Read(p []byte) (int, error)  { return f.conn().Read(p) }
func (f *flakyPort) Write(p []byte) (int, error) { return f.conn().Write(p) }
func (f *flakyPort) Close() error                { return f.conn().Close() }

func (f *flakyPort) Reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur+1 >= len(f.conns) {
		return errors.New("device gone")
	}
	f.cur++
	return nil
}

func TestMainLoopReconnects(t *testing.T) {
	a1, a2 := net.Pipe()
	b1, b2 := net.Pipe()
	defer b1.Close()
	port := &flakyPort{conns: []net.Conn{a2, b2}}

	rx := New(port, testOptions(), quietLogger())
	got := make(chan *mavlink.Packet, 1)
	rx.Start(func(p *mavlink.Packet, _ *Link) error {
		got <- p
		return nil
	})

	// The board reboots, the second connection carries on.
	require.NoError(t, a1.Close())
	go func() {
		_, _ = b1.Write(mavlink.EncodeSigned(mustMessage(t, dialect.SystemTime, 1, 2),
			mavlink.Header{Seq: 9}, mavlink.NewSessionKey("k"), 0, 1))
	}()

	select {
	case p := <-got:
		require.Equal(t, uint8(9), p.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("nothing read after reconnecting")
	}

	require.NoError(t, rx.Close())
	select {
	case <-rx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("main loop did not stop")
	}
}
