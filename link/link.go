package link

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gtu-nova/mavsign/mavlink"
)

type Callback func(p *mavlink.Packet, l *Link) error

// Reconnecter is a transport that can reopen itself after the device
// went away, such as a serial port on a rebooting board.
type Reconnecter interface {
	Reconnect() error
}

// Options configure how a Link signs what it sends.
type Options struct {
	Key         mavlink.SessionKey
	LinkID      uint8
	SystemID    uint8
	ComponentID uint8
	// Seq is the sequence number of the first packet sent.
	Seq uint8
	// Dialect is used to drop frames with a bad checksum. Unknown
	// messages are passed through unchecked.
	Dialect mavlink.Dialect
	Now     func() time.Time
}

// Link represents a MAVLink connection to a vehicle. Use New() to wrap a
// transport and Start() to dispatch incoming packets to callbacks.
type Link struct {
	port   io.ReadWriter
	r      *bufio.Reader
	opts   Options
	logger *logrus.Logger

	mu          sync.Mutex
	seq         uint8
	callbackMap map[uint32]Callback

	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func New(port io.ReadWriter, opts Options, logger *logrus.Logger) *Link {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Link{
		port:        port,
		r:           bufio.NewReaderSize(port, 4096),
		opts:        opts,
		logger:      logger,
		seq:         opts.Seq,
		callbackMap: make(map[uint32]Callback),
		closeChan:   make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (l *Link) AddCallback(msgID uint32, fn Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbackMap[msgID] = fn
}

func (l *Link) AddCallbacks(msgIDs []uint32, fns []Callback) {
	if len(msgIDs) != len(fns) {
		panic("The ids slice and the functions slice are not equal")
	}

	for i, id := range msgIDs {
		l.AddCallback(id, fns[i])
	}
}

func (l *Link) nextSeq() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq := l.seq
	l.seq++
	return seq
}

// Send signs msg with the next sequence number and writes it. The raw
// packet and the timestamp it was signed with are returned.
func (l *Link) Send(msg *mavlink.Message, when mavlink.TimestampInput) ([]byte, mavlink.Timestamp, error) {
	hdr := mavlink.Header{
		Seq:         l.nextSeq(),
		SystemID:    l.opts.SystemID,
		ComponentID: l.opts.ComponentID,
	}
	signing := mavlink.Signing{Key: l.opts.Key, LinkID: l.opts.LinkID, Time: when}
	pkt, ts, err := mavlink.Encode(msg, hdr, signing, l.opts.Now())
	if err != nil {
		return nil, 0, err
	}
	if _, err := l.WriteRaw(pkt); err != nil {
		return nil, 0, err
	}
	return pkt, ts, nil
}

// WriteRaw sends bytes unchanged, e.g. a replayed capture.
func (l *Link) WriteRaw(pkt []byte) (int, error) {
	if l.logger.IsLevelEnabled(logrus.DebugLevel) {
		l.logger.Debugf("< %s\n", hex.EncodeToString(pkt))
	}
	return l.port.Write(pkt)
}

// ReadPacket reads the next MAVLink v2 frame, skipping anything before
// the magic byte. Frames that cannot be used come back as
// *mavlink.InvalidPacketError; any other error is from the transport.
func (l *Link) ReadPacket() (*mavlink.Packet, error) {
	skipped := 0
	for {
		b, err := l.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == mavlink.Magic {
			break
		}
		skipped++
	}
	if skipped > 0 {
		l.logger.Debugf("skipped %d bytes before magic\n", skipped)
	}

	buf := make([]byte, mavlink.HeaderLen)
	buf[0] = mavlink.Magic
	if _, err := io.ReadFull(l.r, buf[1:]); err != nil {
		return nil, err
	}
	size := mavlink.UnsignedLen(int(buf[1]))
	if buf[2]&mavlink.IncompatSigned != 0 {
		size = mavlink.SignedLen(int(buf[1]))
	}
	buf = append(buf, make([]byte, size-mavlink.HeaderLen)...)
	if _, err := io.ReadFull(l.r, buf[mavlink.HeaderLen:]); err != nil {
		return nil, err
	}

	if l.logger.IsLevelEnabled(logrus.DebugLevel) {
		l.logger.Debugf("> %s\n", hex.EncodeToString(buf))
	}

	if flags := buf[2] &^ mavlink.IncompatSigned; flags != 0 {
		return nil, fmt.Errorf("unsupported incompat flags 0x%02x: %w", flags,
			&mavlink.InvalidPacketError{Reason: "incompat flags"})
	}
	p, err := mavlink.Decode(buf)
	if err != nil {
		return nil, &mavlink.InvalidPacketError{Reason: err.Error()}
	}
	if l.opts.Dialect != nil {
		if def, ok := l.opts.Dialect.Lookup(p.MsgID); ok && !p.ChecksumValid(def.CRCExtra) {
			return nil, fmt.Errorf("invalid CRC 0x%04x in msg %s seq %d: %w",
				p.Checksum, def.Name, p.Seq, &mavlink.InvalidPacketError{Reason: "checksum"})
		}
	}
	return p, nil
}

// readDeadliner is a transport whose blocked reads can be interrupted.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// WaitPacket reads until a packet with msgID arrives or ctx ends. It must
// not be used while the main loop is running. When ctx ends on a
// transport with read deadlines, the pending read is interrupted and the
// Link stays usable; on other transports (serial) the abandoned read
// keeps consuming bytes, so the Link must be closed afterwards.
func (l *Link) WaitPacket(ctx context.Context, msgID uint32) (*mavlink.Packet, error) {
	type result struct {
		p   *mavlink.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			p, err := l.ReadPacket()
			if ctx.Err() != nil {
				ch <- result{err: ctx.Err()}
				return
			}
			if err != nil {
				var perr *mavlink.InvalidPacketError
				if errors.As(err, &perr) {
					l.logger.Warnf("Invalid packet (%v)\n", err)
					continue
				}
				ch <- result{err: err}
				return
			}
			if p.MsgID == msgID {
				ch <- result{p: p}
				return
			}
		}
	}()
	select {
	case r := <-ch:
		return r.p, r.err
	case <-ctx.Done():
	}

	d, ok := l.port.(readDeadliner)
	if !ok || d.SetReadDeadline(time.Now()) != nil {
		return nil, ctx.Err()
	}
	<-ch
	_ = d.SetReadDeadline(time.Time{})
	return nil, ctx.Err()
}

// WaitHeartbeat blocks until the vehicle announces itself.
func (l *Link) WaitHeartbeat(ctx context.Context) (*mavlink.Packet, error) {
	return l.WaitPacket(ctx, 0)
}

// Start dispatches packets in the background. Packets without a
// dedicated callback go to onPacket.
func (l *Link) Start(onPacket Callback) {
	go l.mainLoop(onPacket)
}

// Close stops the main loop and closes the transport if it can be closed.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeChan)
		if c, ok := l.port.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// Done is closed when the main loop has ended.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) closed() bool {
	select {
	case <-l.closeChan:
		return true
	default:
		return false
	}
}

func (l *Link) mainLoop(onPacket Callback) {
	defer close(l.done)
	defer l.logger.Info("Main loop ended")
	for !l.closed() {
		p, err := l.ReadPacket()
		if err != nil {
			var perr *mavlink.InvalidPacketError
			if errors.As(err, &perr) {
				l.logger.Warnf("Invalid packet (%v)\n", err)
				continue
			}
			if l.closed() {
				return
			}
			if rc, ok := l.port.(Reconnecter); ok {
				l.logger.Warnf("Connection lost (%v), reconnecting\n", err)
				if err := rc.Reconnect(); err == nil {
					l.r.Reset(l.port)
					l.logger.Info("Reconnected\n")
					continue
				}
			}
			l.logger.Errorf("Connection lost (%v)\n", err)
			return
		}

		l.mu.Lock()
		callback, found := l.callbackMap[p.MsgID]
		l.mu.Unlock()
		if !found {
			callback = onPacket
		}
		if callback == nil {
			continue
		}
		if err := callback(p, l); err != nil {
			l.logger.Errorf("Error in callback for message %d (%v)\n", p.MsgID, err)
		}
	}
}
