package transport

import (
	"net"
	"sync"
	"time"
)

// UDPIn listens on a local address and answers whoever spoke last, the
// way a ground station waits for the vehicle's heartbeat.
type UDPIn struct {
	conn *net.UDPConn

	mu   sync.Mutex
	peer *net.UDPAddr
}

func ListenUDP(address string) (*UDPIn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPIn{conn: conn}, nil
}

func (u *UDPIn) Read(p []byte) (int, error) {
	n, addr, err := u.conn.ReadFromUDP(p)
	if addr != nil {
		u.mu.Lock()
		u.peer = addr
		u.mu.Unlock()
	}
	return n, err
}

func (u *UDPIn) Write(p []byte) (int, error) {
	peer := u.Peer()
	if peer == nil {
		return 0, ErrNoPeer
	}
	return u.conn.WriteToUDP(p, peer)
}

// Peer is the source of the most recent datagram, or nil.
func (u *UDPIn) Peer() *net.UDPAddr {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.peer
}

// SetPeer points writes at a fixed address before anything was received.
func (u *UDPIn) SetPeer(addr *net.UDPAddr) {
	u.mu.Lock()
	u.peer = addr
	u.mu.Unlock()
}

func (u *UDPIn) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDPIn) SetReadDeadline(t time.Time) error {
	return u.conn.SetReadDeadline(t)
}

func (u *UDPIn) Close() error {
	return u.conn.Close()
}

// DialUDP sends to a fixed remote address.
func DialUDP(address string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", nil, addr)
}

func DialTCP(address string) (net.Conn, error) {
	return net.DialTimeout("tcp", address, 5*time.Second)
}
