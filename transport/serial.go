package transport

import (
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// SerialPort is a telemetry radio or USB link. It can reopen itself
// after the device node disappears, e.g. when the board reboots.
type SerialPort struct {
	name string
	baud int

	mu     sync.Mutex
	p      *serial.Port
	closed bool
}

func OpenSerial(name string, baud int) (*SerialPort, error) {
	s := &SerialPort{name: name, baud: baud}
	p, err := serial.OpenPort(s.config())
	if err != nil {
		return nil, err
	}
	s.p = p
	return s, nil
}

func (s *SerialPort) config() *serial.Config {
	return &serial.Config{
		Name:        s.name,
		Baud:        s.baud,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Reconnect waits for the device node to come back and reopens it. It
// gives up with os.ErrClosed once Close has been called.
func (s *SerialPort) Reconnect() error {
	s.mu.Lock()
	if s.p != nil {
		_ = s.p.Close()
		s.p = nil
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return os.ErrClosed
		}
		// Opening a missing port on macOS can reset the USB hub.
		if s.portIsPresent() {
			p, err := serial.OpenPort(s.config())
			if err != nil {
				return err
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.closed {
				_ = p.Close()
				return os.ErrClosed
			}
			s.p = p
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *SerialPort) portIsPresent() bool {
	if runtime.GOOS == "windows" {
		return true
	}
	_, err := os.Stat(s.name)
	return err == nil
}

func (s *SerialPort) port() *serial.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

// Read blocks until data arrives. The port's read timeout surfaces as
// an empty io.EOF read, which is retried.
func (s *SerialPort) Read(p []byte) (int, error) {
	for {
		port := s.port()
		if port == nil {
			return 0, os.ErrClosed
		}
		n, err := port.Read(p)
		if n == 0 && err == io.EOF {
			continue
		}
		return n, err
	}
}

func (s *SerialPort) Write(p []byte) (int, error) {
	port := s.port()
	if port == nil {
		return 0, os.ErrClosed
	}
	return port.Write(p)
}

func (s *SerialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.p == nil {
		return nil
	}
	err := s.p.Close()
	s.p = nil
	return err
}
