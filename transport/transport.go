// Package transport opens the byte channels packets travel over. The
// codec only needs bytes in and bytes out, so every endpoint is an
// io.ReadWriteCloser.
package transport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrNoPeer = errors.New("no peer has sent a datagram yet")

const DefaultBaud = 57600

// Endpoint is a parsed "scheme:address" string, e.g. "udpin:0.0.0.0:14550",
// "udpout:127.0.0.1:14550", "tcp:127.0.0.1:5760" or "serial:/dev/ttyUSB0:57600".
type Endpoint struct {
	Scheme  string
	Address string
	Baud    int
}

func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing scheme", s)
	}
	ep := Endpoint{Scheme: strings.ToLower(s[:i]), Address: s[i+1:]}
	if ep.Address == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing address", s)
	}
	switch ep.Scheme {
	case "udpin", "udpout", "tcp":
		if !strings.Contains(ep.Address, ":") {
			return Endpoint{}, fmt.Errorf("endpoint %q: address needs host:port", s)
		}
	case "serial":
		ep.Baud = DefaultBaud
		if j := strings.LastIndexByte(ep.Address, ':'); j > 0 {
			if baud, err := strconv.Atoi(ep.Address[j+1:]); err == nil {
				ep.Baud = baud
				ep.Address = ep.Address[:j]
			}
		}
	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unknown scheme %q", s, ep.Scheme)
	}
	return ep, nil
}

func (ep Endpoint) String() string {
	if ep.Scheme == "serial" {
		return fmt.Sprintf("serial:%s:%d", ep.Address, ep.Baud)
	}
	return ep.Scheme + ":" + ep.Address
}

// Open parses and opens an endpoint.
func Open(endpoint string) (io.ReadWriteCloser, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return ep.Open()
}

func (ep Endpoint) Open() (io.ReadWriteCloser, error) {
	switch ep.Scheme {
	case "udpin":
		return ListenUDP(ep.Address)
	case "udpout":
		return DialUDP(ep.Address)
	case "tcp":
		return DialTCP(ep.Address)
	case "serial":
		return OpenSerial(ep.Address, ep.Baud)
	}
	return nil, fmt.Errorf("unknown scheme %q", ep.Scheme)
}
