package mavlink

import "errors"

var (
	ErrFieldCountMismatch = errors.New("field count mismatch")
	ErrFieldRange         = errors.New("value out of field range")
	ErrTimestampRange     = errors.New("timestamp out of range")
	ErrTruncatedPacket    = errors.New("truncated packet")
	ErrBadMagic           = errors.New("bad magic byte")
	ErrHexParse           = errors.New("malformed hex input")
	ErrUnknownMessage     = errors.New("unknown message")
	ErrBadDefinition      = errors.New("bad message definition")
)

// InvalidPacketError marks bytes read off a link that could not be
// framed. Readers log it and resynchronise instead of giving up.
type InvalidPacketError struct {
	Reason string
}

func (e *InvalidPacketError) Error() string {
	if e.Reason == "" {
		return "invalid packet"
	}
	return "invalid packet: " + e.Reason
}
