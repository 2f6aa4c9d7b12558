package mavlink

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// EncodeSigned assembles magic | frame | checksum | link | timestamp |
// signature for an already resolved timestamp.
func EncodeSigned(msg *Message, hdr Header, key SessionKey, linkID uint8, ts Timestamp) []byte {
	frame := buildFrame(hdr, IncompatSigned, msg.Def.ID, msg.payload)
	crc := FrameChecksum(frame, msg.Def.CRCExtra)
	sig := Sign(key, frame, crc, linkID, ts)

	out := make([]byte, 0, SignedLen(len(msg.payload)))
	out = append(out, Magic)
	out = append(out, frame...)
	out = append(out, byte(crc), byte(crc>>8), linkID)
	tsb := ts.Bytes()
	out = append(out, tsb[:]...)
	return append(out, sig[:]...)
}

// Encode resolves the signing timestamp against now and builds the
// signed packet.
func Encode(msg *Message, hdr Header, s Signing, now time.Time) ([]byte, Timestamp, error) {
	if s.Time == nil {
		return nil, 0, fmt.Errorf("no timestamp input: %w", ErrTimestampRange)
	}
	ts, err := s.Time.Resolve(now)
	if err != nil {
		return nil, 0, err
	}
	return EncodeSigned(msg, hdr, s.Key, s.LinkID, ts), ts, nil
}

// Packet is the structural view of one MAVLink v2 frame. Decoding it
// needs neither a message definition nor the key.
type Packet struct {
	Header
	PayloadLen    uint8
	IncompatFlags uint8
	CompatFlags   uint8
	MsgID         uint32
	Payload       []byte
	Checksum      uint16

	// Valid only when Signed reports true.
	LinkID    uint8
	Timestamp Timestamp
	Signature Signature

	frame []byte
}

// Decode parses the first frame in data. Bytes after it are ignored;
// WireLen reports how many were consumed.
func Decode(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input: %w", ErrTruncatedPacket)
	}
	if data[0] != Magic {
		return nil, fmt.Errorf("got 0x%02x, want 0x%02x: %w", data[0], Magic, ErrBadMagic)
	}
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("header needs %d bytes, got %d: %w", HeaderLen, len(data), ErrTruncatedPacket)
	}
	n := int(data[1])
	need := UnsignedLen(n)
	if data[2]&IncompatSigned != 0 {
		need = SignedLen(n)
	}
	if len(data) < need {
		return nil, fmt.Errorf("length %d needs %d bytes, got %d: %w", n, need, len(data), ErrTruncatedPacket)
	}

	frame := make([]byte, HeaderLen-1+n)
	copy(frame, data[1:HeaderLen+n])
	p := &Packet{
		Header: Header{
			Seq:         frame[3],
			SystemID:    frame[4],
			ComponentID: frame[5],
		},
		PayloadLen:    frame[0],
		IncompatFlags: frame[1],
		CompatFlags:   frame[2],
		MsgID:         uint32(frame[6]) | uint32(frame[7])<<8 | uint32(frame[8])<<16,
		Payload:       frame[HeaderLen-1:],
		frame:         frame,
	}
	pos := HeaderLen + n
	p.Checksum = uint16(data[pos]) | uint16(data[pos+1])<<8
	pos += ChecksumLen
	if p.Signed() {
		p.LinkID = data[pos]
		p.Timestamp, _ = ReadTimestamp(data[pos+1:])
		copy(p.Signature[:], data[pos+1+TimestampSize:])
	}
	return p, nil
}

// DecodeHex parses a hex capture and decodes it.
func DecodeHex(s string) (*Packet, error) {
	data, err := ParseHex(s)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (p *Packet) Signed() bool {
	return p.IncompatFlags&IncompatSigned != 0
}

// Frame returns the bytes the checksum covers, without the magic byte.
func (p *Packet) Frame() []byte {
	return p.frame
}

func (p *Packet) WireLen() int {
	if p.Signed() {
		return SignedLen(len(p.Payload))
	}
	return UnsignedLen(len(p.Payload))
}

// ChecksumValid recomputes the checksum with the message's crc_extra.
func (p *Packet) ChecksumValid(crcExtra byte) bool {
	return FrameChecksum(p.frame, crcExtra) == p.Checksum
}

// Verify reports whether the signature was made with key. Unsigned
// packets never verify.
func (p *Packet) Verify(key SessionKey) bool {
	if !p.Signed() {
		return false
	}
	return Verify(key, p.frame, p.Checksum, p.LinkID, p.Timestamp, p.Signature)
}

// Report is the result of inspecting a packet against a dialect and,
// optionally, a key. Mismatches are findings, not errors.
type Report struct {
	*Packet
	Def    *MessageDefinition
	Values []interface{}

	ChecksumChecked   bool
	ChecksumMismatch  bool
	SignatureChecked  bool
	SignatureMismatch bool
}

// Inspect unpacks the payload when the dialect knows the message and
// checks the checksum and, given a key, the signature.
func Inspect(p *Packet, d Dialect, key *SessionKey) (*Report, error) {
	r := &Report{Packet: p}
	if d != nil {
		if def, ok := d.Lookup(p.MsgID); ok {
			values, err := Unpack(def, p.Payload)
			if err != nil {
				return nil, err
			}
			r.Def = def
			r.Values = values
			r.ChecksumChecked = true
			r.ChecksumMismatch = !p.ChecksumValid(def.CRCExtra)
		}
	}
	if key != nil && p.Signed() {
		r.SignatureChecked = true
		r.SignatureMismatch = !p.Verify(*key)
	}
	return r, nil
}

// ParseHex reads a hex capture such as Wireshark's "copy as hex stream".
// Whitespace, ':' or '-' separators and 0x prefixes are accepted.
func ParseHex(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ':' || r == '-' || r == ','
	})
	var sb strings.Builder
	for _, f := range fields {
		if strings.HasPrefix(f, "0x") || strings.HasPrefix(f, "0X") {
			f = f[2:]
		}
		sb.WriteString(f)
	}
	digits := sb.String()
	if digits == "" {
		return nil, fmt.Errorf("no hex digits: %w", ErrHexParse)
	}
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex digits (%d): %w", len(digits), ErrHexParse)
	}
	data, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrHexParse)
	}
	return data, nil
}

// FormatHex renders bytes as space separated upper-case pairs.
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
