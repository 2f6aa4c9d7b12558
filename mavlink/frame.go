package mavlink

const (
	Magic = 0xFD

	// IncompatSigned is the incompat flag bit announcing a signature.
	IncompatSigned = 0x01

	HeaderLen     = 10 // magic + 9 header bytes
	ChecksumLen   = 2
	SignatureLen  = 6
	SigningLen    = 1 + TimestampSize + SignatureLen // link id, timestamp, signature
	MaxPayloadLen = 255
	MaxMessageID  = 1<<24 - 1
)

// Header holds the per-packet identifiers a sender chooses.
type Header struct {
	Seq         uint8
	SystemID    uint8
	ComponentID uint8
}

// UnsignedLen is the wire size of a frame carrying n payload bytes
// without a signature.
func UnsignedLen(n int) int {
	return HeaderLen + n + ChecksumLen
}

// SignedLen is the wire size of a signed frame carrying n payload bytes.
func SignedLen(n int) int {
	return UnsignedLen(n) + SigningLen
}

// buildFrame lays out the unsigned frame body (everything the checksum
// covers except crc_extra): len, flags, seq, ids, 24-bit msgid, payload.
func buildFrame(hdr Header, incompat uint8, msgID uint32, payload []byte) []byte {
	frame := make([]byte, 0, HeaderLen-1+len(payload))
	frame = append(frame,
		byte(len(payload)),
		incompat,
		0,
		hdr.Seq,
		hdr.SystemID,
		hdr.ComponentID,
		byte(msgID),
		byte(msgID>>8),
		byte(msgID>>16),
	)
	return append(frame, payload...)
}
