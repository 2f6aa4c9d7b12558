package mavlink

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SessionKey is the 32-byte secret shared with the vehicle. It is derived
// once per signing session and reused for every packet.
type SessionKey [sha256.Size]byte

// NewSessionKey hashes a passphrase the same way MAVProxy's signing
// module does.
func NewSessionKey(passphrase string) SessionKey {
	return sha256.Sum256([]byte(passphrase))
}

// Signature is the truncated SHA-256 carried at the end of a signed frame.
type Signature [SignatureLen]byte

// Sign computes SHA256(key | 0xFD | frame | crc | link | timestamp) and
// keeps the first six bytes. frame excludes the magic byte.
func Sign(key SessionKey, frame []byte, crc uint16, linkID uint8, ts Timestamp) Signature {
	h := sha256.New()
	h.Write(key[:])
	h.Write([]byte{Magic})
	h.Write(frame)
	h.Write([]byte{byte(crc), byte(crc >> 8), linkID})
	tsb := ts.Bytes()
	h.Write(tsb[:])

	var sig Signature
	copy(sig[:], h.Sum(nil))
	return sig
}

// Verify recomputes the signature and compares it in constant time. It
// does not judge the timestamp.
func Verify(key SessionKey, frame []byte, crc uint16, linkID uint8, ts Timestamp, sig Signature) bool {
	want := Sign(key, frame, crc, linkID, ts)
	return subtle.ConstantTimeCompare(want[:], sig[:]) == 1
}

// Signing carries what a sender needs to sign one packet.
type Signing struct {
	Key    SessionKey
	LinkID uint8
	Time   TimestampInput
}
