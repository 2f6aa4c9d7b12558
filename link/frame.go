package link

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gtu-nova/mavsign/mavlink"
)

// Read decodes the payload of p into out, a pointer to a struct of
// fixed-size fields declared in wire order. Truncated trailing zeros are
// restored first.
func Read(p *mavlink.Packet, out interface{}) error {
	size := binary.Size(out)
	if size < 0 {
		return fmt.Errorf("can't decode MAVLink payload into type %T", out)
	}
	buf := make([]byte, size)
	copy(buf, p.Payload)
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, out)
}
