// Package l2cap frames PDUs in basic-mode L2CAP headers for the loopback
// link.
package l2cap

import (
	"encoding/binary"
	"fmt"
)

// Fixed LE channel identifiers.
const (
	ChannelATT      uint16 = 0x0004
	ChannelLESignal uint16 = 0x0005
	ChannelSMP      uint16 = 0x0006
)

// HeaderLen is Length (2 bytes) + Channel ID (2 bytes).
const HeaderLen = 4

// Packet is a basic-mode L2CAP frame.
type Packet struct {
	ChannelID uint16
	Payload   []byte
}

// NewATTPacket wraps an ATT PDU.
func NewATTPacket(payload []byte) *Packet {
	return &Packet{ChannelID: ChannelATT, Payload: payload}
}

// Encode writes the header (little-endian) followed by the payload.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderLen+len(p.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(p.Payload)))
	binary.LittleEndian.PutUint16(buf[2:4], p.ChannelID)
	copy(buf[HeaderLen:], p.Payload)
	return buf
}

// Decode parses one frame; trailing bytes are ignored.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("l2cap: packet too short (need at least %d bytes, got %d)", HeaderLen, len(data))
	}
	length := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) < HeaderLen+length {
		return nil, fmt.Errorf("l2cap: incomplete packet (claimed length %d, got %d)", length, len(data)-HeaderLen)
	}
	return &Packet{
		ChannelID: binary.LittleEndian.Uint16(data[2:4]),
		Payload:   append([]byte(nil), data[HeaderLen:HeaderLen+length]...),
	}, nil
}

// ChannelName returns a readable channel name for logs.
func ChannelName(cid uint16) string {
	switch cid {
	case ChannelATT:
		return "ATT"
	case ChannelLESignal:
		return "LE Signaling"
	case ChannelSMP:
		return "SMP"
	}
	return fmt.Sprintf("CID(0x%04X)", cid)
}
