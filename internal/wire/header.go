// Package wire implements the binary datagram formats exchanged between the
// host and scan heads: the shared info header, the five command/status
// message kinds, and the larger data-packet header used for profile
// fragments. All multi-byte integers are network (big-endian) byte order.
package wire

import (
	"encoding/binary"
	"fmt"
)

// CommandPort is the UDP port scan heads listen on for commands.
const CommandPort = 12346

// HostMajorVersion is this client's wire protocol major version. A scan
// head's reported version is compatible only when its major version
// matches this one.
const HostMajorVersion uint32 = 1

// Magic values identifying a datagram's message family. Status and command
// messages share MagicStatusCommand; direction (host vs. scan head)
// disambiguates which of the two it is.
const (
	MagicStatusCommand uint16 = 0xFACE
	MagicData          uint16 = 0xFACD
)

// MessageType identifies the payload that follows an InfoHeader.
type MessageType uint8

const (
	TypeScanRequest      MessageType = 2
	TypeStatus           MessageType = 3
	TypeSetWindow        MessageType = 4
	TypeDisconnect       MessageType = 6
	TypeBroadcastConnect MessageType = 7
)

func (t MessageType) String() string {
	switch t {
	case TypeScanRequest:
		return "ScanRequest"
	case TypeStatus:
		return "Status"
	case TypeSetWindow:
		return "SetWindow"
	case TypeDisconnect:
		return "Disconnect"
	case TypeBroadcastConnect:
		return "BroadcastConnect"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// InfoHeaderSize is the fixed size, in bytes, of an InfoHeader.
const InfoHeaderSize = 4

// InfoHeader is the 4-byte header shared by every command and status
// message. Data packets use the larger DatagramHeader instead.
type InfoHeader struct {
	Magic uint16
	Size  uint8
	Type  MessageType
}

// Marshal writes the header to a 4-byte big-endian encoding.
func (h InfoHeader) Marshal() []byte {
	buf := make([]byte, InfoHeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], h.Magic)
	buf[2] = h.Size
	buf[3] = uint8(h.Type)
	return buf
}

// UnmarshalInfoHeader reads a 4-byte header from b.
func UnmarshalInfoHeader(b []byte) (InfoHeader, error) {
	if len(b) < InfoHeaderSize {
		return InfoHeader{}, fmt.Errorf("wire: short header: need %d bytes, got %d", InfoHeaderSize, len(b))
	}
	return InfoHeader{
		Magic: binary.BigEndian.Uint16(b[0:2]),
		Size:  b[2],
		Type:  MessageType(b[3]),
	}, nil
}
