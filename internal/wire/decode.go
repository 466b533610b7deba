package wire

import (
	"encoding/binary"
	"fmt"
)

// Decoded is the result of sniffing one UDP payload's message family,
// for diagnostic tooling (cmd/scanhead-capture, cmd/scanhead-replay) that
// has no session context to route the payload through.
type Decoded struct {
	Kind    string
	Summary string
}

// DecodeAny inspects a raw UDP payload's magic value and decodes it as far
// as the wire package alone can, without session-level context like which
// scan head or camera it belongs to.
func DecodeAny(b []byte) (Decoded, error) {
	if len(b) < 2 {
		return Decoded{}, fmt.Errorf("wire: payload too short to carry a magic value: %d bytes", len(b))
	}
	magic := binary.BigEndian.Uint16(b[0:2])
	switch magic {
	case MagicData:
		p, err := UnmarshalDataPacket(b)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{
			Kind: "DataPacket",
			Summary: fmt.Sprintf("head=%d camera=%d laser=%d fragment=%d/%d payload=%dB",
				p.Header.ScanHeadID, p.Header.CameraID, p.Header.LaserID,
				p.Header.DatagramPosition+1, p.Header.NumberDatagrams, len(p.Payload)),
		}, nil
	case MagicStatusCommand:
		hdr, err := UnmarshalInfoHeader(b)
		if err != nil {
			return Decoded{}, err
		}
		switch hdr.Type {
		case TypeStatus:
			s, err := UnmarshalStatusMessage(b)
			if err != nil {
				return Decoded{}, err
			}
			return Decoded{
				Kind: "Status",
				Summary: fmt.Sprintf("serial=%d version=%d.%d.%d maxScanRate=%d",
					s.Serial, s.Version.Major, s.Version.Minor, s.Version.Patch, s.MaxScanRate),
			}, nil
		case TypeScanRequest:
			r, err := UnmarshalScanRequest(b)
			if err != nil {
				return Decoded{}, err
			}
			return Decoded{
				Kind:    "ScanRequest",
				Summary: fmt.Sprintf("head=%d seq=%d intervalUs=%d", r.ScanHeadID, r.RequestSequence, r.ScanIntervalUs),
			}, nil
		case TypeSetWindow:
			w, err := UnmarshalSetWindow(b)
			if err != nil {
				return Decoded{}, err
			}
			return Decoded{Kind: "SetWindow", Summary: fmt.Sprintf("camera=%d constraints=%d", w.CameraID, len(w.Constraints))}, nil
		case TypeDisconnect:
			return Decoded{Kind: "Disconnect", Summary: ""}, nil
		case TypeBroadcastConnect:
			c, err := UnmarshalBroadcastConnect(b)
			if err != nil {
				return Decoded{}, err
			}
			return Decoded{Kind: "BroadcastConnect", Summary: fmt.Sprintf("serial=%d sessionID=%d", c.Serial, c.SessionID)}, nil
		default:
			return Decoded{}, fmt.Errorf("wire: unrecognized message type %d", hdr.Type)
		}
	default:
		return Decoded{}, fmt.Errorf("wire: unrecognized magic 0x%04X", magic)
	}
}
