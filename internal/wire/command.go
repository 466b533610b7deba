package wire

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// ConnectionKind selects how a scan head should interpret a BroadcastConnect.
type ConnectionKind uint8

const (
	ConnectionNormal  ConnectionKind = 0
	ConnectionMappler ConnectionKind = 1
)

// BroadcastConnectSize is the fixed wire size of a BroadcastConnect command.
const BroadcastConnectSize = InfoHeaderSize + 4 + 2 + 1 + 1 + 1 + 4

// BroadcastConnect is the type=7 command the host broadcasts to the limited
// broadcast address to discover and claim a scan head by serial number.
type BroadcastConnect struct {
	DestIP         uint32 // host's chosen receive address for this head
	DestPort       uint16 // host's chosen receive port; 0 means "use the scan-head default"
	SessionID      uint8
	ScanHeadID     uint8
	ConnectionKind ConnectionKind
	Serial         uint32
}

// Marshal encodes the command to its wire form.
func (c BroadcastConnect) Marshal() []byte {
	buf := make([]byte, BroadcastConnectSize)
	header := InfoHeader{Magic: MagicStatusCommand, Size: BroadcastConnectSize, Type: TypeBroadcastConnect}
	copy(buf, header.Marshal())
	o := InfoHeaderSize
	binary.BigEndian.PutUint32(buf[o:o+4], c.DestIP)
	o += 4
	binary.BigEndian.PutUint16(buf[o:o+2], c.DestPort)
	o += 2
	buf[o] = c.SessionID
	o++
	buf[o] = c.ScanHeadID
	o++
	buf[o] = uint8(c.ConnectionKind)
	o++
	binary.BigEndian.PutUint32(buf[o:o+4], c.Serial)
	return buf
}

// UnmarshalBroadcastConnect decodes a BroadcastConnect from its wire form,
// including the leading InfoHeader.
func UnmarshalBroadcastConnect(b []byte) (BroadcastConnect, error) {
	if len(b) < BroadcastConnectSize {
		return BroadcastConnect{}, fmt.Errorf("wire: short BroadcastConnect: need %d bytes, got %d", BroadcastConnectSize, len(b))
	}
	header, err := UnmarshalInfoHeader(b)
	if err != nil {
		return BroadcastConnect{}, err
	}
	if header.Magic != MagicStatusCommand {
		return BroadcastConnect{}, fmt.Errorf("wire: BroadcastConnect: bad magic 0x%04X", header.Magic)
	}
	if header.Type != TypeBroadcastConnect {
		return BroadcastConnect{}, fmt.Errorf("wire: BroadcastConnect: bad type %v", header.Type)
	}
	o := InfoHeaderSize
	c := BroadcastConnect{
		DestIP:   binary.BigEndian.Uint32(b[o : o+4]),
		DestPort: binary.BigEndian.Uint16(b[o+4 : o+6]),
	}
	o += 6
	c.SessionID = b[o]
	c.ScanHeadID = b[o+1]
	c.ConnectionKind = ConnectionKind(b[o+2])
	o += 3
	c.Serial = binary.BigEndian.Uint32(b[o : o+4])
	return c, nil
}

// DisconnectSize is the wire size of a Disconnect command: header only.
const DisconnectSize = InfoHeaderSize

// MarshalDisconnect encodes a type=6 Disconnect command.
func MarshalDisconnect() []byte {
	header := InfoHeader{Magic: MagicStatusCommand, Size: DisconnectSize, Type: TypeDisconnect}
	return header.Marshal()
}

// Constraint is one half-plane edge constraint, endpoints in 1/1000 inch.
type Constraint struct {
	X1, Y1, X2, Y2 int32
}

// SetWindow is the type=4 command pushing window-constraint half-planes to a
// single camera on a scan head.
type SetWindow struct {
	CameraID    uint8
	Constraints []Constraint
}

// Marshal encodes the command, including header and size byte.
func (w SetWindow) Marshal() []byte {
	size := InfoHeaderSize + 4 + len(w.Constraints)*16
	buf := make([]byte, size)
	header := InfoHeader{Magic: MagicStatusCommand, Size: uint8(size), Type: TypeSetWindow}
	copy(buf, header.Marshal())
	o := InfoHeaderSize
	buf[o] = w.CameraID
	// three pad bytes follow, left zero
	o += 4
	for _, c := range w.Constraints {
		binary.BigEndian.PutUint32(buf[o:o+4], uint32(c.X1))
		binary.BigEndian.PutUint32(buf[o+4:o+8], uint32(c.Y1))
		binary.BigEndian.PutUint32(buf[o+8:o+12], uint32(c.X2))
		binary.BigEndian.PutUint32(buf[o+12:o+16], uint32(c.Y2))
		o += 16
	}
	return buf
}

// UnmarshalSetWindow decodes a SetWindow command, including its header.
func UnmarshalSetWindow(b []byte) (SetWindow, error) {
	if len(b) < InfoHeaderSize+4 {
		return SetWindow{}, fmt.Errorf("wire: short SetWindow: got %d bytes", len(b))
	}
	header, err := UnmarshalInfoHeader(b)
	if err != nil {
		return SetWindow{}, err
	}
	if header.Type != TypeSetWindow {
		return SetWindow{}, fmt.Errorf("wire: SetWindow: bad type %v", header.Type)
	}
	if int(header.Size) != len(b) {
		return SetWindow{}, fmt.Errorf("wire: SetWindow: header size %d does not match payload length %d", header.Size, len(b))
	}
	o := InfoHeaderSize
	w := SetWindow{CameraID: b[o]}
	o += 4
	remaining := len(b) - o
	if remaining%16 != 0 {
		return SetWindow{}, fmt.Errorf("wire: SetWindow: trailing %d bytes is not a multiple of constraint size", remaining)
	}
	n := remaining / 16
	w.Constraints = make([]Constraint, n)
	for i := 0; i < n; i++ {
		w.Constraints[i] = Constraint{
			X1: int32(binary.BigEndian.Uint32(b[o : o+4])),
			Y1: int32(binary.BigEndian.Uint32(b[o+4 : o+8])),
			X2: int32(binary.BigEndian.Uint32(b[o+8 : o+12])),
			Y2: int32(binary.BigEndian.Uint32(b[o+12 : o+16])),
		}
		o += 16
	}
	return w, nil
}

// Data-type bits selecting which per-pixel quantities a scan request asks
// for, and which a data packet carries.
const (
	DataTypeBrightness    uint16 = 1
	DataTypeXY            uint16 = 2
	DataTypeWidth         uint16 = 4
	DataTypeSecondMoment  uint16 = 8
	DataTypeSubpixel      uint16 = 16
	DataTypeImage         uint16 = 32
)

// ScanRequestFixedSize is the size of a ScanRequest before its variable-length
// step vector.
const ScanRequestFixedSize = 74

// ScanRequest is the type=2 command that starts or keeps alive continuous
// scanning on one scan head.
type ScanRequest struct {
	ClientIP                uint32
	ClientPort              uint16
	RequestSequence         uint8
	ScanHeadID              uint8
	CameraID                uint8
	LaserID                 uint8
	Deprecated              uint8
	Flags                   uint8
	LaserExposureMinUs      uint32
	LaserExposureDefUs      uint32
	LaserExposureMaxUs      uint32
	CameraExposureMinUs     uint32
	CameraExposureDefUs     uint32
	CameraExposureMaxUs     uint32
	LaserDetectionThreshold uint32
	SaturationThreshold     uint32
	SaturationPercentage    uint32
	TargetAverageIntensity  uint32
	ScanIntervalUs          uint32
	ScanOffsetUs            uint32
	NumberOfScans           uint32
	DataTypeMask            uint16
	StartColumn             uint16
	EndColumn               uint16
	Steps                   []uint16 // one entry per set bit of DataTypeMask, ascending bit order
}

// Size returns the total wire size of the request given its current steps.
func (r ScanRequest) Size() int {
	return ScanRequestFixedSize + 2*bits.OnesCount16(r.DataTypeMask)
}

// Marshal encodes the request, including header and size byte.
func (r ScanRequest) Marshal() []byte {
	size := r.Size()
	buf := make([]byte, size)
	header := InfoHeader{Magic: MagicStatusCommand, Size: uint8(size), Type: TypeScanRequest}
	copy(buf, header.Marshal())

	binary.BigEndian.PutUint32(buf[4:8], r.ClientIP)
	binary.BigEndian.PutUint16(buf[8:10], r.ClientPort)
	buf[10] = r.RequestSequence
	buf[11] = r.ScanHeadID
	buf[12] = r.CameraID
	buf[13] = r.LaserID
	buf[14] = r.Deprecated
	buf[15] = r.Flags
	binary.BigEndian.PutUint32(buf[16:20], r.LaserExposureMinUs)
	binary.BigEndian.PutUint32(buf[20:24], r.LaserExposureDefUs)
	binary.BigEndian.PutUint32(buf[24:28], r.LaserExposureMaxUs)
	binary.BigEndian.PutUint32(buf[28:32], r.CameraExposureMinUs)
	binary.BigEndian.PutUint32(buf[32:36], r.CameraExposureDefUs)
	binary.BigEndian.PutUint32(buf[36:40], r.CameraExposureMaxUs)
	binary.BigEndian.PutUint32(buf[40:44], r.LaserDetectionThreshold)
	binary.BigEndian.PutUint32(buf[44:48], r.SaturationThreshold)
	binary.BigEndian.PutUint32(buf[48:52], r.SaturationPercentage)
	binary.BigEndian.PutUint32(buf[52:56], r.TargetAverageIntensity)
	binary.BigEndian.PutUint32(buf[56:60], r.ScanIntervalUs)
	binary.BigEndian.PutUint32(buf[60:64], r.ScanOffsetUs)
	binary.BigEndian.PutUint32(buf[64:68], r.NumberOfScans)
	binary.BigEndian.PutUint16(buf[68:70], r.DataTypeMask)
	binary.BigEndian.PutUint16(buf[70:72], r.StartColumn)
	binary.BigEndian.PutUint16(buf[72:74], r.EndColumn)

	o := ScanRequestFixedSize
	for _, step := range r.Steps {
		binary.BigEndian.PutUint16(buf[o:o+2], step)
		o += 2
	}
	return buf
}

// UnmarshalScanRequest decodes a ScanRequest from its wire form, including
// its leading InfoHeader.
func UnmarshalScanRequest(b []byte) (ScanRequest, error) {
	if len(b) < ScanRequestFixedSize {
		return ScanRequest{}, fmt.Errorf("wire: short ScanRequest: need at least %d bytes, got %d", ScanRequestFixedSize, len(b))
	}
	header, err := UnmarshalInfoHeader(b)
	if err != nil {
		return ScanRequest{}, err
	}
	if header.Type != TypeScanRequest {
		return ScanRequest{}, fmt.Errorf("wire: ScanRequest: bad type %v", header.Type)
	}

	r := ScanRequest{
		ClientIP:                binary.BigEndian.Uint32(b[4:8]),
		ClientPort:              binary.BigEndian.Uint16(b[8:10]),
		RequestSequence:         b[10],
		ScanHeadID:              b[11],
		CameraID:                b[12],
		LaserID:                 b[13],
		Deprecated:              b[14],
		Flags:                   b[15],
		LaserExposureMinUs:      binary.BigEndian.Uint32(b[16:20]),
		LaserExposureDefUs:      binary.BigEndian.Uint32(b[20:24]),
		LaserExposureMaxUs:      binary.BigEndian.Uint32(b[24:28]),
		CameraExposureMinUs:     binary.BigEndian.Uint32(b[28:32]),
		CameraExposureDefUs:     binary.BigEndian.Uint32(b[32:36]),
		CameraExposureMaxUs:     binary.BigEndian.Uint32(b[36:40]),
		LaserDetectionThreshold: binary.BigEndian.Uint32(b[40:44]),
		SaturationThreshold:     binary.BigEndian.Uint32(b[44:48]),
		SaturationPercentage:    binary.BigEndian.Uint32(b[48:52]),
		TargetAverageIntensity:  binary.BigEndian.Uint32(b[52:56]),
		ScanIntervalUs:          binary.BigEndian.Uint32(b[56:60]),
		ScanOffsetUs:            binary.BigEndian.Uint32(b[60:64]),
		NumberOfScans:           binary.BigEndian.Uint32(b[64:68]),
		DataTypeMask:            binary.BigEndian.Uint16(b[68:70]),
		StartColumn:             binary.BigEndian.Uint16(b[70:72]),
		EndColumn:               binary.BigEndian.Uint16(b[72:74]),
	}

	numSteps := bits.OnesCount16(r.DataTypeMask)
	want := ScanRequestFixedSize + 2*numSteps
	if len(b) < want {
		return ScanRequest{}, fmt.Errorf("wire: ScanRequest: need %d bytes for %d steps, got %d", want, numSteps, len(b))
	}
	if int(header.Size) != want {
		return ScanRequest{}, fmt.Errorf("wire: ScanRequest: header size %d does not match expected %d", header.Size, want)
	}
	r.Steps = make([]uint16, numSteps)
	o := ScanRequestFixedSize
	for i := 0; i < numSteps; i++ {
		r.Steps[i] = binary.BigEndian.Uint16(b[o : o+2])
		o += 2
	}
	return r, nil
}

// EffectiveNumberOfScans returns the number of scans encoded by the request,
// with the wire's 0-means-a-very-large-number convention resolved.
func (r ScanRequest) EffectiveNumberOfScans() uint32 {
	if r.NumberOfScans == 0 {
		return 1_000_000
	}
	return r.NumberOfScans
}
