package wire

import (
	"encoding/binary"
	"fmt"
)

// VersionInformationSize is the fixed wire size of a VersionInformation block.
const VersionInformationSize = 20

// VersionInformation is the firmware version block every status message
// begins with.
type VersionInformation struct {
	Major   uint32
	Minor   uint32
	Patch   uint32
	Commit  uint32
	Product uint16
	Flags   uint16
}

// CompatibleWith reports whether two versions are wire-compatible. Only the
// major version needs to match.
func (v VersionInformation) CompatibleWith(other VersionInformation) bool {
	return v.Major == other.Major
}

func (v VersionInformation) marshalInto(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], v.Major)
	binary.BigEndian.PutUint32(buf[4:8], v.Minor)
	binary.BigEndian.PutUint32(buf[8:12], v.Patch)
	binary.BigEndian.PutUint32(buf[12:16], v.Commit)
	binary.BigEndian.PutUint16(buf[16:18], v.Product)
	binary.BigEndian.PutUint16(buf[18:20], v.Flags)
}

func unmarshalVersionInformation(b []byte) VersionInformation {
	return VersionInformation{
		Major:   binary.BigEndian.Uint32(b[0:4]),
		Minor:   binary.BigEndian.Uint32(b[4:8]),
		Patch:   binary.BigEndian.Uint32(b[8:12]),
		Commit:  binary.BigEndian.Uint32(b[12:16]),
		Product: binary.BigEndian.Uint16(b[16:18]),
		Flags:   binary.BigEndian.Uint16(b[18:20]),
	}
}

// statusFixedSize is the size of a StatusMessage from the header through
// ValidCameras plus the 8 reserved words, before the variable-length
// encoder/pixel/temperature arrays.
const statusFixedSize = InfoHeaderSize + VersionInformationSize + 4 + 4 + 4 + 4 + 2 + 2 + 8 + 4 + 4 + 1 + 1 + 8*4

// StatusMessage is the type=3 message a scan head periodically sends
// reporting its identity, link parameters, and per-camera telemetry.
type StatusMessage struct {
	Version         VersionInformation
	Serial          uint32
	MaxScanRate     uint32
	ScanHeadIP      uint32
	ClientIP        uint32
	ClientPort      uint16
	ScanSyncID      uint16
	GlobalTime      uint64
	NumPacketsSent  uint32
	NumProfilesSent uint32
	ValidEncoders   uint8
	ValidCameras    uint8
	Reserved        [8]uint32
	Encoders        []uint64
	PixelsInWindow  []int32
	CameraTemp      []int32
}

// Size returns the total wire size of the message given its current
// ValidEncoders/ValidCameras counts.
func (s StatusMessage) Size() int {
	return statusFixedSize + int(s.ValidEncoders)*8 + int(s.ValidCameras)*4*2
}

// Marshal encodes the message, including header and size byte.
func (s StatusMessage) Marshal() []byte {
	size := s.Size()
	buf := make([]byte, size)
	header := InfoHeader{Magic: MagicStatusCommand, Size: uint8(size), Type: TypeStatus}
	copy(buf, header.Marshal())

	o := InfoHeaderSize
	s.Version.marshalInto(buf[o : o+VersionInformationSize])
	o += VersionInformationSize

	binary.BigEndian.PutUint32(buf[o:o+4], s.Serial)
	o += 4
	binary.BigEndian.PutUint32(buf[o:o+4], s.MaxScanRate)
	o += 4
	binary.BigEndian.PutUint32(buf[o:o+4], s.ScanHeadIP)
	o += 4
	binary.BigEndian.PutUint32(buf[o:o+4], s.ClientIP)
	o += 4
	binary.BigEndian.PutUint16(buf[o:o+2], s.ClientPort)
	o += 2
	binary.BigEndian.PutUint16(buf[o:o+2], s.ScanSyncID)
	o += 2
	binary.BigEndian.PutUint64(buf[o:o+8], s.GlobalTime)
	o += 8
	binary.BigEndian.PutUint32(buf[o:o+4], s.NumPacketsSent)
	o += 4
	binary.BigEndian.PutUint32(buf[o:o+4], s.NumProfilesSent)
	o += 4
	buf[o] = s.ValidEncoders
	o++
	buf[o] = s.ValidCameras
	o++
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(buf[o:o+4], s.Reserved[i])
		o += 4
	}
	for _, e := range s.Encoders {
		binary.BigEndian.PutUint64(buf[o:o+8], e)
		o += 8
	}
	for _, p := range s.PixelsInWindow {
		binary.BigEndian.PutUint32(buf[o:o+4], uint32(p))
		o += 4
	}
	for _, t := range s.CameraTemp {
		binary.BigEndian.PutUint32(buf[o:o+4], uint32(t))
		o += 4
	}
	return buf
}

// UnmarshalStatusMessage decodes a StatusMessage, including its header.
func UnmarshalStatusMessage(b []byte) (StatusMessage, error) {
	if len(b) < statusFixedSize {
		return StatusMessage{}, fmt.Errorf("wire: short StatusMessage: need at least %d bytes, got %d", statusFixedSize, len(b))
	}
	header, err := UnmarshalInfoHeader(b)
	if err != nil {
		return StatusMessage{}, err
	}
	if header.Magic != MagicStatusCommand {
		return StatusMessage{}, fmt.Errorf("wire: StatusMessage: bad magic 0x%04X", header.Magic)
	}
	if header.Type != TypeStatus {
		return StatusMessage{}, fmt.Errorf("wire: StatusMessage: bad type %v", header.Type)
	}

	o := InfoHeaderSize
	s := StatusMessage{Version: unmarshalVersionInformation(b[o : o+VersionInformationSize])}
	o += VersionInformationSize

	s.Serial = binary.BigEndian.Uint32(b[o : o+4])
	o += 4
	s.MaxScanRate = binary.BigEndian.Uint32(b[o : o+4])
	o += 4
	s.ScanHeadIP = binary.BigEndian.Uint32(b[o : o+4])
	o += 4
	s.ClientIP = binary.BigEndian.Uint32(b[o : o+4])
	o += 4
	s.ClientPort = binary.BigEndian.Uint16(b[o : o+2])
	o += 2
	s.ScanSyncID = binary.BigEndian.Uint16(b[o : o+2])
	o += 2
	s.GlobalTime = binary.BigEndian.Uint64(b[o : o+8])
	o += 8
	s.NumPacketsSent = binary.BigEndian.Uint32(b[o : o+4])
	o += 4
	s.NumProfilesSent = binary.BigEndian.Uint32(b[o : o+4])
	o += 4
	s.ValidEncoders = b[o]
	s.ValidCameras = b[o+1]
	o += 2
	for i := 0; i < 8; i++ {
		s.Reserved[i] = binary.BigEndian.Uint32(b[o : o+4])
		o += 4
	}

	want := statusFixedSize + int(s.ValidEncoders)*8 + int(s.ValidCameras)*4*2
	if len(b) < want {
		return StatusMessage{}, fmt.Errorf("wire: StatusMessage: need %d bytes for %d encoders / %d cameras, got %d",
			want, s.ValidEncoders, s.ValidCameras, len(b))
	}
	if int(header.Size) != want {
		return StatusMessage{}, fmt.Errorf("wire: StatusMessage: header size %d does not match expected %d", header.Size, want)
	}

	s.Encoders = make([]uint64, s.ValidEncoders)
	for i := range s.Encoders {
		s.Encoders[i] = binary.BigEndian.Uint64(b[o : o+8])
		o += 8
	}
	s.PixelsInWindow = make([]int32, s.ValidCameras)
	for i := range s.PixelsInWindow {
		s.PixelsInWindow[i] = int32(binary.BigEndian.Uint32(b[o : o+4]))
		o += 4
	}
	s.CameraTemp = make([]int32, s.ValidCameras)
	for i := range s.CameraTemp {
		s.CameraTemp[i] = int32(binary.BigEndian.Uint32(b[o : o+4]))
		o += 4
	}
	return s, nil
}
