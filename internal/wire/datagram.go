package wire

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// DatagramHeaderSize is the fixed size, in bytes, of a DatagramHeader.
const DatagramHeaderSize = 36

// InvalidCoordinate is the sentinel value a scan head uses for a point
// coordinate it could not measure. Data is transmitted as i16; the wire
// value arrives as a u16 and must be sign-extended before comparison.
const InvalidCoordinate int16 = -32768

// DatagramHeader is the 36-byte header prefixing every data-packet fragment.
type DatagramHeader struct {
	ExposureTimeUs   uint16
	ScanHeadID       uint8
	CameraID         uint8
	LaserID          uint8
	Flags            uint8
	TimestampNs      uint64
	LaserOnTimeUs    uint16
	DataType         uint16
	DataLength       uint16
	NumberEncoders   uint8
	Deprecated       uint8
	DatagramPosition uint32
	NumberDatagrams  uint32
	StartColumn      uint16
	EndColumn        uint16
}

// DataPacket is a fully decoded data-packet fragment: header, per-data-type
// step values, per-encoder readings, and the raw payload bytes that follow.
type DataPacket struct {
	Header   DatagramHeader
	Steps    []uint16 // one per set bit of Header.DataType, ascending bit order
	Encoders []int64
	Payload  []byte
}

// UnmarshalDataPacket parses a raw UDP datagram into a DataPacket. It
// validates the magic and that the declared lengths fit within b, but does
// not interpret the payload — see the profile package for that.
func UnmarshalDataPacket(b []byte) (DataPacket, error) {
	if len(b) < DatagramHeaderSize {
		return DataPacket{}, fmt.Errorf("wire: short data packet: need %d bytes, got %d", DatagramHeaderSize, len(b))
	}
	magic := binary.BigEndian.Uint16(b[0:2])
	if magic != MagicData {
		return DataPacket{}, fmt.Errorf("wire: data packet: bad magic 0x%04X", magic)
	}

	h := DatagramHeader{
		ExposureTimeUs: binary.BigEndian.Uint16(b[2:4]),
		ScanHeadID:     b[4],
		CameraID:       b[5],
		LaserID:        b[6],
		Flags:          b[7],
		TimestampNs:    binary.BigEndian.Uint64(b[8:16]),
		LaserOnTimeUs:  binary.BigEndian.Uint16(b[16:18]),
		DataType:       binary.BigEndian.Uint16(b[18:20]),
		DataLength:     binary.BigEndian.Uint16(b[20:22]),
		NumberEncoders: b[22],
		Deprecated:     b[23],
	}
	h.DatagramPosition = binary.BigEndian.Uint32(b[24:28])
	h.NumberDatagrams = binary.BigEndian.Uint32(b[28:32])
	h.StartColumn = binary.BigEndian.Uint16(b[32:34])
	h.EndColumn = binary.BigEndian.Uint16(b[34:36])

	o := DatagramHeaderSize
	numSteps := bits.OnesCount16(h.DataType)
	if len(b) < o+2*numSteps {
		return DataPacket{}, fmt.Errorf("wire: data packet: short for %d step values", numSteps)
	}
	steps := make([]uint16, numSteps)
	for i := range steps {
		steps[i] = binary.BigEndian.Uint16(b[o : o+2])
		o += 2
	}

	if len(b) < o+8*int(h.NumberEncoders) {
		return DataPacket{}, fmt.Errorf("wire: data packet: short for %d encoders", h.NumberEncoders)
	}
	encoders := make([]int64, h.NumberEncoders)
	for i := range encoders {
		encoders[i] = int64(binary.BigEndian.Uint64(b[o : o+8]))
		o += 8
	}

	if len(b) < o+int(h.DataLength) {
		return DataPacket{}, fmt.Errorf("wire: data packet: declared data_length %d exceeds remaining %d bytes", h.DataLength, len(b)-o)
	}
	payload := b[o : o+int(h.DataLength)]

	return DataPacket{Header: h, Steps: steps, Encoders: encoders, Payload: payload}, nil
}

// Marshal encodes the data packet back to wire form. Used by tests and by
// synthetic fragment generators.
func (d DataPacket) Marshal() []byte {
	size := DatagramHeaderSize + 2*len(d.Steps) + 8*len(d.Encoders) + len(d.Payload)
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], MagicData)
	binary.BigEndian.PutUint16(buf[2:4], d.Header.ExposureTimeUs)
	buf[4] = d.Header.ScanHeadID
	buf[5] = d.Header.CameraID
	buf[6] = d.Header.LaserID
	buf[7] = d.Header.Flags
	binary.BigEndian.PutUint64(buf[8:16], d.Header.TimestampNs)
	binary.BigEndian.PutUint16(buf[16:18], d.Header.LaserOnTimeUs)
	binary.BigEndian.PutUint16(buf[18:20], d.Header.DataType)
	binary.BigEndian.PutUint16(buf[20:22], uint16(len(d.Payload)))
	buf[22] = uint8(len(d.Encoders))
	buf[23] = d.Header.Deprecated
	binary.BigEndian.PutUint32(buf[24:28], d.Header.DatagramPosition)
	binary.BigEndian.PutUint32(buf[28:32], d.Header.NumberDatagrams)
	binary.BigEndian.PutUint16(buf[32:34], d.Header.StartColumn)
	binary.BigEndian.PutUint16(buf[34:36], d.Header.EndColumn)

	o := DatagramHeaderSize
	for _, s := range d.Steps {
		binary.BigEndian.PutUint16(buf[o:o+2], s)
		o += 2
	}
	for _, e := range d.Encoders {
		binary.BigEndian.PutUint64(buf[o:o+8], uint64(e))
		o += 8
	}
	copy(buf[o:], d.Payload)
	return buf
}

// NumValues computes how many samples of a distributed data type a single
// fragment carries, given the column range, the per-value stride, the total
// fragment count, and this fragment's position. Fragmenting is designed to
// lose resolution uniformly rather than drop a contiguous range: fragment p
// of N carries every Nth sample starting at column p.
func NumValues(numCols, step, numberDatagrams, datagramPosition int) int {
	if step <= 0 || numberDatagrams <= 0 {
		return 0
	}
	q := numCols / step
	base := q / numberDatagrams
	if q%numberDatagrams > datagramPosition {
		base++
	}
	return base
}

// ColumnForIndex returns the source column for the j-th value (0-based) a
// fragment at datagramPosition of numberDatagrams total fragments carries.
func ColumnForIndex(startColumn, step, numberDatagrams, datagramPosition, j int) int {
	return startColumn + (j*numberDatagrams+datagramPosition)*step
}

// IsInvalidCoordinate reports whether a network-order i16 coordinate
// equals the invalid sentinel. Callers must
// sign-extend before calling; comparing the raw u16 bit pattern against a
// negative constant is the classic bug this guards against.
func IsInvalidCoordinate(v int16) bool {
	return v == InvalidCoordinate
}
