package profile

import (
	"encoding/binary"

	"scanhead/internal/geometry"
	"scanhead/internal/wire"
)

// AlignmentSource resolves the current alignment for a camera on a scan
// head, so the assembler can transform points as they arrive instead of in
// a second pass.
type AlignmentSource interface {
	Alignment(cameraID uint8) geometry.Alignment
}

type partial struct {
	sourceID        uint32
	timestampNs     uint64
	profile         Profile
	packetsReceived uint32
}

// Assembler reassembles data-packet fragments into complete profiles. It
// holds at most one in-flight profile and is meant to be driven by a single
// goroutine — the owning scan head's receiver loop — so it does no locking
// of its own.
type Assembler struct {
	alignments AlignmentSource
	inflight   *partial
}

// NewAssembler constructs an assembler that resolves per-camera alignment
// through alignments.
func NewAssembler(alignments AlignmentSource) *Assembler {
	return &Assembler{alignments: alignments}
}

// Ingest folds one data packet into the in-flight profile, returning zero,
// one, or two profiles ready for the queue: a profile flushed because the
// packet belonged to a different (source, timestamp) pair than the one in
// flight, and/or the profile this packet just completed.
func (a *Assembler) Ingest(dp wire.DataPacket) []Profile {
	h := dp.Header
	sourceID := SourceID(h.ScanHeadID, h.CameraID, h.LaserID)

	var out []Profile
	if a.inflight != nil && (a.inflight.sourceID != sourceID || a.inflight.timestampNs != h.TimestampNs) {
		a.inflight.profile.PacketsReceived = a.inflight.packetsReceived
		out = append(out, a.inflight.profile)
		a.inflight = nil
	}

	if a.inflight == nil {
		a.inflight = a.newPartial(sourceID, dp)
	}

	a.applyFragment(a.inflight, dp)
	a.inflight.packetsReceived++

	if a.inflight.packetsReceived >= a.inflight.profile.PacketsExpected {
		a.inflight.profile.PacketsReceived = a.inflight.packetsReceived
		out = append(out, a.inflight.profile)
		a.inflight = nil
	}
	return out
}

// Flush returns the in-flight profile, if any, stamped with its
// packets-received-so-far count, and clears it. Used when a receiver is
// torn down with a partial profile still outstanding.
func (a *Assembler) Flush() (Profile, bool) {
	if a.inflight == nil {
		return Profile{}, false
	}
	a.inflight.profile.PacketsReceived = a.inflight.packetsReceived
	p := a.inflight.profile
	a.inflight = nil
	return p, true
}

func (a *Assembler) newPartial(sourceID uint32, dp wire.DataPacket) *partial {
	h := dp.Header
	p := newBlankProfile()
	p.ScanHeadID = h.ScanHeadID
	p.CameraID = h.CameraID
	p.LaserID = h.LaserID
	p.TimestampNs = h.TimestampNs
	p.Encoders = append([]int64(nil), dp.Encoders...)
	p.ExposureTimeUs = h.ExposureTimeUs
	p.LaserOnTimeUs = h.LaserOnTimeUs
	p.DataTypeMask = h.DataType
	p.PacketsExpected = h.NumberDatagrams
	if h.DataType&wire.DataTypeImage != 0 {
		p.Image = make([]byte, ImageWidth*ImageHeight)
		p.Points = nil
	}
	return &partial{sourceID: sourceID, timestampNs: h.TimestampNs, profile: p}
}

type dataBlock struct {
	step    int
	numVals int
	offset  int
}

// dataTypeOrder lists the processed (non-image) data-type bits and their
// per-value wire size, in the ascending bit order the wire format requires.
var dataTypeOrder = []struct {
	bit  uint16
	size int
}{
	{wire.DataTypeBrightness, 1},
	{wire.DataTypeXY, 4},
	{wire.DataTypeWidth, 2},
	{wire.DataTypeSecondMoment, 2},
	{wire.DataTypeSubpixel, 2},
}

var allBitsAscending = []uint16{
	wire.DataTypeBrightness,
	wire.DataTypeXY,
	wire.DataTypeWidth,
	wire.DataTypeSecondMoment,
	wire.DataTypeSubpixel,
	wire.DataTypeImage,
}

func (a *Assembler) applyFragment(p *partial, dp wire.DataPacket) {
	h := dp.Header

	if h.DataType&wire.DataTypeImage != 0 {
		a.applyImage(p, dp)
		return
	}

	stepForBit := make(map[uint16]int, len(allBitsAscending))
	stepIdx := 0
	for _, b := range allBitsAscending {
		if h.DataType&b != 0 {
			if stepIdx < len(dp.Steps) {
				stepForBit[b] = int(dp.Steps[stepIdx])
			}
			stepIdx++
		}
	}

	numCols := int(h.EndColumn) - int(h.StartColumn) + 1
	blocks := make(map[uint16]dataBlock, len(dataTypeOrder))
	offset := 0
	for _, bi := range dataTypeOrder {
		if h.DataType&bi.bit == 0 {
			continue
		}
		step := stepForBit[bi.bit]
		n := wire.NumValues(numCols, step, int(h.NumberDatagrams), int(h.DatagramPosition))
		blocks[bi.bit] = dataBlock{step: step, numVals: n, offset: offset}
		offset += n * bi.size
	}

	hasBrightness := h.DataType&wire.DataTypeBrightness != 0
	hasXY := h.DataType&wire.DataTypeXY != 0
	alignment := a.alignments.Alignment(h.CameraID)

	switch {
	case hasBrightness && hasXY:
		bBlock := blocks[wire.DataTypeBrightness]
		xyBlock := blocks[wire.DataTypeXY]
		n := bBlock.numVals
		if xyBlock.numVals < n {
			n = xyBlock.numVals
		}
		for j := 0; j < n; j++ {
			col := wire.ColumnForIndex(int(h.StartColumn), xyBlock.step, int(h.NumberDatagrams), int(h.DatagramPosition), j)
			if col < 0 || col >= MaxPoints {
				continue
			}
			xo := xyBlock.offset + j*4
			xRaw := int16(binary.BigEndian.Uint16(dp.Payload[xo : xo+2]))
			yRaw := int16(binary.BigEndian.Uint16(dp.Payload[xo+2 : xo+4]))
			if wire.IsInvalidCoordinate(xRaw) || wire.IsInvalidCoordinate(yRaw) {
				continue
			}
			brightness := dp.Payload[bBlock.offset+j]
			mx, my := alignment.CameraToMill(int32(xRaw), int32(yRaw))
			p.profile.Points[col] = Point{XMils: mx, YMils: my, Brightness: brightness}
			p.profile.ValidGeometryCount++
			p.profile.ValidBrightnessCount++
		}
	case hasXY:
		xyBlock := blocks[wire.DataTypeXY]
		for j := 0; j < xyBlock.numVals; j++ {
			col := wire.ColumnForIndex(int(h.StartColumn), xyBlock.step, int(h.NumberDatagrams), int(h.DatagramPosition), j)
			if col < 0 || col >= MaxPoints {
				continue
			}
			xo := xyBlock.offset + j*4
			xRaw := int16(binary.BigEndian.Uint16(dp.Payload[xo : xo+2]))
			yRaw := int16(binary.BigEndian.Uint16(dp.Payload[xo+2 : xo+4]))
			if wire.IsInvalidCoordinate(xRaw) || wire.IsInvalidCoordinate(yRaw) {
				continue
			}
			mx, my := alignment.CameraToMill(int32(xRaw), int32(yRaw))
			p.profile.Points[col] = Point{XMils: mx, YMils: my}
			p.profile.ValidGeometryCount++
		}
	}
	// Width, SecondMoment, and Subpixel blocks are consumed above (their
	// offsets advance the cursor correctly) but are not part of the
	// documented profile record, so their values are discarded here.
}

func (a *Assembler) applyImage(p *partial, dp wire.DataPacket) {
	h := dp.Header
	// Firmware quirk: image-mode packets report exposure time shifted left
	// by 8 bits relative to every other data type.
	p.profile.ExposureTimeUs = h.ExposureTimeUs << 8

	rowsPerPacket := 4
	start := int(h.DatagramPosition) * rowsPerPacket * ImageWidth
	end := start + len(dp.Payload)
	if start < 0 || end > len(p.profile.Image) {
		return
	}
	copy(p.profile.Image[start:end], dp.Payload)
}
