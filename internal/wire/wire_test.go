package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRequestRoundTrip(t *testing.T) {
	req := ScanRequest{
		ClientIP:                0xC0A80101,
		ClientPort:               50100,
		RequestSequence:         3,
		ScanHeadID:              1,
		CameraID:                0,
		LaserID:                 0,
		Flags:                   0,
		LaserExposureMinUs:      15,
		LaserExposureDefUs:      500,
		LaserExposureMaxUs:      650000,
		CameraExposureMinUs:     15,
		CameraExposureDefUs:     1000,
		CameraExposureMaxUs:     2000000,
		LaserDetectionThreshold: 120,
		SaturationThreshold:     800,
		SaturationPercentage:    50,
		TargetAverageIntensity:  200,
		ScanIntervalUs:          2000,
		ScanOffsetUs:            0,
		NumberOfScans:           0xFFFFFFFF,
		DataTypeMask:            DataTypeXY | DataTypeBrightness,
		StartColumn:             0,
		EndColumn:               1455,
		Steps:                   []uint16{1, 1},
	}

	encoded := req.Marshal()
	assert.Equal(t, req.Size(), len(encoded))
	assert.Equal(t, uint8(req.Size()), encoded[2], "header size byte must equal serialized size")

	decoded, err := UnmarshalScanRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestScanRequestEffectiveNumberOfScans(t *testing.T) {
	assert.Equal(t, uint32(1_000_000), ScanRequest{NumberOfScans: 0}.EffectiveNumberOfScans())
	assert.Equal(t, uint32(42), ScanRequest{NumberOfScans: 42}.EffectiveNumberOfScans())
}

func TestBroadcastConnectRoundTrip(t *testing.T) {
	bc := BroadcastConnect{
		DestIP:         0x0A000005,
		DestPort:       54321,
		SessionID:      7,
		ScanHeadID:     2,
		ConnectionKind: ConnectionNormal,
		Serial:         12345,
	}
	encoded := bc.Marshal()
	assert.Len(t, encoded, BroadcastConnectSize)
	decoded, err := UnmarshalBroadcastConnect(encoded)
	require.NoError(t, err)
	assert.Equal(t, bc, decoded)
}

func TestSetWindowRoundTrip(t *testing.T) {
	sw := SetWindow{
		CameraID: 1,
		Constraints: []Constraint{
			{X1: -10000, Y1: 10000, X2: 10000, Y2: 10000},
			{X1: 10000, Y1: -10000, X2: -10000, Y2: -10000},
		},
	}
	encoded := sw.Marshal()
	decoded, err := UnmarshalSetWindow(encoded)
	require.NoError(t, err)
	assert.Equal(t, sw, decoded)
}

func TestStatusMessageRoundTrip(t *testing.T) {
	s := StatusMessage{
		Version:         VersionInformation{Major: 2, Minor: 1, Patch: 0, Commit: 0xABCD, Product: 1, Flags: 0},
		Serial:          9001,
		MaxScanRate:     2000,
		ScanHeadIP:      0x0A000010,
		ClientIP:        0x0A000001,
		ClientPort:      50100,
		ScanSyncID:      5,
		GlobalTime:      123456789,
		NumPacketsSent:  100,
		NumProfilesSent: 10,
		ValidEncoders:   1,
		ValidCameras:    2,
		Encoders:        []uint64{42},
		PixelsInWindow:  []int32{500, 480},
		CameraTemp:      []int32{355, 360},
	}
	encoded := s.Marshal()
	assert.Equal(t, s.Size(), len(encoded))
	decoded, err := UnmarshalStatusMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestVersionInformationCompatibility(t *testing.T) {
	cases := []struct {
		a, b       uint32
		compatible bool
	}{
		{2, 2, true},
		{2, 3, false},
		{0, 0, true},
		{1, 2, false},
		{3, 3, true},
		{5, 4, false},
		{10, 10, true},
		{7, 8, false},
	}
	for _, c := range cases {
		v1 := VersionInformation{Major: c.a}
		v2 := VersionInformation{Major: c.b}
		assert.Equal(t, c.compatible, v1.CompatibleWith(v2))
		assert.Equal(t, c.compatible, v2.CompatibleWith(v1))
	}
}

// TestDataPacketStrideSumInvariant covers Testable Property #4: summing
// num_vals over every fragment position recovers num_cols / step exactly.
func TestDataPacketStrideSumInvariant(t *testing.T) {
	cases := []struct {
		numCols, step, numberDatagrams int
	}{
		{1456, 1, 4},
		{1456, 2, 3},
		{1456, 4, 7},
		{100, 1, 1},
		{1455, 1, 5},
	}
	for _, c := range cases {
		sum := 0
		for p := 0; p < c.numberDatagrams; p++ {
			sum += NumValues(c.numCols, c.step, c.numberDatagrams, p)
		}
		assert.Equal(t, c.numCols/c.step, sum)
	}
}

// TestDataPacketStrideScenarioS6 matches spec scenario S6 exactly.
func TestDataPacketStrideScenarioS6(t *testing.T) {
	const numCols = 1456
	const step = 1
	const numberDatagrams = 4
	const datagramPosition = 2

	n := NumValues(numCols, step, numberDatagrams, datagramPosition)
	require.Equal(t, 364, n)

	wantFirst := 2
	wantLast := 1454
	gotFirst := ColumnForIndex(0, step, numberDatagrams, datagramPosition, 0)
	gotLast := ColumnForIndex(0, step, numberDatagrams, datagramPosition, n-1)
	assert.Equal(t, wantFirst, gotFirst)
	assert.Equal(t, wantLast, gotLast)

	for j := 0; j < n; j++ {
		col := ColumnForIndex(0, step, numberDatagrams, datagramPosition, j)
		assert.Equal(t, 2+j*4, col)
	}
}

func TestDataPacketRoundTrip(t *testing.T) {
	dp := DataPacket{
		Header: DatagramHeader{
			ExposureTimeUs:   900,
			ScanHeadID:       1,
			CameraID:         0,
			LaserID:          0,
			Flags:            0,
			TimestampNs:      1234567890123,
			LaserOnTimeUs:    500,
			DataType:         DataTypeXY | DataTypeBrightness,
			NumberEncoders:   1,
			DatagramPosition: 2,
			NumberDatagrams:  4,
			StartColumn:      0,
			EndColumn:        1455,
		},
		Steps:    []uint16{1, 1},
		Encoders: []int64{42},
		Payload:  make([]byte, 364*5), // 364 XY pairs (4B) + 364 brightness (1B)
	}
	encoded := dp.Marshal()
	decoded, err := UnmarshalDataPacket(encoded)
	require.NoError(t, err)
	assert.Equal(t, dp.Header.ScanHeadID, decoded.Header.ScanHeadID)
	assert.Equal(t, dp.Header.DataType, decoded.Header.DataType)
	assert.Equal(t, dp.Header.DatagramPosition, decoded.Header.DatagramPosition)
	assert.Equal(t, dp.Steps, decoded.Steps)
	assert.Equal(t, dp.Encoders, decoded.Encoders)
	assert.Equal(t, len(dp.Payload), len(decoded.Payload))
}

func TestIsInvalidCoordinate(t *testing.T) {
	assert.True(t, IsInvalidCoordinate(-32768))
	assert.False(t, IsInvalidCoordinate(0))
	assert.False(t, IsInvalidCoordinate(32767))
}
