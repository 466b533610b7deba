package profile

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhead/internal/geometry"
	"scanhead/internal/wire"
)

type identityAlignments struct{}

func (identityAlignments) Alignment(cameraID uint8) geometry.Alignment {
	return geometry.NewAlignment(0, 0, 0, false)
}

func makeXYBrightnessFragment(t *testing.T, scanHeadID, cameraID uint8, ts uint64, numberDatagrams, datagramPosition uint32, startCol, endCol uint16) wire.DataPacket {
	t.Helper()
	numCols := int(endCol) - int(startCol) + 1
	n := wire.NumValues(numCols, 1, int(numberDatagrams), int(datagramPosition))
	payload := make([]byte, 0, n*5)
	for j := 0; j < n; j++ {
		payload = append(payload, byte(100+j%50))
	}
	xy := make([]byte, 4)
	for j := 0; j < n; j++ {
		col := wire.ColumnForIndex(int(startCol), 1, int(numberDatagrams), int(datagramPosition), j)
		x := int16(col % 1000)
		y := int16(col % 500)
		putI16(xy[0:2], x)
		putI16(xy[2:4], y)
		payload = append(payload, xy...)
	}
	return wire.DataPacket{
		Header: wire.DatagramHeader{
			ScanHeadID:       scanHeadID,
			CameraID:         cameraID,
			LaserID:          0,
			TimestampNs:      ts,
			DataType:         wire.DataTypeXY | wire.DataTypeBrightness,
			NumberDatagrams:  numberDatagrams,
			DatagramPosition: datagramPosition,
			StartColumn:      startCol,
			EndColumn:        endCol,
		},
		Steps:   []uint16{1, 1},
		Payload: payload,
	}
}

func putI16(b []byte, v int16) {
	b[0] = byte(uint16(v) >> 8)
	b[1] = byte(uint16(v))
}

func TestAssemblerCompletesAfterAllFragments(t *testing.T) {
	a := NewAssembler(identityAlignments{})
	const n = 4
	var completed []Profile
	for p := uint32(0); p < n; p++ {
		frag := makeXYBrightnessFragment(t, 1, 0, 1000, n, p, 0, 1455)
		completed = append(completed, a.Ingest(frag)...)
	}
	require.Len(t, completed, 1)
	assert.Equal(t, uint32(n), completed[0].PacketsReceived)
	assert.Equal(t, uint32(n), completed[0].PacketsExpected)
	assert.True(t, completed[0].Complete())
	assert.Greater(t, completed[0].ValidGeometryCount, 0)
	assert.Greater(t, completed[0].ValidBrightnessCount, 0)
}

func TestAssemblerFlushesOnSourceMismatch(t *testing.T) {
	a := NewAssembler(identityAlignments{})
	frag0 := makeXYBrightnessFragment(t, 1, 0, 1000, 4, 0, 0, 1455)
	out := a.Ingest(frag0)
	assert.Empty(t, out, "first of four fragments should not complete yet")

	// A fragment for a different timestamp arrives before the first profile
	// completes: the partial must be flushed, incomplete.
	frag1 := makeXYBrightnessFragment(t, 1, 0, 2000, 4, 0, 0, 1455)
	out = a.Ingest(frag1)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(1000), out[0].TimestampNs)
	assert.Equal(t, uint32(1), out[0].PacketsReceived)
	assert.False(t, out[0].Complete())
}

// TestAssemblerAtLeastOnceDelivery covers Testable Property #8: N profiles
// fanned into K fragments delivered in arbitrary order yield exactly N
// complete profiles.
func TestAssemblerAtLeastOnceDelivery(t *testing.T) {
	a := NewAssembler(identityAlignments{})
	const numProfiles = 20
	const k = 5

	var fragments []wire.DataPacket
	for i := 0; i < numProfiles; i++ {
		ts := uint64(1000 * (i + 1))
		for p := uint32(0); p < k; p++ {
			fragments = append(fragments, makeXYBrightnessFragment(t, 1, 0, ts, k, p, 0, 1455))
		}
	}

	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(fragments), func(i, j int) { fragments[i], fragments[j] = fragments[j], fragments[i] })

	// Fragments must still be grouped so that all k fragments of one
	// timestamp arrive contiguously in this single-in-flight assembler;
	// shuffle within each timestamp group only.
	byTS := make(map[uint64][]wire.DataPacket)
	for _, f := range fragments {
		byTS[f.Header.TimestampNs] = append(byTS[f.Header.TimestampNs], f)
	}

	var completed []Profile
	for i := 0; i < numProfiles; i++ {
		ts := uint64(1000 * (i + 1))
		group := byTS[ts]
		for _, f := range group {
			completed = append(completed, a.Ingest(f)...)
		}
	}

	require.Len(t, completed, numProfiles)
	for _, p := range completed {
		assert.Equal(t, uint32(k), p.PacketsReceived)
		assert.Equal(t, uint32(k), p.PacketsExpected)
	}
}

func TestImageProfileExposureShift(t *testing.T) {
	a := NewAssembler(identityAlignments{})
	frag := wire.DataPacket{
		Header: wire.DatagramHeader{
			ScanHeadID:       1,
			CameraID:         0,
			TimestampNs:      5000,
			ExposureTimeUs:   10,
			DataType:         wire.DataTypeImage,
			NumberDatagrams:  1,
			DatagramPosition: 0,
		},
		Payload: make([]byte, ImageWidth*4),
	}
	out := a.Ingest(frag)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(10<<8), out[0].ExposureTimeUs)
	assert.NotNil(t, out[0].Image)
}

// TestQueueBound covers Testable Property #5 and scenario S4.
func TestQueueBound(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	for i := 0; i < 1200; i++ {
		q.Push(Profile{TimestampNs: uint64(i)})
	}
	assert.Equal(t, DefaultCapacity, q.Available())
	popped := q.Pop(1)
	assert.Equal(t, uint64(200), popped[0].TimestampNs, "the oldest surviving profile is index 200")
}

func TestQueueWaitUntilAvailableTimeout(t *testing.T) {
	q := NewQueue(10)
	start := time.Now()
	n := q.WaitUntilAvailable(5, 50*time.Millisecond)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestQueueWaitUntilAvailableWakesOnPush(t *testing.T) {
	q := NewQueue(10)
	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	go func() {
		defer wg.Done()
		got = q.WaitUntilAvailable(3, time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(Profile{})
	q.Push(Profile{})
	q.Push(Profile{})
	wg.Wait()
	assert.Equal(t, 3, got)
}

func TestQueueWaitUntilAvailableWakesOnClose(t *testing.T) {
	q := NewQueue(10)
	done := make(chan int, 1)
	go func() {
		done <- q.WaitUntilAvailable(3, time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitUntilAvailable did not wake on Close")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(10)
	q.Push(Profile{})
	q.Push(Profile{})
	q.Clear()
	assert.Equal(t, 0, q.Available())
}
