package network

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhead/internal/geometry"
	"scanhead/internal/profile"
	"scanhead/internal/wire"
)

type identityAlignments struct{}

func (identityAlignments) Alignment(uint8) geometry.Alignment {
	return geometry.NewAlignment(0, 0, 0, false)
}

func newTestReceiver(t *testing.T, packets []MockUDPPacket) (*Receiver, *profile.Queue) {
	t.Helper()
	socket := NewMockUDPSocket(packets)
	factory := NewMockUDPSocketFactory(socket)
	queue := profile.NewQueue(profile.DefaultCapacity)
	assembler := profile.NewAssembler(identityAlignments{})
	r := NewReceiver(1, assembler, queue, factory, log.Default())
	return r, queue
}

func statusPacket(t *testing.T, major uint32) []byte {
	t.Helper()
	s := wire.StatusMessage{
		Version:     wire.VersionInformation{Major: major},
		Serial:      42,
		MaxScanRate: 2000,
		GlobalTime:  123,
	}
	return s.Marshal()
}

func TestReceiverClassifiesStatusPacket(t *testing.T) {
	r, _ := newTestReceiver(t, []MockUDPPacket{{Data: statusPacket(t, 2)}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	status, ok := r.WaitForFreshStatus(time.Time{}, time.Second)
	require.True(t, ok)
	assert.Equal(t, uint32(2), status.Version.Major)
	assert.Equal(t, uint32(42), status.Serial)

	cancel()
	<-done
}

func TestReceiverClassifiesDataPacket(t *testing.T) {
	dp := wire.DataPacket{
		Header: wire.DatagramHeader{
			ScanHeadID:       1,
			DataType:         wire.DataTypeXY,
			NumberDatagrams:  1,
			DatagramPosition: 0,
			StartColumn:      0,
			EndColumn:        1455,
		},
		Steps:   []uint16{1},
		Payload: make([]byte, 1456*4),
	}
	r, queue := newTestReceiver(t, []MockUDPPacket{{Data: dp.Marshal()}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	n := queue.WaitUntilAvailable(1, time.Second)
	assert.Equal(t, 1, n)

	cancel()
	<-done
}

// TestReceiverTeardownTiming covers Testable Property #9.
func TestReceiverTeardownTiming(t *testing.T) {
	r, queue := newTestReceiver(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)

	require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, time.Millisecond)

	start := time.Now()
	r.Stop()
	cancel()
	state := r.WaitForState(StateStopped, 1500*time.Millisecond)
	assert.Equal(t, StateStopped, state)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
	assert.True(t, queue.Available() == 0)
}
