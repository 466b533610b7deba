package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhead/internal/timeutil"
)

func TestSenderDrainsQueueInOrder(t *testing.T) {
	w := &MockUDPWriter{}
	s := NewSender(w, nil)
	go s.Run()

	dest := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 12346}
	s.Enqueue(Command{Dest: dest, Payload: []byte{1}})
	s.Enqueue(Command{Dest: dest, Payload: []byte{2}})
	s.Enqueue(Command{Dest: dest, Payload: []byte{3}})

	require.Eventually(t, func() bool { return w.SentCount() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{1}, w.Sent[0].Payload)
	assert.Equal(t, []byte{2}, w.Sent[1].Payload)
	assert.Equal(t, []byte{3}, w.Sent[2].Payload)

	require.NoError(t, s.Close())
	assert.True(t, w.Closed)
}

func TestSenderContinuesAfterFailedSend(t *testing.T) {
	w := &MockUDPWriter{}
	s := NewSender(w, nil)
	go s.Run()

	dest := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 12346}
	w.Err = assertErr{}
	s.Enqueue(Command{Dest: dest, Payload: []byte{1}})
	time.Sleep(20 * time.Millisecond)
	w.mu.Lock()
	w.Err = nil
	w.mu.Unlock()
	s.Enqueue(Command{Dest: dest, Payload: []byte{2}})

	require.Eventually(t, func() bool { return w.SentCount() == 1 }, time.Second, time.Millisecond)
	s.Close()
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated send failure" }

// TestTimerReemitsOnSchedule loosely covers scenario S3's timing shape: one
// immediate emission, then roughly every 500ms while scanning.
func TestTimerReemitsOnSchedule(t *testing.T) {
	w := &MockUDPWriter{}
	s := NewSender(w, nil)
	go s.Run()
	defer s.Close()

	timer := NewTimer(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Run(ctx)

	dest := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 12346}
	timer.SetVector([]ScanRequestEntry{{Dest: dest, Payload: []byte{0xAA}}})

	require.Eventually(t, func() bool { return w.SentCount() >= 1 }, 200*time.Millisecond, time.Millisecond,
		"expected an emission within the first poll cycle")

	require.Eventually(t, func() bool { return w.SentCount() >= 2 }, 800*time.Millisecond, 10*time.Millisecond,
		"expected a second emission around 500ms later")
}

func TestTimerClearStopsReemission(t *testing.T) {
	w := &MockUDPWriter{}
	s := NewSender(w, nil)
	go s.Run()
	defer s.Close()

	timer := NewTimer(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Run(ctx)

	dest := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 12346}
	timer.SetVector([]ScanRequestEntry{{Dest: dest, Payload: []byte{0xAA}}})
	require.Eventually(t, func() bool { return w.SentCount() >= 1 }, 200*time.Millisecond, time.Millisecond)

	timer.Clear()
	countAtClear := w.SentCount()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, countAtClear, w.SentCount(), "no further emissions once cleared")
}

// TestTimerWithMockClockReemitsOnAdvance drives the timer against a
// MockClock instead of real wall time, so emissions happen only when the
// test advances the clock; require.Eventually only waits for the sender
// goroutine to deliver them.
func TestTimerWithMockClockReemitsOnAdvance(t *testing.T) {
	w := &MockUDPWriter{}
	s := NewSender(w, nil)
	go s.Run()
	defer s.Close()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	timer := NewTimerWithClock(s, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Run(ctx)

	dest := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 12346}
	timer.SetVector([]ScanRequestEntry{{Dest: dest, Payload: []byte{0xAA}}})

	clock.Advance(pollInterval)
	require.Eventually(t, func() bool { return w.SentCount() >= 1 }, 200*time.Millisecond, time.Millisecond,
		"first poll tick should emit immediately once scanning is asserted")

	clock.Advance(pollInterval)
	assert.Equal(t, 1, w.SentCount(), "no reemit before reemitInterval has elapsed")

	clock.Advance(reemitInterval)
	require.Eventually(t, func() bool { return w.SentCount() >= 2 }, 200*time.Millisecond, time.Millisecond,
		"second emission once reemitInterval has elapsed")
}
