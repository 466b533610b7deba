package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"scanhead/internal/timeutil"
)

// reemitInterval is how often the timer re-sends the cached scan-request
// vector while scanning is active.
const reemitInterval = 500 * time.Millisecond

// pollInterval is how often the timer checks whether it is time to re-emit,
// bounding the latency of reacting to a scanning state change.
const pollInterval = 100 * time.Millisecond

// ScanRequestEntry pairs a scan head's destination with its current
// scan-request datagram.
type ScanRequestEntry struct {
	Dest    *net.UDPAddr
	Payload []byte
}

// Timer re-emits a cached vector of per-head scan-request datagrams every
// reemitInterval while scanning is asserted. This functions as both the
// mechanism that starts continuous scanning and a keepalive: scan heads
// detect client restarts via the request_sequence byte inside the payload.
type Timer struct {
	sender *Sender
	clock  timeutil.Clock

	mu       sync.Mutex
	scanning bool
	vector   []ScanRequestEntry
}

// NewTimer constructs a Timer that enqueues re-emits on sender, using the
// real wall clock.
func NewTimer(sender *Sender) *Timer {
	return NewTimerWithClock(sender, timeutil.RealClock{})
}

// NewTimerWithClock constructs a Timer against an injected clock, so tests
// can advance time deterministically instead of sleeping real wall time.
func NewTimerWithClock(sender *Sender, clock timeutil.Clock) *Timer {
	return &Timer{sender: sender, clock: clock}
}

// SetVector swaps in a new scan-request vector and asserts scanning.
func (t *Timer) SetVector(vector []ScanRequestEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vector = vector
	t.scanning = true
}

// Clear deasserts scanning and drops the cached vector.
func (t *Timer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vector = nil
	t.scanning = false
}

// Run polls every pollInterval and re-emits the cached vector once every
// reemitInterval while scanning is asserted, emitting the first wave
// immediately once SetVector is observed. It returns when ctx is cancelled.
func (t *Timer) Run(ctx context.Context) {
	var lastEmit time.Time
	ticker := t.clock.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			t.mu.Lock()
			scanning := t.scanning
			vector := t.vector
			t.mu.Unlock()

			if !scanning {
				lastEmit = time.Time{}
				continue
			}
			if !lastEmit.IsZero() && t.clock.Since(lastEmit) < reemitInterval {
				continue
			}
			for _, entry := range vector {
				t.sender.Enqueue(Command{Dest: entry.Dest, Payload: entry.Payload})
			}
			lastEmit = t.clock.Now()
		}
	}
}
