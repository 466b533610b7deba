package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"scanhead/internal/logging"
	"scanhead/internal/profile"
	"scanhead/internal/wire"
)

// RecvBufferBytes is the requested OS receive-buffer size; the kernel may
// silently cap it lower, which is not treated as an error.
const RecvBufferBytes = 256 * 1024 * 1024

// MaxDatagramBytes bounds a single read; anything larger is truncated by
// the OS and then rejected as short by the parser.
const MaxDatagramBytes = 6144

const readTimeout = time.Second

// State is the per-head receiver's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateRunning:
		return "Running"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Receiver owns one scan head's UDP socket and receive loop. It parses
// incoming datagrams, drives a profile.Assembler for data packets, and
// maintains the head's latest status snapshot for status messages.
type Receiver struct {
	scanHeadID    uint8
	socketFactory UDPSocketFactory
	assembler     *profile.Assembler
	queue         *profile.Queue
	logger        *log.Logger

	mu               sync.Mutex
	cond             *sync.Cond
	state            State
	socket           UDPSocket
	status           wire.StatusMessage
	hasStatus        bool
	statusReceivedAt time.Time
	statusSourceIP   net.IP
	packetsReceived  uint64
}

// NewReceiver constructs a Receiver for one scan head.
func NewReceiver(scanHeadID uint8, assembler *profile.Assembler, queue *profile.Queue, factory UDPSocketFactory, logger *log.Logger) *Receiver {
	if factory == nil {
		factory = NewRealUDPSocketFactory()
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Receiver{
		scanHeadID:    scanHeadID,
		socketFactory: factory,
		assembler:     assembler,
		queue:         queue,
		logger:        logger,
		state:         StateStopped,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start binds the socket and runs the receive loop until ctx is cancelled
// or Stop is called. It blocks the calling goroutine; callers run it in its
// own goroutine per scan head.
func (r *Receiver) Start(ctx context.Context) error {
	socket, err := r.socketFactory.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("network: scan head %d: listen: %w", r.scanHeadID, err)
	}
	if err := socket.SetReadBuffer(RecvBufferBytes); err != nil {
		r.logger.Printf("network: scan head %d: set read buffer: %v (continuing with OS default)", r.scanHeadID, err)
	}

	r.mu.Lock()
	r.socket = socket
	r.state = StateRunning
	r.cond.Broadcast()
	r.mu.Unlock()

	buf := make([]byte, MaxDatagramBytes)
	for {
		if ctx.Err() != nil {
			return r.shutdown(socket, ctx.Err())
		}

		if err := socket.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			r.logger.Printf("network: scan head %d: set read deadline: %v", r.scanHeadID, err)
		}

		n, src, err := socket.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return r.shutdown(socket, ctx.Err())
			}
			r.logger.Printf("network: scan head %d: read error: %v", r.scanHeadID, err)
			continue
		}

		r.handleDatagram(buf[:n], src)
	}
}

func (r *Receiver) shutdown(socket UDPSocket, ctxErr error) error {
	r.mu.Lock()
	r.state = StateStopped
	r.socket = nil
	r.cond.Broadcast()
	r.mu.Unlock()
	r.queue.Close()
	_ = socket.Close()
	return ctxErr
}

func (r *Receiver) handleDatagram(b []byte, src *net.UDPAddr) {
	if len(b) < wire.InfoHeaderSize {
		return
	}
	magic := uint16(b[0])<<8 | uint16(b[1])
	switch magic {
	case wire.MagicData:
		r.mu.Lock()
		r.packetsReceived++
		r.mu.Unlock()
		dp, err := wire.UnmarshalDataPacket(b)
		if err != nil {
			r.logger.Printf("network: scan head %d: malformed data packet: %v", r.scanHeadID, err)
			return
		}
		for _, completed := range r.assembler.Ingest(dp) {
			r.queue.Push(completed)
		}
	case wire.MagicStatusCommand:
		status, err := wire.UnmarshalStatusMessage(b)
		if err != nil {
			r.logger.Printf("network: scan head %d: malformed status message: %v", r.scanHeadID, err)
			return
		}
		r.mu.Lock()
		r.status = status
		r.hasStatus = true
		r.statusReceivedAt = time.Now()
		if src != nil {
			r.statusSourceIP = src.IP
		}
		r.cond.Broadcast()
		r.mu.Unlock()
	default:
		// Unrecognized magic: drop silently, per the transient-I/O taxonomy.
	}
}

// Stop requests the receive loop exit by closing its socket; Start's
// ReadFromUDP then returns net.ErrClosed and the loop tears itself down.
// Safe to call before Start has bound a socket.
func (r *Receiver) Stop() {
	r.mu.Lock()
	if r.state == StateRunning {
		r.state = StateShuttingDown
	}
	socket := r.socket
	r.mu.Unlock()
	if socket != nil {
		_ = socket.Close()
	}
}

// State returns the receiver's current lifecycle state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// WaitForState blocks until the receiver reaches want or timeout elapses,
// returning the state actually observed.
func (r *Receiver) WaitForState(want State, timeout time.Duration) State {
	deadline := time.Now().Add(timeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.state != want {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		timer := time.AfterFunc(remaining, r.cond.Broadcast)
		r.cond.Wait()
		timer.Stop()
	}
	return r.state
}

// Status returns the latest status snapshot, whether one has ever been
// received, and when it arrived.
func (r *Receiver) Status() (wire.StatusMessage, bool, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.hasStatus, r.statusReceivedAt
}

// ClearStatus discards the current snapshot, used before emitting a
// broadcast-connect or set-window so a stale reply cannot satisfy a wait.
func (r *Receiver) ClearStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = wire.StatusMessage{}
	r.hasStatus = false
}

// StatusSourceIP returns the source address of the most recent status
// message, or nil if none has arrived. Connect uses this to learn a scan
// head's IP from its own reply rather than any field inside the message.
func (r *Receiver) StatusSourceIP() net.IP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusSourceIP
}

// WaitForFreshStatus blocks until a status snapshot newer than after
// arrives or timeout elapses.
func (r *Receiver) WaitForFreshStatus(after time.Time, timeout time.Duration) (wire.StatusMessage, bool) {
	deadline := time.Now().Add(timeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	for !(r.hasStatus && r.statusReceivedAt.After(after)) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return wire.StatusMessage{}, false
		}
		timer := time.AfterFunc(remaining, r.cond.Broadcast)
		r.cond.Wait()
		timer.Stop()
	}
	return r.status, true
}

// LocalPort returns the ephemeral port the receiver's socket bound to, or 0
// if it has not started.
func (r *Receiver) LocalPort() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.socket == nil {
		return 0
	}
	if addr, ok := r.socket.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}
