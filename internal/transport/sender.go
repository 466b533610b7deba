// Package transport implements the shared outbound UDP path (C6): a single
// send queue serving every scan head, and a periodic timer that re-emits
// cached scan-request keepalives while scanning is active.
package transport

import (
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"scanhead/internal/logging"
	"scanhead/internal/wire"
)

// sendPause is inserted after every send as a workaround for host-side UDP
// drops under burst, per the wire protocol's send/timer design.
const sendPause = time.Millisecond

// Command is one outbound datagram destined for a specific address.
type Command struct {
	Dest    *net.UDPAddr
	Payload []byte
}

// UDPWriter abstracts the outbound socket so tests can observe sends
// without a real network stack.
type UDPWriter interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
}

// RealUDPWriter wraps a *net.UDPConn opened for sending.
type RealUDPWriter struct {
	conn *net.UDPConn
}

// NewRealUDPWriter opens a UDP socket suitable for sending commands,
// including to the limited broadcast address.
func NewRealUDPWriter() (*RealUDPWriter, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, err
	}
	return &RealUDPWriter{conn: conn}, nil
}

func (w *RealUDPWriter) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	return w.conn.WriteToUDP(b, addr)
}

func (w *RealUDPWriter) Close() error { return w.conn.Close() }

// NewRealUDPWriterBound opens a UDP socket bound to localIP with SO_BROADCAST
// enabled, for sending discovery broadcasts out a specific local interface.
func NewRealUDPWriterBound(localIP net.IP) (*RealUDPWriter, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: localIP, Port: 0})
	if err != nil {
		return nil, err
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		conn.Close()
		return nil, err
	}
	if sockErr != nil {
		conn.Close()
		return nil, sockErr
	}
	return &RealUDPWriter{conn: conn}, nil
}

// MockUDPWriter records every send for test assertions.
type MockUDPWriter struct {
	mu    sync.Mutex
	Sent  []Command
	Err   error
	Closed bool
}

func (w *MockUDPWriter) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return 0, w.Err
	}
	cp := append([]byte(nil), b...)
	w.Sent = append(w.Sent, Command{Dest: addr, Payload: cp})
	return len(b), nil
}

func (w *MockUDPWriter) Close() error {
	w.Closed = true
	return nil
}

// SentCount returns the number of successful sends so far.
func (w *MockUDPWriter) SentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Sent)
}

// Sender drains a FIFO queue of outbound commands on its own goroutine. A
// failed send is logged and the loop continues; it never blocks the caller
// enqueuing new commands.
type Sender struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Command
	closed bool
	writer UDPWriter
	logger *log.Logger
}

// NewSender constructs a Sender around writer.
func NewSender(writer UDPWriter, logger *log.Logger) *Sender {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sender{writer: writer, logger: logger}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Enqueue appends a command to the send queue, waking the sender loop.
func (s *Sender) Enqueue(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, cmd)
	s.cond.Broadcast()
}

// Run drains the queue until Close is called. It is meant to run on its own
// goroutine for the lifetime of the scan system.
func (s *Sender) Run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		cmd := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if _, err := s.writer.WriteToUDP(cmd.Payload, cmd.Dest); err != nil {
			s.logger.Printf("transport: send to %v failed: %v", cmd.Dest, err)
		}
		time.Sleep(sendPause)
	}
}

// Close stops Run once the queue drains and closes the underlying writer.
func (s *Sender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return s.writer.Close()
}

// BroadcastAddr is the limited broadcast address scan heads listen for
// discovery on.
func BroadcastAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4bcast, Port: wire.CommandPort}
}
