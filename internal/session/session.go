// Package session implements the scan system state machine (C7): head
// registration, discovery/connect, window push, scan-rate negotiation, and
// start/stop scanning, coordinating the wire codec, geometry, profile, and
// transport packages into the host-facing operations.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"scanhead/internal/logging"
	"scanhead/internal/transport"
)

// State is the scan system's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	case StateScanning:
		return "Scanning"
	default:
		return "Unknown"
	}
}

// kPinchotMax is the hard ceiling on scan rate regardless of what any head
// reports, matching the legacy client's constant of the same name.
const kPinchotMax = 4000.0

// MinScanRateHz and MaxScanRateHz bound the user-settable scan rate before
// the dynamic per-fleet maximum is applied.
const (
	MinScanRateHz = 0.2
	MaxScanRateHz = kPinchotMax
)

// PersistenceSink is the subset of the registry store (A3) the session
// writes to. Persistence is best-effort: failures are logged and never
// fail the calling operation. A nil sink disables persistence entirely.
type PersistenceSink interface {
	RecordScanHead(serial, userID uint32) error
	RecordConnectAttempt(sessionID uint8, heads, connected int, succeeded bool) error
}

// Session coordinates a fleet of scan heads. The zero value is not usable;
// construct with New.
type Session struct {
	logger *log.Logger
	store  PersistenceSink

	sender *transport.Sender
	timer  *transport.Timer

	mu            sync.Mutex
	state         State
	sessionID     uint8
	nextWireID    uint8
	headsBySerial map[uint32]*Head
	headsByUserID map[uint32]*Head
	scanRateHz    float64

	senderCtxCancel context.CancelFunc

	// discoverySockets overrides how Connect opens broadcast-capable
	// sockets, one per local interface; nil uses defaultBroadcastSockets.
	// Tests inject a mock set here instead of touching real interfaces.
	discoverySockets func() ([]transport.UDPWriter, error)
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithStore attaches a registry/history store. Persistence failures never
// fail the calling operation.
func WithStore(store PersistenceSink) Option {
	return func(s *Session) { s.store = store }
}

// WithDiscoverySockets overrides how Connect opens its broadcast sockets.
// Intended for tests; production callers should omit this option.
func WithDiscoverySockets(fn func() ([]transport.UDPWriter, error)) Option {
	return func(s *Session) { s.discoverySockets = fn }
}

// New constructs a Session with no heads registered, in Disconnected state.
func New(writer transport.UDPWriter, opts ...Option) *Session {
	s := &Session{
		logger:        logging.Default(),
		headsBySerial: make(map[uint32]*Head),
		headsByUserID: make(map[uint32]*Head),
		state:         StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sender = transport.NewSender(writer, s.logger)
	s.timer = transport.NewTimer(s.sender)

	ctx, cancel := context.WithCancel(context.Background())
	s.senderCtxCancel = cancel
	go s.sender.Run()
	go s.timer.Run(ctx)
	return s
}

// State returns the current system state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) persist(fn func() error) {
	if s.store == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.Printf("session: registry store: %v (continuing without persistence)", err)
	}
}

// CreateHead registers a new scan head. Legal only while Disconnected; the
// serial and user id must both be unused.
func (s *Session) CreateHead(serial, userID uint32) (*Head, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return nil, ErrConnected
	}
	if _, ok := s.headsBySerial[serial]; ok {
		return nil, ErrDuplicateSerial
	}
	if _, ok := s.headsByUserID[userID]; ok {
		return nil, ErrDuplicateUserID
	}
	wireID := s.nextWireID
	s.nextWireID++

	h := newHead(serial, userID, wireID, s.logger)
	s.headsBySerial[serial] = h
	s.headsByUserID[userID] = h

	s.persist(func() error { return s.store.RecordScanHead(serial, userID) })
	return h, nil
}

// RemoveHead unregisters a scan head. Legal only while Disconnected.
func (s *Session) RemoveHead(serial uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return ErrConnected
	}
	h, ok := s.headsBySerial[serial]
	if !ok {
		return ErrUnknownHead
	}
	delete(s.headsBySerial, serial)
	delete(s.headsByUserID, h.UserID)
	return nil
}

// Head looks up a registered head by serial number.
func (s *Session) Head(serial uint32) (*Head, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headsBySerial[serial]
	if !ok {
		return nil, ErrUnknownHead
	}
	return h, nil
}

func (s *Session) headsSnapshot() []*Head {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Head, 0, len(s.headsBySerial))
	for _, h := range s.headsBySerial {
		out = append(out, h)
	}
	return out
}

// SetConfiguration validates and stores cfg for the given head. Legal
// whenever the system is not Scanning.
func (s *Session) SetConfiguration(serial uint32, cfg HeadConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	h, err := s.headForWrite(serial, false)
	if err != nil {
		return err
	}
	h.setConfig(cfg)
	return nil
}

// SetDataFormat stores the chosen format for the given head.
func (s *Session) SetDataFormat(serial uint32, format DataFormat) error {
	if _, _, err := bitmaskAndSteps(format); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	h, err := s.Head(serial)
	if err != nil {
		return err
	}
	h.setDataFormat(format)
	return nil
}

// headForWrite fetches a head, optionally requiring the system be
// Disconnected (requireDisconnected=true) rather than merely not Scanning.
func (s *Session) headForWrite(serial uint32, requireDisconnected bool) (*Head, error) {
	s.mu.Lock()
	state := s.state
	h, ok := s.headsBySerial[serial]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownHead
	}
	if requireDisconnected && state != StateDisconnected {
		return nil, ErrConnected
	}
	if state == StateScanning {
		return nil, ErrScanning
	}
	return h, nil
}

// Close stops scanning and disconnects (best effort), then tears down the
// shared sender and timer goroutines. Mirrors destroying the scan system.
func (s *Session) Close() error {
	if s.State() == StateScanning {
		_ = s.StopScanning()
	}
	if s.State() == StateConnected {
		_ = s.Disconnect()
	}
	s.senderCtxCancel()
	return s.sender.Close()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// currentScanRate returns the rate the system is scanning at, or 0 if not
// scanning.
func (s *Session) currentScanRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanRateHz
}
