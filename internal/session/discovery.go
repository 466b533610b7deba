package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"scanhead/internal/transport"
	"scanhead/internal/wire"
)

// connectPollInterval is the cadence of broadcast waves during Connect.
const connectPollInterval = 500 * time.Millisecond

// windowPropagationDelay is how long Connect waits after pushing window
// constraints before expecting them to take effect.
const windowPropagationDelay = 500 * time.Millisecond

// disconnectSettleDelay is how long Disconnect waits before clearing status
// snapshots, giving in-flight datagrams time to drain.
const disconnectSettleDelay = 100 * time.Millisecond

func defaultBroadcastSockets() ([]transport.UDPWriter, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("session: enumerate interfaces: %w", err)
	}
	var out []transport.UDPWriter
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			writer, err := transport.NewRealUDPWriterBound(ip4)
			if err != nil {
				continue
			}
			out = append(out, writer)
		}
	}
	return out, nil
}

// Connect runs the discovery/connect handshake against every registered
// head. On success the system transitions to Connected and each head's
// learned IP, product type, and max scan rate become available. On
// failure or timeout the system remains Disconnected.
func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrConnected
	}
	heads := make([]*Head, 0, len(s.headsBySerial))
	for _, h := range s.headsBySerial {
		heads = append(heads, h)
	}
	s.mu.Unlock()

	if len(heads) == 0 {
		return fmt.Errorf("%w: no heads registered", ErrInvalidArgument)
	}

	sockets, err := s.broadcastSockets()
	if err != nil || len(sockets) == 0 {
		return ErrNoBroadcastInterfaces
	}
	defer func() {
		for _, sock := range sockets {
			_ = sock.Close()
		}
	}()

	for _, h := range heads {
		h.startReceiver(ctx)
	}

	s.mu.Lock()
	s.sessionID++
	sessionID := s.sessionID
	s.mu.Unlock()

	start := time.Now()
	connected := make(map[uint32]bool, len(heads))
	deadline := start.Add(timeout)
	var versionMismatch bool

	for time.Now().Before(deadline) && len(connected) < len(heads) {
		for _, h := range heads {
			if connected[h.Serial] {
				continue
			}
			h.receiver.ClearStatus()
			bc := wire.BroadcastConnect{
				DestPort:       uint16(h.receiver.LocalPort()),
				SessionID:      sessionID,
				ScanHeadID:     h.WireID,
				ConnectionKind: wire.ConnectionNormal,
				Serial:         h.Serial,
			}
			payload := bc.Marshal()
			for _, sock := range sockets {
				_, _ = sock.WriteToUDP(payload, transport.BroadcastAddr())
			}
		}

		time.Sleep(connectPollInterval)

		for _, h := range heads {
			if connected[h.Serial] {
				continue
			}
			status, ok, receivedAt := h.status()
			if !ok || receivedAt.Before(start) {
				continue
			}
			ourVersion := wire.VersionInformation{Major: wire.HostMajorVersion}
			if !ourVersion.CompatibleWith(status.Version) {
				versionMismatch = true
				continue
			}
			if srcIP := h.receiver.StatusSourceIP(); srcIP != nil {
				h.setIP(srcIP)
			}
			h.setProductType(status.Version.Product)
			connected[h.Serial] = true
		}
	}

	if len(connected) != len(heads) {
		for _, h := range heads {
			h.receiver.Stop()
		}
		s.persist(func() error {
			return s.store.RecordConnectAttempt(sessionID, len(heads), len(connected), false)
		})
		if versionMismatch {
			return ErrVersionIncompatible
		}
		return fmt.Errorf("session: connect timed out: %d of %d heads responded", len(connected), len(heads))
	}

	s.setState(StateConnected)
	s.persist(func() error {
		return s.store.RecordConnectAttempt(sessionID, len(heads), len(connected), true)
	})

	if err := s.pushWindows(heads); err != nil {
		s.logger.Printf("session: window push: %v", err)
	}
	return nil
}

func (s *Session) broadcastSockets() ([]transport.UDPWriter, error) {
	if s.discoverySockets != nil {
		return s.discoverySockets()
	}
	return defaultBroadcastSockets()
}

// pushWindows serializes each head's current window through its per-camera
// mill->camera transform and sends a Set-Window command per camera the
// head reported in its status.
func (s *Session) pushWindows(heads []*Head) error {
	for _, h := range heads {
		win, ok := h.getWindow()
		if !ok {
			continue
		}
		status, ok, _ := h.status()
		if !ok {
			continue
		}
		for cam := uint8(0); cam < status.ValidCameras; cam++ {
			alignment := h.Alignment(cam)
			constraints := win.ConstraintsForCamera(alignment)
			sw := wire.SetWindow{CameraID: cam}
			for _, c := range constraints {
				sw.Constraints = append(sw.Constraints, wire.Constraint{
					X1: c.P0.X, Y1: c.P0.Y, X2: c.P1.X, Y2: c.P1.Y,
				})
			}
			addr := h.commandAddr()
			if addr == nil {
				continue
			}
			s.sender.Enqueue(transport.Command{Dest: addr, Payload: sw.Marshal()})
		}
		h.receiver.ClearStatus()
	}

	time.Sleep(windowPropagationDelay)

	for _, h := range heads {
		h.receiver.WaitForFreshStatus(time.Now().Add(-windowPropagationDelay), time.Second)
	}
	return nil
}

// maxScanRateHz returns the dynamic per-fleet scan-rate ceiling: the
// smallest of kPinchotMax, every head's laser-on-time-derived ceiling, and
// every head's self-reported max_scan_rate.
func (s *Session) maxScanRateHz() float64 {
	max := kPinchotMax
	for _, h := range s.headsSnapshot() {
		cfg := h.getConfig()
		if cfg.LaserOnMaxUs > 0 {
			if rate := 1_000_000.0 / float64(cfg.LaserOnMaxUs); rate < max {
				max = rate
			}
		}
		if status, ok, _ := h.status(); ok && float64(status.MaxScanRate) < max && status.MaxScanRate > 0 {
			max = float64(status.MaxScanRate)
		}
	}
	return max
}

// HeadIP returns the IP address a head was reached at during Connect, for
// callers that need to address the scan head directly (e.g. its onboard
// HTTP temperature endpoint). Returns ErrNotConnected if the head has no
// learned address yet.
func (s *Session) HeadIP(serial uint32) (net.IP, error) {
	h, err := s.Head(serial)
	if err != nil {
		return nil, err
	}
	ip := h.getIP()
	if ip == nil {
		return nil, ErrNotConnected
	}
	return ip, nil
}

// Disconnect sends a Disconnect command to every head, stops their
// receivers, and returns the system to Disconnected. Legal only while
// Connected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	heads := make([]*Head, 0, len(s.headsBySerial))
	for _, h := range s.headsBySerial {
		heads = append(heads, h)
	}
	s.mu.Unlock()

	for _, h := range heads {
		addr := h.commandAddr()
		if addr != nil {
			s.sender.Enqueue(transport.Command{Dest: addr, Payload: wire.MarshalDisconnect()})
		}
		h.receiver.Stop()
	}

	time.Sleep(disconnectSettleDelay)
	for _, h := range heads {
		h.receiver.ClearStatus()
	}

	s.setState(StateDisconnected)
	return nil
}
