package session

import (
	"fmt"
	"math"
	"time"

	"scanhead/internal/geometry"
	"scanhead/internal/profile"
	"scanhead/internal/transport"
	"scanhead/internal/wire"
)

// SetAlignment stores a per-camera alignment for a head. Legal only while
// Disconnected, since the connect handshake's window push bakes the
// alignment in at connect time.
func (s *Session) SetAlignment(serial uint32, cameraID uint8, rollDeg, shiftXIn, shiftYIn float64, cableDownstream bool) error {
	h, err := s.headForWrite(serial, true)
	if err != nil {
		return err
	}
	h.setAlignment(cameraID, geometry.NewAlignment(rollDeg, shiftXIn, shiftYIn, cableDownstream))
	return nil
}

// SetWindow stores the scan window for a head, in inches. Legal only while
// Disconnected.
func (s *Session) SetWindow(serial uint32, topIn, bottomIn, leftIn, rightIn float64) error {
	w, err := geometry.NewWindow(topIn, bottomIn, leftIn, rightIn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	h, err := s.headForWrite(serial, true)
	if err != nil {
		return err
	}
	h.setWindow(w)
	return nil
}

// MaxScanRateHz reports the current dynamic per-fleet ceiling.
func (s *Session) MaxScanRateHz() float64 {
	return s.maxScanRateHz()
}

// StartScanning validates rateHz and begins continuous scanning on every
// registered head using format. Legal only while Connected.
func (s *Session) StartScanning(rateHz float64, format DataFormat) error {
	if format == FormatCameraImageFull {
		return fmt.Errorf("%w: continuous scanning of the image format is rejected", ErrInvalidArgument)
	}
	if rateHz < MinScanRateHz || rateHz > MaxScanRateHz {
		return fmt.Errorf("%w: rate %v outside [%v, %v]", ErrInvalidArgument, rateHz, MinScanRateHz, MaxScanRateHz)
	}

	dynamicMax := s.maxScanRateHz()
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if rateHz > dynamicMax {
		s.mu.Unlock()
		return fmt.Errorf("%w: rate %v exceeds dynamic max %v", ErrInvalidArgument, rateHz, dynamicMax)
	}
	sessionID := s.sessionID
	s.scanRateHz = rateHz
	heads := make([]*Head, 0, len(s.headsBySerial))
	for _, h := range s.headsBySerial {
		heads = append(heads, h)
	}
	s.mu.Unlock()

	bitmask, steps, err := bitmaskAndSteps(format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	intervalUs := uint32(math.Round(1_000_000.0 / rateHz))
	var vector []transport.ScanRequestEntry
	for _, h := range heads {
		h.setDataFormat(format)
		h.queue.Clear()

		cfg := h.getConfig()
		addr := h.commandAddr()
		if addr == nil {
			continue
		}
		req := wire.ScanRequest{
			ClientPort:              uint16(h.receiver.LocalPort()),
			RequestSequence:         h.nextRequestSequence(),
			ScanHeadID:              h.WireID,
			LaserExposureMinUs:      cfg.LaserOnMinUs,
			LaserExposureDefUs:      cfg.LaserOnDefUs,
			LaserExposureMaxUs:      cfg.LaserOnMaxUs,
			CameraExposureMinUs:     cfg.CameraExposureMinUs,
			CameraExposureDefUs:     cfg.CameraExposureDefUs,
			CameraExposureMaxUs:     cfg.CameraExposureMaxUs,
			LaserDetectionThreshold: cfg.LaserDetectionThreshold,
			SaturationThreshold:     cfg.SaturationThreshold,
			SaturationPercentage:    cfg.SaturationPercentage,
			ScanIntervalUs:          intervalUs,
			ScanOffsetUs:            cfg.ScanOffsetUs,
			NumberOfScans:           0xFFFFFFFF,
			DataTypeMask:            bitmask,
			StartColumn:             0,
			EndColumn:               profile.MaxPoints - 1,
			Steps:                   steps,
		}
		_ = sessionID
		vector = append(vector, transport.ScanRequestEntry{Dest: addr, Payload: req.Marshal()})
	}

	s.timer.SetVector(vector)
	s.setState(StateScanning)
	return nil
}

// StopScanning clears the re-emit vector and returns to Connected. Sockets
// are left open. Legal only while Scanning.
func (s *Session) StopScanning() error {
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return ErrNotScanning
	}
	s.scanRateHz = 0
	s.mu.Unlock()

	s.timer.Clear()
	s.setState(StateConnected)
	return nil
}

// WaitUntilNProfiles blocks until n profiles are queued for the given head
// or timeout elapses, returning the depth observed.
func (s *Session) WaitUntilNProfiles(serial uint32, n int, timeout time.Duration) (int, error) {
	h, err := s.Head(serial)
	if err != nil {
		return 0, err
	}
	return h.queue.WaitUntilAvailable(n, timeout), nil
}

// GetProfiles drains up to n completed profiles for the given head.
func (s *Session) GetProfiles(serial uint32, n int) ([]profile.Profile, error) {
	h, err := s.Head(serial)
	if err != nil {
		return nil, err
	}
	return h.queue.Pop(n), nil
}

// GetStatus returns the head's latest status snapshot. Legal only while
// Connected and not Scanning.
func (s *Session) GetStatus(serial uint32) (wire.StatusMessage, error) {
	if s.State() != StateConnected {
		return wire.StatusMessage{}, ErrNotConnected
	}
	h, err := s.Head(serial)
	if err != nil {
		return wire.StatusMessage{}, err
	}
	status, ok, _ := h.status()
	if !ok {
		return wire.StatusMessage{}, fmt.Errorf("session: no status received yet")
	}
	return status, nil
}

// GetCameraImage captures a single image-format frame from one camera by
// temporarily overriding the laser-on bounds, forcing the image format,
// running a short start/stop cycle, and restoring the head's prior
// configuration and format. Legal only while Connected and not Scanning.
func (s *Session) GetCameraImage(serial uint32, cameraID uint8, lasersOn bool) ([]byte, error) {
	if s.State() != StateConnected {
		return nil, ErrNotConnected
	}
	h, err := s.Head(serial)
	if err != nil {
		return nil, err
	}

	savedConfig := h.getConfig()
	savedFormat := h.getDataFormat()

	imageConfig := savedConfig
	if lasersOn {
		imageConfig.LaserOnMinUs, imageConfig.LaserOnDefUs, imageConfig.LaserOnMaxUs = 100, 100, 100
	} else {
		imageConfig.LaserOnMinUs, imageConfig.LaserOnDefUs, imageConfig.LaserOnMaxUs = 0, 0, 0
	}
	h.setConfig(imageConfig)
	h.setDataFormat(FormatCameraImageFull)
	defer h.setConfig(savedConfig)
	defer h.setDataFormat(savedFormat)

	// Single-shot capture runs its own start/stop cycle directly: it needs
	// the image format StartScanning rejects for continuous scanning.
	s.setState(StateScanning)
	defer s.setState(StateConnected)

	addr := h.commandAddr()
	if addr == nil {
		return nil, fmt.Errorf("session: head %d has no known address", serial)
	}
	h.queue.Clear()
	req := wire.ScanRequest{
		ClientPort:              uint16(h.receiver.LocalPort()),
		RequestSequence:         h.nextRequestSequence(),
		ScanHeadID:              h.WireID,
		CameraID:                cameraID,
		LaserExposureMinUs:      imageConfig.LaserOnMinUs,
		LaserExposureDefUs:      imageConfig.LaserOnDefUs,
		LaserExposureMaxUs:      imageConfig.LaserOnMaxUs,
		CameraExposureMinUs:     imageConfig.CameraExposureMinUs,
		CameraExposureDefUs:     imageConfig.CameraExposureDefUs,
		CameraExposureMaxUs:     imageConfig.CameraExposureMaxUs,
		LaserDetectionThreshold: imageConfig.LaserDetectionThreshold,
		SaturationThreshold:     imageConfig.SaturationThreshold,
		SaturationPercentage:    imageConfig.SaturationPercentage,
		ScanIntervalUs:          1_000_000,
		NumberOfScans:           1,
		DataTypeMask:            1 << 5,
		StartColumn:             0,
		EndColumn:               profile.MaxPoints - 1,
	}
	s.sender.Enqueue(transport.Command{Dest: addr, Payload: req.Marshal()})

	n := h.queue.WaitUntilAvailable(1, 5*time.Second)
	s.sender.Enqueue(transport.Command{Dest: addr, Payload: wire.MarshalDisconnect()})
	if n < 1 {
		return nil, fmt.Errorf("session: timed out waiting for camera %d image", cameraID)
	}
	got := h.queue.Pop(1)
	for _, p := range got {
		if p.CameraID == cameraID && p.Image != nil {
			return p.Image, nil
		}
	}
	return nil, fmt.Errorf("session: no image frame received for camera %d", cameraID)
}
