// Package hostapi implements the C-style host interface (C8): a registry of
// opaque 64-bit handles over *session.Session, and numeric error codes for
// every operation so language bindings never need to marshal Go errors.
//
// Handles are backed by an integer identifier into a process-wide registry
// rather than a raw pointer cast, so an invalid or stale handle from a host
// caller is detected instead of dereferencing freed memory.
package hostapi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"scanhead/internal/profile"
	"scanhead/internal/session"
	"scanhead/internal/transport"
	"scanhead/internal/wire"
)

// Error codes surfaced to the host API.
const (
	OK                    = 0
	Internal              = -1
	NullArgument          = -2
	InvalidArgument       = -3
	NotConnected          = -4
	Connected             = -5
	NotScanning           = -6
	Scanning              = -7
	VersionCompatibility  = -8
	UnknownHandleOrHead   = -9
)

// Handle is an opaque 64-bit reference to a registered *session.Session,
// ABI-stable regardless of how the registry stores its entries.
type Handle uint64

var (
	registryMu sync.RWMutex
	registry   = make(map[Handle]*session.Session)
	nextHandle uint64
)

// CreateScanSystem constructs a new session backed by writer and registers
// it, returning the handle host callers use for every subsequent call.
func CreateScanSystem(writer transport.UDPWriter, opts ...session.Option) Handle {
	s := session.New(writer, opts...)
	h := Handle(atomic.AddUint64(&nextHandle, 1))
	registryMu.Lock()
	registry[h] = s
	registryMu.Unlock()
	return h
}

// DestroyScanSystem closes and unregisters the session behind h. Returns OK
// or UnknownHandleOrHead if h is not registered.
func DestroyScanSystem(h Handle) int {
	registryMu.Lock()
	s, ok := registry[h]
	if ok {
		delete(registry, h)
	}
	registryMu.Unlock()
	if !ok {
		return UnknownHandleOrHead
	}
	_ = s.Close()
	return OK
}

func lookup(h Handle) (*session.Session, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[h]
	return s, ok
}

// code maps a session package sentinel error (or nil) to a host API error
// code, per the error taxonomy in the system's error handling design.
func code(err error) int {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, session.ErrNullArgument):
		return NullArgument
	case errors.Is(err, session.ErrInvalidArgument):
		return InvalidArgument
	case errors.Is(err, session.ErrNotConnected):
		return NotConnected
	case errors.Is(err, session.ErrConnected):
		return Connected
	case errors.Is(err, session.ErrNotScanning):
		return NotScanning
	case errors.Is(err, session.ErrScanning):
		return Scanning
	case errors.Is(err, session.ErrVersionIncompatible):
		return VersionCompatibility
	case errors.Is(err, session.ErrNoBroadcastInterfaces):
		return InvalidArgument
	case errors.Is(err, session.ErrUnknownHead), errors.Is(err, session.ErrDuplicateSerial), errors.Is(err, session.ErrDuplicateUserID):
		return InvalidArgument
	default:
		return Internal
	}
}

// CreateScanHead registers a new scan head on the session behind h.
func CreateScanHead(h Handle, serial, userID uint32) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	_, err := s.CreateHead(serial, userID)
	return code(err)
}

// Connect runs the discovery/connect handshake with a timeout in seconds.
func Connect(h Handle, timeoutSeconds float64) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	if timeoutSeconds <= 0 {
		return InvalidArgument
	}
	err := s.Connect(context.Background(), time.Duration(timeoutSeconds*float64(time.Second)))
	return code(err)
}

// Disconnect tears down the connection to every registered head.
func Disconnect(h Handle) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	return code(s.Disconnect())
}

// SetConfiguration validates and stores cfg for serial.
func SetConfiguration(h Handle, serial uint32, cfg session.HeadConfig) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	return code(s.SetConfiguration(serial, cfg))
}

// SetAlignment stores a per-camera alignment for serial.
func SetAlignment(h Handle, serial uint32, cameraID uint8, rollDeg, shiftXIn, shiftYIn float64, cableDownstream bool) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	return code(s.SetAlignment(serial, cameraID, rollDeg, shiftXIn, shiftYIn, cableDownstream))
}

// SetWindow stores the scan window for serial, in inches.
func SetWindow(h Handle, serial uint32, topIn, bottomIn, leftIn, rightIn float64) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	return code(s.SetWindow(serial, topIn, bottomIn, leftIn, rightIn))
}

// SetDataFormat stores the chosen data format for serial.
func SetDataFormat(h Handle, serial uint32, format session.DataFormat) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	return code(s.SetDataFormat(serial, format))
}

// StartScanning begins continuous scanning across every registered head.
func StartScanning(h Handle, rateHz float64, format session.DataFormat) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	return code(s.StartScanning(rateHz, format))
}

// StopScanning ends continuous scanning, returning to Connected.
func StopScanning(h Handle) int {
	s, ok := lookup(h)
	if !ok {
		return UnknownHandleOrHead
	}
	return code(s.StopScanning())
}

// WaitUntilNProfiles blocks until n profiles are queued for serial or
// timeoutUs elapses, returning the depth observed and a result code: OK,
// or the error code for an unknown handle or head (with depth 0).
func WaitUntilNProfiles(h Handle, serial uint32, n int, timeoutUs int64) (int, int) {
	s, ok := lookup(h)
	if !ok {
		return 0, UnknownHandleOrHead
	}
	depth, err := s.WaitUntilNProfiles(serial, n, time.Duration(timeoutUs)*time.Microsecond)
	return depth, code(err)
}

// GetProfiles drains up to n completed profiles for serial.
func GetProfiles(h Handle, serial uint32, n int) ([]profile.Profile, int) {
	s, ok := lookup(h)
	if !ok {
		return nil, UnknownHandleOrHead
	}
	profiles, err := s.GetProfiles(serial, n)
	return profiles, code(err)
}

// GetStatus returns serial's latest status snapshot.
func GetStatus(h Handle, serial uint32) (wire.StatusMessage, int) {
	s, ok := lookup(h)
	if !ok {
		return wire.StatusMessage{}, UnknownHandleOrHead
	}
	status, err := s.GetStatus(serial)
	return status, code(err)
}

// HeadIP returns the IP address serial was reached at during Connect, as a
// dotted-quad string, for callers (e.g. a temperature-polling loop) that
// need to address the scan head directly outside the command protocol.
func HeadIP(h Handle, serial uint32) (string, int) {
	s, ok := lookup(h)
	if !ok {
		return "", UnknownHandleOrHead
	}
	ip, err := s.HeadIP(serial)
	if err != nil {
		return "", code(err)
	}
	return ip.String(), OK
}

// GetCameraImage captures a single image-format frame from one camera.
func GetCameraImage(h Handle, serial uint32, cameraID uint8, lasersOn bool) ([]byte, int) {
	s, ok := lookup(h)
	if !ok {
		return nil, UnknownHandleOrHead
	}
	image, err := s.GetCameraImage(serial, cameraID, lasersOn)
	return image, code(err)
}
