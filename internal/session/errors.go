package session

import "errors"

// Sentinel errors mirroring the error taxonomy in the external host API.
// internal/hostapi maps these to the numeric codes host callers see.
var (
	ErrNullArgument          = errors.New("session: null argument")
	ErrInvalidArgument       = errors.New("session: invalid argument")
	ErrNotConnected          = errors.New("session: not connected")
	ErrConnected             = errors.New("session: already connected")
	ErrNotScanning           = errors.New("session: not scanning")
	ErrScanning              = errors.New("session: scanning in progress")
	ErrVersionIncompatible   = errors.New("session: scan head version incompatible")
	ErrNoBroadcastInterfaces = errors.New("session: no valid broadcast interfaces")
	ErrUnknownHead           = errors.New("session: unknown scan head")
	ErrDuplicateSerial       = errors.New("session: serial number already registered")
	ErrDuplicateUserID       = errors.New("session: user id already registered")
)
