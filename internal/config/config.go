// Package config loads the host process's JSON configuration file: which
// scan heads to register, their window/alignment, the registry store path,
// and the default scan rate. Fields omitted from the JSON file retain their
// default values, so partial configs are safe, matching the teacher's
// TuningConfig idiom.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"scanhead/internal/fsutil"
)

// maxFileSize bounds a config file read, as a sanity check against an
// accidentally-pointed-at-the-wrong-file mistake.
const maxFileSize = 1 * 1024 * 1024

// HeadSpec describes one scan head the host process should register at
// startup, plus the window and alignment to apply before connecting.
type HeadSpec struct {
	Serial uint32 `json:"serial"`
	UserID uint32 `json:"user_id"`

	WindowTopIn    *float64 `json:"window_top_in,omitempty"`
	WindowBottomIn *float64 `json:"window_bottom_in,omitempty"`
	WindowLeftIn   *float64 `json:"window_left_in,omitempty"`
	WindowRightIn  *float64 `json:"window_right_in,omitempty"`

	AlignmentRollDeg      *float64 `json:"alignment_roll_deg,omitempty"`
	AlignmentShiftXIn     *float64 `json:"alignment_shift_x_in,omitempty"`
	AlignmentShiftYIn     *float64 `json:"alignment_shift_y_in,omitempty"`
	AlignmentCableDownstm *bool    `json:"alignment_cable_downstream,omitempty"`
}

// HasWindow reports whether all four window bounds were specified.
func (h HeadSpec) HasWindow() bool {
	return h.WindowTopIn != nil && h.WindowBottomIn != nil && h.WindowLeftIn != nil && h.WindowRightIn != nil
}

// HostConfig is the root configuration for the host process.
type HostConfig struct {
	StorePath             *string    `json:"store_path,omitempty"`
	DefaultScanRateHz     *float64   `json:"default_scan_rate_hz,omitempty"`
	ConnectTimeoutSeconds *int       `json:"connect_timeout_seconds,omitempty"`
	Heads                 []HeadSpec `json:"heads,omitempty"`
}

// EmptyHostConfig returns a HostConfig with every field at its zero value;
// LoadConfig fills in the JSON file's contents on top of it.
func EmptyHostConfig() *HostConfig {
	return &HostConfig{}
}

// LoadConfig loads a HostConfig from a JSON file on the real filesystem.
func LoadConfig(path string) (*HostConfig, error) {
	return LoadConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadConfigFS loads a HostConfig through fs, so tests can exercise the
// parsing and validation logic against an in-memory filesystem instead of
// writing temp files.
func LoadConfigFS(fs fsutil.FileSystem, path string) (*HostConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config: file must have .json extension, got %q", ext)
	}

	info, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", cleanPath, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config: file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", cleanPath, err)
	}

	cfg := EmptyHostConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", cleanPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Validate checks the fields that were set for obvious mistakes. Ranges
// that depend on a live scan head's reported capabilities (e.g. the
// dynamic max scan rate) are left to the session package to enforce.
func (c *HostConfig) Validate() error {
	if c.DefaultScanRateHz != nil && *c.DefaultScanRateHz <= 0 {
		return fmt.Errorf("default_scan_rate_hz must be positive, got %v", *c.DefaultScanRateHz)
	}
	if c.ConnectTimeoutSeconds != nil && *c.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("connect_timeout_seconds must be positive, got %d", *c.ConnectTimeoutSeconds)
	}
	seenSerial := make(map[uint32]bool, len(c.Heads))
	seenUserID := make(map[uint32]bool, len(c.Heads))
	for _, h := range c.Heads {
		if seenSerial[h.Serial] {
			return fmt.Errorf("duplicate head serial %d", h.Serial)
		}
		seenSerial[h.Serial] = true
		if seenUserID[h.UserID] {
			return fmt.Errorf("duplicate head user_id %d", h.UserID)
		}
		seenUserID[h.UserID] = true
	}
	return nil
}

// GetStorePath returns the configured registry store path, or ":memory:"
// (persistence disabled) if unset.
func (c *HostConfig) GetStorePath() string {
	if c.StorePath == nil {
		return ":memory:"
	}
	return *c.StorePath
}

// GetDefaultScanRateHz returns the configured default scan rate, or 100Hz
// if unset.
func (c *HostConfig) GetDefaultScanRateHz() float64 {
	if c.DefaultScanRateHz == nil {
		return 100
	}
	return *c.DefaultScanRateHz
}

// GetConnectTimeoutSeconds returns the configured connect timeout, or 10s
// if unset.
func (c *HostConfig) GetConnectTimeoutSeconds() int {
	if c.ConnectTimeoutSeconds == nil {
		return 10
	}
	return *c.ConnectTimeoutSeconds
}
