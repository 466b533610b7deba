package session

import "fmt"

// HeadConfig holds the recognized per-head configuration options, all
// ranges inclusive per the data model.
type HeadConfig struct {
	ScanOffsetUs uint32

	CameraExposureMinUs uint32
	CameraExposureDefUs uint32
	CameraExposureMaxUs uint32

	LaserOnMinUs uint32
	LaserOnDefUs uint32
	LaserOnMaxUs uint32

	LaserDetectionThreshold uint32
	SaturationThreshold     uint32
	SaturationPercentage    uint32
}

// DefaultHeadConfig returns a config with autoexposure disabled (min=def=max)
// at a conservative midpoint, suitable as a starting point before the host
// supplies its own.
func DefaultHeadConfig() HeadConfig {
	return HeadConfig{
		CameraExposureMinUs:     1000,
		CameraExposureDefUs:     1000,
		CameraExposureMaxUs:     1000,
		LaserOnMinUs:            100,
		LaserOnDefUs:            100,
		LaserOnMaxUs:            100,
		LaserDetectionThreshold: 120,
		SaturationThreshold:     800,
		SaturationPercentage:    50,
	}
}

// Validate checks every field against the ranges the data model fixes.
func (c HeadConfig) Validate() error {
	if c.CameraExposureMinUs < 15 || c.CameraExposureMaxUs > 2_000_000 {
		return fmt.Errorf("session: camera exposure out of range [15, 2000000]us")
	}
	if !(c.CameraExposureMinUs <= c.CameraExposureDefUs && c.CameraExposureDefUs <= c.CameraExposureMaxUs) {
		return fmt.Errorf("session: camera exposure must satisfy min <= def <= max")
	}
	allZero := c.LaserOnMinUs == 0 && c.LaserOnDefUs == 0 && c.LaserOnMaxUs == 0
	if !allZero {
		if c.LaserOnMinUs < 15 || c.LaserOnMaxUs > 650_000 {
			return fmt.Errorf("session: laser on time out of range [15, 650000]us")
		}
		if !(c.LaserOnMinUs <= c.LaserOnDefUs && c.LaserOnDefUs <= c.LaserOnMaxUs) {
			return fmt.Errorf("session: laser on time must satisfy min <= def <= max")
		}
	}
	if c.LaserDetectionThreshold > 1023 {
		return fmt.Errorf("session: laser detection threshold out of range [0, 1023]")
	}
	if c.SaturationThreshold > 1023 {
		return fmt.Errorf("session: saturation threshold out of range [0, 1023]")
	}
	if c.SaturationPercentage < 1 || c.SaturationPercentage > 100 {
		return fmt.Errorf("session: saturation percentage out of range [1, 100]")
	}
	return nil
}

// DataFormat enumerates the seven recognized scan data formats.
type DataFormat int

const (
	FormatXYFullLMFull DataFormat = iota
	FormatXYHalfLMHalf
	FormatXYQuarterLMQuarter
	FormatXYFull
	FormatXYHalf
	FormatXYQuarter
	FormatCameraImageFull
)

func (f DataFormat) String() string {
	switch f {
	case FormatXYFullLMFull:
		return "XY_FULL_LM_FULL"
	case FormatXYHalfLMHalf:
		return "XY_HALF_LM_HALF"
	case FormatXYQuarterLMQuarter:
		return "XY_QUARTER_LM_QUARTER"
	case FormatXYFull:
		return "XY_FULL"
	case FormatXYHalf:
		return "XY_HALF"
	case FormatXYQuarter:
		return "XY_QUARTER"
	case FormatCameraImageFull:
		return "CAMERA_IMAGE_FULL"
	default:
		return fmt.Sprintf("DataFormat(%d)", int(f))
	}
}

// bitmaskAndSteps returns the data-type bitmask and the step vector
// (ascending by bit value) for a format, per the external interfaces table.
func bitmaskAndSteps(f DataFormat) (uint16, []uint16, error) {
	const (
		xy = 1 << 1
		b  = 1 << 0
	)
	switch f {
	case FormatXYFullLMFull:
		return b | xy, []uint16{1, 1}, nil
	case FormatXYHalfLMHalf:
		return b | xy, []uint16{2, 2}, nil
	case FormatXYQuarterLMQuarter:
		return b | xy, []uint16{4, 4}, nil
	case FormatXYFull:
		return xy, []uint16{1}, nil
	case FormatXYHalf:
		return xy, []uint16{2}, nil
	case FormatXYQuarter:
		return xy, []uint16{4}, nil
	case FormatCameraImageFull:
		return 1 << 5, nil, nil
	default:
		return 0, nil, fmt.Errorf("session: unrecognized data format %v", f)
	}
}
