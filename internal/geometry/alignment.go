// Package geometry implements the per-camera rigid-body coordinate
// transforms between camera space and mill space, and the scan-window
// half-plane constraints derived from them. All coordinates are integers in
// mils (1/1000 inch); internal math is done in float64 and rounded on the
// way out.
package geometry

import "math"

// Alignment holds one camera's mounting parameters and its precomputed
// trigonometric constants. It is stateless once constructed: Alignment
// values are safe for concurrent use by multiple goroutines.
type Alignment struct {
	rollDeg         float64
	shiftXMils      float64
	shiftYMils      float64
	cableDownstream bool

	sinR   float64
	cosR   float64
	cosYaw float64 // +1 for yaw=0, -1 for yaw=180 (cable_downstream)
}

// NewAlignment constructs an Alignment from roll in degrees and shifts in
// inches, converting the shifts to mils and precomputing the roll sine and
// cosine and the yaw sign the transforms need.
func NewAlignment(rollDeg, shiftXIn, shiftYIn float64, cableDownstream bool) Alignment {
	rad := rollDeg * math.Pi / 180
	yaw := 1.0
	if cableDownstream {
		yaw = -1.0
	}
	return Alignment{
		rollDeg:         rollDeg,
		shiftXMils:      shiftXIn * 1000,
		shiftYMils:      shiftYIn * 1000,
		cableDownstream: cableDownstream,
		sinR:            math.Sin(rad),
		cosR:            math.Cos(rad),
		cosYaw:          yaw,
	}
}

// CableDownstream reports the mounting orientation this alignment was built
// with; callers pushing window constraints to the head use it to decide
// endpoint order (see Window.ConstraintsForCamera).
func (a Alignment) CableDownstream() bool {
	return a.cableDownstream
}

// CameraToMill maps a point in camera space (mils) to mill space (mils).
func (a Alignment) CameraToMill(x, y int32) (int32, int32) {
	fx, fy := float64(x), float64(y)
	mx := fx*a.cosYaw*a.cosR - fy*a.sinR + a.shiftXMils
	my := fx*a.cosYaw*a.sinR + fy*a.cosR + a.shiftYMils
	return round32(mx), round32(my)
}

// MillToCamera maps a point in mill space (mils) back to camera space
// (mils); it is the algebraic inverse of CameraToMill, with the translation
// undone before the rotation is inverted.
func (a Alignment) MillToCamera(x, y int32) (int32, int32) {
	dx := float64(x) - a.shiftXMils
	dy := float64(y) - a.shiftYMils
	cx := a.cosYaw * (a.cosR*dx + a.sinR*dy)
	cy := a.cosR*dy - a.sinR*dx
	return round32(cx), round32(cy)
}

func round32(v float64) int32 {
	return int32(math.Round(v))
}
