package geometry

import (
	"fmt"
)

// Point is a 2-D coordinate in mils.
type Point struct {
	X, Y int32
}

// Constraint is one oriented half-plane edge, defined by two endpoints. A
// point p is on the "inside" of the constraint iff the 2-D cross product
// (p-P0) x (P1-P0) is non-negative. Cross products are computed in int64 to
// avoid overflow at the addressable scan window's extremes.
type Constraint struct {
	P0, P1 Point
}

// Inside reports whether p lies on the non-negative side of the constraint.
func (c Constraint) Inside(p Point) bool {
	return cross(p, c.P0, c.P1) >= 0
}

func cross(p, p0, p1 Point) int64 {
	ax := int64(p.X) - int64(p0.X)
	ay := int64(p.Y) - int64(p0.Y)
	bx := int64(p1.X) - int64(p0.X)
	by := int64(p1.Y) - int64(p0.Y)
	return ax*by - ay*bx
}

// Window is an axis-aligned scan-window rectangle, stored as four ordered
// half-plane constraints in mils: top edge, bottom edge, right edge, left
// edge, so their outward normals sweep consistently around the rectangle.
type Window struct {
	constraints [4]Constraint
}

// NewWindow builds a Window from a rectangle given in inches. top must
// exceed bottom and right must exceed left.
func NewWindow(topIn, bottomIn, leftIn, rightIn float64) (Window, error) {
	if topIn <= bottomIn {
		return Window{}, fmt.Errorf("geometry: window top (%g) must exceed bottom (%g)", topIn, bottomIn)
	}
	if rightIn <= leftIn {
		return Window{}, fmt.Errorf("geometry: window right (%g) must exceed left (%g)", rightIn, leftIn)
	}

	topLeft := Point{X: round32(leftIn * 1000), Y: round32(topIn * 1000)}
	topRight := Point{X: round32(rightIn * 1000), Y: round32(topIn * 1000)}
	bottomRight := Point{X: round32(rightIn * 1000), Y: round32(bottomIn * 1000)}
	bottomLeft := Point{X: round32(leftIn * 1000), Y: round32(bottomIn * 1000)}

	return Window{constraints: [4]Constraint{
		{P0: topLeft, P1: topRight},        // top edge
		{P0: bottomRight, P1: bottomLeft},  // bottom edge
		{P0: topRight, P1: bottomRight},    // right edge
		{P0: bottomLeft, P1: topLeft},      // left edge
	}}, nil
}

// Constraints returns the four edge constraints in mill space, in the fixed
// order top, bottom, right, left.
func (w Window) Constraints() [4]Constraint {
	return w.constraints
}

// Contains reports whether p is inside all four half-planes.
func (w Window) Contains(p Point) bool {
	for _, c := range w.constraints {
		if !c.Inside(p) {
			return false
		}
	}
	return true
}

// ConstraintsForCamera maps the window's four mill-space constraints through
// the given camera's mill->camera transform, ready to send in a SetWindow
// command. When the camera is mounted with its cable downstream, the camera
// mirrors the X axis, so the endpoint order is swapped (P1, P0) to preserve
// the half-plane orientation; otherwise the order is left as (P0, P1).
func (w Window) ConstraintsForCamera(a Alignment) [4]Constraint {
	var out [4]Constraint
	for i, c := range w.constraints {
		x1, y1 := a.MillToCamera(c.P0.X, c.P0.Y)
		x2, y2 := a.MillToCamera(c.P1.X, c.P1.Y)
		p0, p1 := Point{X: x1, Y: y1}, Point{X: x2, Y: y2}
		if a.CableDownstream() {
			out[i] = Constraint{P0: p1, P1: p0}
		} else {
			out[i] = Constraint{P0: p0, P1: p1}
		}
	}
	return out
}
