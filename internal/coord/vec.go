// Package coord defines the unified coordinate types shared across the
// broker and implements the axis conversion described in the binding
// contract: every platform binding supplies its own permutation/reflection
// pair, and this package only carries the math that pair is built from.
package coord

import "math"

// Vec4 is a translation position in millimeters: (X, Y, Z, W). W is the
// depth axis, the translation parallel to the probe shaft.
type Vec4 struct {
	X, Y, Z, W float64
}

// Vec3 is a rotation in degrees: (Yaw, Pitch, Roll).
type Vec3 struct {
	Yaw, Pitch, Roll float64
}

// Array returns the four axes in X, Y, Z, W order.
func (v Vec4) Array() [4]float64 {
	return [4]float64{v.X, v.Y, v.Z, v.W}
}

// Sub returns v - o, component-wise.
func (v Vec4) Sub(o Vec4) Vec4 {
	return Vec4{v.X - o.X, v.Y - o.Y, v.Z - o.Z, v.W - o.W}
}

// Finite reports whether every axis is a finite float (not NaN/Inf).
func (v Vec4) Finite() bool {
	for _, a := range v.Array() {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return false
		}
	}
	return true
}

// WithW returns a copy of v with the W axis replaced.
func (v Vec4) WithW(w float64) Vec4 {
	v.W = w
	return v
}

// NormalizeYaw wraps yaw into [0, 360).
func NormalizeYaw(yaw float64) float64 {
	yaw = math.Mod(yaw, 360)
	if yaw < 0 {
		yaw += 360
	}
	return yaw
}

// CloseAxes reports whether the given axes of a and b differ by no more
// than tolerance. axes selects which of X/Y/Z/W to compare; an empty axes
// compares all four.
func CloseAxes(a, b Vec4, tolerance float64, axes ...int) bool {
	aArr, bArr := a.Array(), b.Array()
	if len(axes) == 0 {
		axes = []int{0, 1, 2, 3}
	}
	for _, i := range axes {
		if math.Abs(aArr[i]-bArr[i]) > tolerance {
			return false
		}
	}
	return true
}

// MMToUM converts a scalar from millimeters to micrometers.
func MMToUM(mm float64) float64 { return mm * 1000 }

// UMToMM converts a scalar from micrometers to millimeters.
func UMToMM(um float64) float64 { return um / 1000 }
