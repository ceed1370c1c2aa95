package oblique

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Degrees2Rad converts degrees to radians
func Degrees2Rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Rad2Degrees converts radians to degrees
func Rad2Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// RotateXAxis returns the rotation matrix about X by theta radians
func RotateXAxis(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// RotateYAxis returns the rotation matrix about Y by theta radians
func RotateYAxis(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// RotateZAxis returns the rotation matrix about Z by theta radians
func RotateZAxis(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// imageToPhoto flips the image frame (x right, y down, z forward) into the
// photogrammetric frame (x right, y up, z backward).
var imageToPhoto = mat.NewDense(3, 3, []float64{
	1, 0, 0,
	0, -1, 0,
	0, 0, -1,
})

// photoMatrix returns the rotation from the photogrammetric camera frame to
// the world frame (X east, Y north, Z up). All angles zero is a nadir view
// with the top of the image facing north.
func (o Orientation) photoMatrix() (*mat.Dense, error) {
	a, b, c := Degrees2Rad(o.Angles[0]), Degrees2Rad(o.Angles[1]), Degrees2Rad(o.Angles[2])

	var r mat.Dense
	switch o.Convention {
	case ConventionOPK:
		r.Mul(RotateXAxis(a), RotateYAxis(b))
		r.Mul(&r, RotateZAxis(c))
	case ConventionYPR:
		r.Mul(RotateZAxis(-a), RotateXAxis(b))
		r.Mul(&r, RotateYAxis(-c))
	default:
		return nil, fmt.Errorf("unknown rotation convention %q", o.Convention)
	}
	return &r, nil
}

// CameraToWorld returns the rotation that maps image-frame rays (x right,
// y down, z forward) into world coordinates.
func (o Orientation) CameraToWorld() (*mat.Dense, error) {
	photo, err := o.photoMatrix()
	if err != nil {
		return nil, err
	}
	var r mat.Dense
	r.Mul(photo, imageToPhoto)
	return &r, nil
}

// YPR converts the orientation to yaw, pitch and roll in degrees. Yaw is
// returned in (-180, 180].
func (o Orientation) YPR() (yaw, pitch, roll float64, err error) {
	if o.Convention == ConventionYPR {
		return o.Angles[0], o.Angles[1], o.Angles[2], nil
	}

	m, err := o.photoMatrix()
	if err != nil {
		return 0, 0, 0, err
	}

	// m = Rz(-yaw) * Rx(pitch) * Ry(-roll)
	sinPitch := math.Max(-1, math.Min(1, m.At(2, 1)))
	pitch = Rad2Degrees(math.Asin(sinPitch))
	roll = -Rad2Degrees(math.Atan2(-m.At(2, 0), m.At(2, 2)))
	yaw = -Rad2Degrees(math.Atan2(-m.At(0, 1), m.At(1, 1)))
	if yaw <= -180 {
		yaw += 360
	}
	return yaw, pitch, roll, nil
}
