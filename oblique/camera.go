package oblique

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// FocalPixels returns the focal length in pixels along x and y. The pixel
// calibration wins; otherwise the metric focal length is divided by the
// pixel size.
func (s Sensor) FocalPixels() (fx, fy float64, err error) {
	switch {
	case s.F != nil && *s.F > 0:
		return *s.F, *s.F, nil
	case s.FocalLength != nil && s.PixelWidth != nil && s.PixelHeight != nil &&
		*s.PixelWidth > 0 && *s.PixelHeight > 0:
		return *s.FocalLength / *s.PixelWidth, *s.FocalLength / *s.PixelHeight, nil
	}
	return 0, 0, fmt.Errorf("%w: need f in pixels, or focal length and pixel size in mm", ErrMissingCalibration)
}

// Intrinsics returns the 3x3 camera matrix with the principal point at the
// sensor centre.
func (s Sensor) Intrinsics() (*mat.Dense, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("%w: sensor size %dx%d", ErrMissingCalibration, s.Width, s.Height)
	}
	fx, fy, err := s.FocalPixels()
	if err != nil {
		return nil, err
	}
	return mat.NewDense(3, 3, []float64{
		fx, 0, float64(s.Width) / 2,
		0, fy, float64(s.Height) / 2,
		0, 0, 1,
	}), nil
}

// Extrinsics returns the 3x4 pose matrix [R | C] mapping camera-frame
// points to world coordinates.
func (c *Camera) Extrinsics() (*mat.Dense, error) {
	rot, err := c.Rotation.CameraToWorld()
	if err != nil {
		return nil, err
	}
	ext := mat.NewDense(3, 4, nil)
	ext.Slice(0, 3, 0, 3).(*mat.Dense).Copy(rot)
	ext.Set(0, 3, c.Location.X)
	ext.Set(1, 3, c.Location.Y)
	ext.Set(2, 3, c.Location.Z)
	return ext, nil
}

// ProjectionMatrix returns P = K * [R^T | -R^T C], the 3x4 matrix mapping
// homogeneous world points to pixels.
func (c *Camera) ProjectionMatrix() (*mat.Dense, error) {
	k, err := c.Sensor.Intrinsics()
	if err != nil {
		return nil, err
	}
	rot, err := c.Rotation.CameraToWorld()
	if err != nil {
		return nil, err
	}

	var rt mat.Dense
	rt.CloneFrom(rot.T())
	center := mat.NewVecDense(3, []float64{c.Location.X, c.Location.Y, c.Location.Z})
	var t mat.VecDense
	t.MulVec(&rt, center)
	t.ScaleVec(-1, &t)

	worldToCam := mat.NewDense(3, 4, nil)
	worldToCam.Slice(0, 3, 0, 3).(*mat.Dense).Copy(&rt)
	worldToCam.SetCol(3, t.RawVector().Data)

	var proj mat.Dense
	proj.Mul(k, worldToCam)
	return &proj, nil
}

// ProjectPoint maps a world point to pixel coordinates
func (c *Camera) ProjectPoint(p r3.Vector) (u, v float64, err error) {
	proj, err := c.ProjectionMatrix()
	if err != nil {
		return 0, 0, err
	}
	var h mat.VecDense
	h.MulVec(proj, mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1}))
	w := h.AtVec(2)
	if w == 0 {
		return 0, 0, fmt.Errorf("point at camera centre plane")
	}
	return h.AtVec(0) / w, h.AtVec(1) / w, nil
}
