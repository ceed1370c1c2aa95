package oblique

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// rayEpsilon is the smallest vertical ray component accepted when
// intersecting the terrain plane.
const rayEpsilon = 1e-9

// imageCorners returns the pixel corners in footprint vertex order
func imageCorners(s Sensor) [4][2]float64 {
	w, h := float64(s.Width), float64(s.Height)
	return [4][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}}
}

// ProjectFootprint casts the four image corner rays of the camera onto the
// horizontal plane z = terrainHeight. Vertices follow the image corners
// (0,0), (W,0), (W,H), (0,H). The ring is returned open.
func ProjectFootprint(cam *Camera, terrainHeight float64) (orb.Ring, error) {
	k, err := cam.Sensor.Intrinsics()
	if err != nil {
		return nil, err
	}
	rot, err := cam.Rotation.CameraToWorld()
	if err != nil {
		return nil, err
	}

	var kinv mat.Dense
	if err := kinv.Inverse(k); err != nil {
		return nil, fmt.Errorf("%w: singular intrinsics: %v", ErrMissingCalibration, err)
	}
	var back mat.Dense
	back.Mul(rot, &kinv)

	ring := make(orb.Ring, 0, 4)
	for i, c := range imageCorners(cam.Sensor) {
		var ray mat.VecDense
		ray.MulVec(&back, mat.NewVecDense(3, []float64{c[0], c[1], 1}))
		d := r3.Vector{X: ray.AtVec(0), Y: ray.AtVec(1), Z: ray.AtVec(2)}.Normalize()

		v, err := intersectTerrain(cam.Location, d, terrainHeight)
		if err != nil {
			return nil, fmt.Errorf("corner %d: %w", i, err)
		}
		ring = append(ring, orb.Point{v.X, v.Y})
	}
	return ring, nil
}

// intersectTerrain returns where the ray from origin along dir meets the
// plane z = height.
func intersectTerrain(origin, dir r3.Vector, height float64) (r3.Vector, error) {
	if math.Abs(dir.Z) < rayEpsilon {
		return r3.Vector{}, ErrRayParallel
	}
	t := (height - origin.Z) / dir.Z
	if t <= 0 {
		return r3.Vector{}, ErrRayMissesTerrain
	}
	return origin.Add(dir.Mul(t)), nil
}
