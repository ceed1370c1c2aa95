package oblique

import "errors"

// Configuration errors abort the whole operation.
var (
	ErrAOIConfig          = errors.New("invalid AOI configuration")
	ErrMissingCalibration = errors.New("missing sensor calibration")
	ErrNoPartitions       = errors.New("no blocks or inside-outside division detected")
	ErrUngroupedCamera    = errors.New("camera has no direction group")
	ErrNoCameras          = errors.New("project has no cameras")
)

// Geometric degeneracies are reported per camera.
var (
	ErrRayParallel      = errors.New("ray parallel to terrain plane")
	ErrRayMissesTerrain = errors.New("ray does not reach terrain plane")
	ErrAmbiguousTilt    = errors.New("tilt matches no oblique direction")
)
