package oblique

import (
	"fmt"
	"log"
	"math"
)

// Tilt thresholds in degrees
const (
	nadirTiltLimit   = 20.0
	obliqueTiltLimit = 30.0
)

// headingQuadrant rounds the yaw to the nearest multiple of 90 degrees and
// returns it as a quadrant 0..3.
func headingQuadrant(yaw float64) int {
	q := int(math.Round(yaw/90)) % 4
	if q < 0 {
		q += 4
	}
	return q
}

// Classify assigns a look direction from the camera orientation. Near
// vertical views are Nadir. Oblique views get a base direction from the
// tilt, where later checks win: roll > 30, then pitch < -30, then
// roll < -30, then pitch > 30. The base direction is relative to the
// aircraft and is turned clockwise by the heading quadrant.
func Classify(o Orientation) (Direction, error) {
	yaw, pitch, roll, err := o.YPR()
	if err != nil {
		return DirectionNone, err
	}

	if math.Abs(pitch) < nadirTiltLimit && math.Abs(roll) < nadirTiltLimit {
		return DirectionNadir, nil
	}

	base := -1
	if pitch > obliqueTiltLimit {
		base = 0
	}
	if roll < -obliqueTiltLimit {
		base = 1
	}
	if pitch < -obliqueTiltLimit {
		base = 2
	}
	if roll > obliqueTiltLimit {
		base = 3
	}
	if base < 0 {
		return DirectionNone, fmt.Errorf("%w: pitch %.1f roll %.1f", ErrAmbiguousTilt, pitch, roll)
	}

	idx := ((base-headingQuadrant(yaw))%4 + 4) % 4
	return obliqueDirections[idx], nil
}

// ClassifyFailure records a camera that could not be classified
type ClassifyFailure struct {
	Camera int    `json:"camera"`
	Label  string `json:"label"`
	Err    error  `json:"-"`
}

func (f ClassifyFailure) Error() string {
	return fmt.Sprintf("camera %d (%s): %v", f.Camera, f.Label, f.Err)
}

// ClassifyProject writes the direction group of every camera and the
// Direction attribute of its footprint. Cameras that cannot be classified
// keep no group and are returned as failures.
func ClassifyProject(p *Project) []ClassifyFailure {
	var failures []ClassifyFailure
	for i := range p.Cameras {
		cam := &p.Cameras[i]
		dir, err := Classify(cam.Rotation)
		if err != nil {
			cam.Group = DirectionNone
			f := ClassifyFailure{Camera: cam.Key, Label: cam.Label, Err: err}
			log.Printf("Unclassified camera: %v", f)
			failures = append(failures, f)
			continue
		}
		cam.Group = dir
		if fp := p.FootprintFor(cam); fp != nil {
			fp.Direction = dir
		}
	}
	return failures
}
