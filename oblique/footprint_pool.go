package oblique

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// FootprintOptions controls a footprint batch
type FootprintOptions struct {
	TerrainHeight float64
	Workers       int // 0 = runtime.NumCPU()
}

// FootprintFailure records a camera whose footprint could not be built
type FootprintFailure struct {
	Camera int    `json:"camera"`
	Label  string `json:"label"`
	Err    error  `json:"-"`
}

func (f FootprintFailure) Error() string {
	return fmt.Sprintf("camera %d (%s): %v", f.Camera, f.Label, f.Err)
}

// FootprintReport summarizes a footprint batch
type FootprintReport struct {
	Created  int
	Failures []FootprintFailure
}

type footprintResult struct {
	ring orb.Ring
	err  error
}

// ProjectFootprints computes footprints for every camera of the project on a
// bounded worker pool and replaces p.Footprints with the results. Workers
// only compute; the project is written afterwards in camera order.
// Degenerate cameras are reported in the returned report. A missing
// calibration aborts the batch.
func ProjectFootprints(ctx context.Context, p *Project, opts FootprintOptions) (*FootprintReport, error) {
	if len(p.Cameras) == 0 {
		return nil, ErrNoCameras
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]footprintResult, len(p.Cameras))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range p.Cameras {
		if gctx.Err() != nil {
			break
		}
		cam := p.Cameras[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ring, err := ProjectFootprint(&cam, opts.TerrainHeight)
			if errors.Is(err, ErrMissingCalibration) {
				return fmt.Errorf("camera %d (%s): %w", cam.Key, cam.Label, err)
			}
			results[i] = footprintResult{ring: ring, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &FootprintReport{}
	footprints := make([]Footprint, 0, len(p.Cameras))
	for i := range p.Cameras {
		cam := &p.Cameras[i]
		res := results[i]
		if res.err != nil {
			cam.FootprintID = nil
			failure := FootprintFailure{Camera: cam.Key, Label: cam.Label, Err: res.err}
			log.Printf("Skipping footprint: %v", failure)
			report.Failures = append(report.Failures, failure)
			continue
		}

		key := len(footprints)
		footprints = append(footprints, Footprint{
			Key:    key,
			Photo:  cam.Label,
			Frame:  cam.Key,
			Height: opts.TerrainHeight,
			Ring:   res.ring,
		})
		cam.FootprintID = &key
	}

	p.Footprints = footprints
	report.Created = len(footprints)
	return report, nil
}

// FootprintFor returns the footprint linked to the camera, or nil
func (p *Project) FootprintFor(cam *Camera) *Footprint {
	if cam.FootprintID != nil {
		if id := *cam.FootprintID; id >= 0 && id < len(p.Footprints) && p.Footprints[id].Frame == cam.Key {
			return &p.Footprints[id]
		}
	}
	for i := range p.Footprints {
		if p.Footprints[i].Frame == cam.Key {
			return &p.Footprints[i]
		}
	}
	return nil
}

// Camera returns the camera with the given key, or nil
func (p *Project) Camera(key int) *Camera {
	for i := range p.Cameras {
		if p.Cameras[i].Key == key {
			return &p.Cameras[i]
		}
	}
	return nil
}
